package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the JSON text-frame wrapper for all control and event messages.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server envelope types.
const (
	TypeContext       = "context"
	TypeConfig        = "config"
	TypeFinalize      = "finalize"
	TypeRequestAnswer = "request_answer"
	TypeClear         = "clear"
)

// Server → client envelope types.
const (
	TypeTranscription    = "transcription"
	TypeQuestionDetected = "question_detected"
	TypeAnswer           = "answer"
	TypeError            = "error"
	TypeStatus           = "status"
)

// Status states carried by TypeStatus payloads.
const (
	StatusReady      = "ready"
	StatusContextAck = "context_ack"
	StatusConfigAck  = "config_ack"
	StatusDetecting  = "detecting"
	StatusNoQuestion = "no_question"
	StatusCleared    = "cleared"
)

// Error codes carried by TypeError payloads.
const (
	ErrCodeBadRequest            = "bad_request"
	ErrCodeRecognizerUnavailable = "recognizer_unavailable"
	ErrCodeGenerationFailure     = "generation_failure"
	ErrCodeGenerationTimeout     = "generation_timeout"
)

// StarStory is one Situation/Task/Action/Result narrative from the
// candidate's profile, referenced read-only by a session.
type StarStory struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Situation string   `json:"situation"`
	Task      string   `json:"task"`
	Action    string   `json:"action"`
	Result    string   `json:"result"`
	Tags      []string `json:"tags,omitempty"`
}

// QAPair is a prepared question/answer the candidate wants on hand.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ContextPayload carries the candidate background a session grounds answers
// in. Sent once per session activation and again after any profile change or
// reconnect.
type ContextPayload struct {
	UserID        string      `json:"user_id,omitempty"`
	ResumeText    string      `json:"resume_text"`
	StarStories   []StarStory `json:"star_stories"`
	TalkingPoints []string    `json:"talking_points"`
	QAPairs       []QAPair    `json:"qa_pairs,omitempty"`
}

// Empty reports whether the payload contains no usable grounding material.
func (c ContextPayload) Empty() bool {
	return c.ResumeText == "" && len(c.StarStories) == 0 &&
		len(c.TalkingPoints) == 0 && len(c.QAPairs) == 0
}

// ConfigPayload announces the audio format before the first binary frame.
type ConfigPayload struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"` // "pcm_s16le" or "opus"
	Language   string `json:"language,omitempty"`
}

// RequestAnswerPayload asks for (re)generation for an explicit question text,
// bypassing boundary detection.
type RequestAnswerPayload struct {
	Question     string `json:"question"`
	QuestionType string `json:"question_type,omitempty"`
}

// TranscriptionPayload reports recognition progress: Text is the current
// (possibly revised) segment, AccumulatedText the confirmed running
// transcript since the last boundary.
type TranscriptionPayload struct {
	Text            string `json:"text"`
	AccumulatedText string `json:"accumulated_text"`
	IsFinal         bool   `json:"is_final"`
}

// QuestionDetectedPayload announces one detected question boundary. EventID
// is unique per boundary so clients can de-duplicate generating transitions.
type QuestionDetectedPayload struct {
	EventID      string `json:"event_id"`
	Question     string `json:"question"`
	QuestionType string `json:"question_type"`
	Transcript   string `json:"transcript"`
}

// AnswerPayload delivers one generated answer record.
type AnswerPayload struct {
	RecordID     string    `json:"record_id"`
	EventID      string    `json:"event_id,omitempty"`
	Question     string    `json:"question"`
	QuestionType string    `json:"question_type,omitempty"`
	Answer       string    `json:"answer"`
	Grounded     bool      `json:"grounded"`
	GroundedOn   []string  `json:"grounded_on,omitempty"`
	Regenerated  bool      `json:"regenerated,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorPayload surfaces a server-side failure as a session event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusPayload reports session lifecycle transitions and acks.
type StatusPayload struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// NewEnvelope marshals a payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: marshal %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("wire: %s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", e.Type, err)
	}
	return nil
}
