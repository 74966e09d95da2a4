// Package notify publishes session lifecycle events to NATS for downstream
// consumers (analytics, coaching review). Optional; nil disables it.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
)

const (
	SubjectSessionStarted  = "interview.session.started"
	SubjectSessionEnded    = "interview.session.ended"
	SubjectAnswerGenerated = "interview.answer.generated"
)

// SessionEvent announces a session starting or ending.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Answers   int       `json:"answers,omitempty"`
	At        time.Time `json:"at"`
}

// AnswerEvent announces one generated answer. Answer text stays out of the
// bus; consumers needing it read the store.
type AnswerEvent struct {
	SessionID    string    `json:"session_id"`
	RecordID     string    `json:"record_id"`
	Question     string    `json:"question"`
	QuestionType string    `json:"question_type"`
	Grounded     bool      `json:"grounded"`
	Regenerated  bool      `json:"regenerated"`
	At           time.Time `json:"at"`
}

type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc}, nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}

func (p *Publisher) SessionStarted(sessionID, userID string) {
	p.publish(SubjectSessionStarted, SessionEvent{
		SessionID: sessionID,
		UserID:    userID,
		At:        time.Now().UTC(),
	})
}

// TranscriptFinalized has no bus subject; transcript text never leaves the
// session except through the store.
func (p *Publisher) TranscriptFinalized(string, string) {}

// QuestionDetected is covered by the answer event that follows it.
func (p *Publisher) QuestionDetected(string, string, question.Event) {}

func (p *Publisher) AnswerGenerated(sessionID string, rec answer.Record, regenerated bool) {
	p.publish(SubjectAnswerGenerated, AnswerEvent{
		SessionID:    sessionID,
		RecordID:     rec.ID,
		Question:     rec.Question,
		QuestionType: rec.QuestionType,
		Grounded:     rec.Grounded,
		Regenerated:  regenerated,
		At:           time.Now().UTC(),
	})
}

func (p *Publisher) SessionEnded(sessionID string, history []answer.Record) {
	p.publish(SubjectSessionEnded, SessionEvent{
		SessionID: sessionID,
		Answers:   len(history),
		At:        time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("notify: marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		log.Printf("notify: publish %s: %v", subject, err)
	}
}
