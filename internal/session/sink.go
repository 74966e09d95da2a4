package session

import (
	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
)

// Sink observes session activity for persistence and eventing. All methods
// are called from session goroutines and must return promptly; slow work
// belongs behind the implementation.
type Sink interface {
	SessionStarted(sessionID, userID string)
	TranscriptFinalized(sessionID, transcript string)
	QuestionDetected(sessionID, eventID string, ev question.Event)
	AnswerGenerated(sessionID string, rec answer.Record, regenerated bool)
	SessionEnded(sessionID string, history []answer.Record)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) SessionStarted(sessionID, userID string) {
	for _, s := range m {
		s.SessionStarted(sessionID, userID)
	}
}

func (m MultiSink) TranscriptFinalized(sessionID, transcript string) {
	for _, s := range m {
		s.TranscriptFinalized(sessionID, transcript)
	}
}

func (m MultiSink) QuestionDetected(sessionID, eventID string, ev question.Event) {
	for _, s := range m {
		s.QuestionDetected(sessionID, eventID, ev)
	}
}

func (m MultiSink) AnswerGenerated(sessionID string, rec answer.Record, regenerated bool) {
	for _, s := range m {
		s.AnswerGenerated(sessionID, rec, regenerated)
	}
}

func (m MultiSink) SessionEnded(sessionID string, history []answer.Record) {
	for _, s := range m {
		s.SessionEnded(sessionID, history)
	}
}
