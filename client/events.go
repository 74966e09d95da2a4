package client

import "github.com/interviewmate/copilot/wire"

// Event is one inbound transport event. The concrete types below mirror the
// server's envelope payloads plus two transport-level connection events.
// Events are delivered in arrival order on a single channel.
type Event interface{ isEvent() }

// TranscriptionEvent reports recognition progress.
type TranscriptionEvent struct{ wire.TranscriptionPayload }

// QuestionEvent reports a detected question boundary.
type QuestionEvent struct{ wire.QuestionDetectedPayload }

// AnswerEvent delivers a generated answer record.
type AnswerEvent struct{ wire.AnswerPayload }

// ErrorEvent surfaces a server-side failure.
type ErrorEvent struct{ wire.ErrorPayload }

// StatusEvent reports session lifecycle transitions and acks.
type StatusEvent struct{ wire.StatusPayload }

// DisconnectedEvent reports an unexpected connection loss. Reconnection, if
// enabled, is already underway when this event is observed.
type DisconnectedEvent struct{ Err error }

// ReconnectedEvent reports a successful reconnect after backoff. Server-side
// session state did not survive; the caller must resend context before audio.
type ReconnectedEvent struct{ Attempts int }

func (TranscriptionEvent) isEvent() {}
func (QuestionEvent) isEvent()      {}
func (AnswerEvent) isEvent()        {}
func (ErrorEvent) isEvent()         {}
func (StatusEvent) isEvent()        {}
func (DisconnectedEvent) isEvent()  {}
func (ReconnectedEvent) isEvent()   {}
