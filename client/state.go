package client

import (
	"sync"

	"github.com/interviewmate/copilot/wire"
)

// State is the connection-level processing state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// SubState refines StateStreaming. SubIdle is the steady listening state
// with an empty accumulated transcript.
type SubState int

const (
	SubIdle SubState = iota
	SubTranscribing
	SubDetecting
	SubGenerating
)

func (s SubState) String() string {
	switch s {
	case SubTranscribing:
		return "transcribing"
	case SubDetecting:
		return "detecting"
	case SubGenerating:
		return "generating"
	default:
		return "idle"
	}
}

// StateMachine derives the UI-visible processing state purely from transport
// events; audio capture never sets it directly. Apply is safe for concurrent
// use with the getters.
type StateMachine struct {
	mu sync.Mutex

	state State
	sub   SubState

	segment     string
	accumulated string

	// lastEventID guards against a duplicate question_detected for the same
	// boundary producing a second generating transition.
	lastEventID string

	lastErr *wire.ErrorPayload
}

func NewStateMachine() *StateMachine { return &StateMachine{} }

// Connecting marks the dial in progress. Called by the session owner when it
// starts or restarts Connect.
func (m *StateMachine) Connecting() {
	m.mu.Lock()
	m.state = StateConnecting
	m.mu.Unlock()
}

// Apply folds one transport event into the state.
func (m *StateMachine) Apply(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case StatusEvent:
		m.applyStatus(e)
	case TranscriptionEvent:
		if m.state != StateStreaming {
			return
		}
		m.segment = e.Text
		m.accumulated = e.AccumulatedText
		if m.sub != SubGenerating && m.sub != SubDetecting {
			m.sub = SubTranscribing
		}
	case QuestionEvent:
		if e.EventID != "" && e.EventID == m.lastEventID {
			return
		}
		m.lastEventID = e.EventID
		m.sub = SubGenerating
	case AnswerEvent:
		// Answer delivery clears the accumulated view and returns the
		// session to steady streaming.
		m.segment = ""
		m.accumulated = ""
		m.sub = SubIdle
	case ErrorEvent:
		p := e.ErrorPayload
		m.lastErr = &p
		if e.Code == wire.ErrCodeGenerationFailure || e.Code == wire.ErrCodeGenerationTimeout {
			// The generation ended; fall back to the steady state without
			// touching the transcript view.
			if m.sub == SubGenerating {
				m.sub = SubIdle
			}
		}
	case DisconnectedEvent:
		m.state = StateConnecting
	case ReconnectedEvent:
		m.state = StateStreaming
		m.sub = SubIdle
		m.segment = ""
		m.accumulated = ""
		m.lastEventID = ""
	}
}

func (m *StateMachine) applyStatus(e StatusEvent) {
	switch e.State {
	case wire.StatusReady:
		m.state = StateStreaming
		m.sub = SubIdle
	case wire.StatusDetecting:
		if m.state == StateStreaming {
			m.sub = SubDetecting
		}
	case wire.StatusNoQuestion:
		if m.state == StateStreaming {
			m.sub = SubIdle
			m.segment = ""
			m.accumulated = ""
		}
	case wire.StatusCleared:
		m.sub = SubIdle
		m.segment = ""
		m.accumulated = ""
		m.lastEventID = ""
	}
}

// State returns the connection-level state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sub returns the streaming sub-state.
func (m *StateMachine) Sub() SubState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub
}

// Transcript returns the current segment and accumulated text views.
func (m *StateMachine) Transcript() (segment, accumulated string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segment, m.accumulated
}

// LastError returns the most recent error event payload, or nil.
func (m *StateMachine) LastError() *wire.ErrorPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return nil
	}
	p := *m.lastErr
	return &p
}
