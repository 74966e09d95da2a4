package tui

import "github.com/interviewmate/copilot/client"

// TransportEventMsg wraps one inbound session event.
type TransportEventMsg struct {
	Event client.Event
}

// TransportClosedMsg is sent when the event stream ends for good.
type TransportClosedMsg struct{}

// CaptureStoppedMsg is sent when the audio source is exhausted or stopped.
type CaptureStoppedMsg struct{}

// LevelTickMsg drives the input level meter refresh.
type LevelTickMsg struct{}

// CommandErrorMsg reports a failed session command issued from the keyboard.
type CommandErrorMsg struct {
	Op  string
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
