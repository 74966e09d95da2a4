package session

import (
	"strings"
	"sync"
)

// Accumulator holds the per-session transcript state: the segment still
// being revised by the recognizer, and the confirmed text accumulated since
// the last question boundary. Confirmed text only grows, or resets to empty
// atomically when a boundary freezes it.
type Accumulator struct {
	mu          sync.Mutex
	segment     string
	accumulated string
}

func NewAccumulator() *Accumulator { return &Accumulator{} }

// Update replaces the unconfirmed segment with the latest interim result.
func (a *Accumulator) Update(text string) {
	a.mu.Lock()
	a.segment = text
	a.mu.Unlock()
}

// Commit appends confirmed text to the accumulated transcript and clears
// the segment. Returns the accumulated transcript after the append.
func (a *Accumulator) Commit(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	text = strings.TrimSpace(text)
	if text != "" {
		if a.accumulated == "" {
			a.accumulated = text
		} else {
			a.accumulated += " " + text
		}
	}
	a.segment = ""
	return a.accumulated
}

// Freeze returns the accumulated snapshot and resets the state for the next
// question, as one atomic step.
func (a *Accumulator) Freeze() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.accumulated
	a.accumulated = ""
	a.segment = ""
	return snapshot
}

// Snapshot reads the current state without resetting it.
func (a *Accumulator) Snapshot() (segment, accumulated string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.segment, a.accumulated
}

// Reset clears both fields.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.segment = ""
	a.accumulated = ""
	a.mu.Unlock()
}
