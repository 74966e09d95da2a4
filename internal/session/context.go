package session

import (
	"sync"

	"github.com/interviewmate/copilot/wire"
)

// ContextStore holds the session's candidate background. The whole payload
// is swapped atomically on every context message.
type ContextStore struct {
	mu      sync.RWMutex
	payload wire.ContextPayload
}

func NewContextStore() *ContextStore { return &ContextStore{} }

func (c *ContextStore) Set(p wire.ContextPayload) {
	c.mu.Lock()
	c.payload = p
	c.mu.Unlock()
}

func (c *ContextStore) Snapshot() wire.ContextPayload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payload
}

func (c *ContextStore) Clear() {
	c.mu.Lock()
	c.payload = wire.ContextPayload{}
	c.mu.Unlock()
}
