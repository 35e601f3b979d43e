package journal

import (
	"sync"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
)

// MemoryStore keeps events in process memory, grouped by execution id.
// Useful for tests and short-lived tools.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]event.Event
	closed bool
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]event.Event)}
}

// Append implements Store.
func (m *MemoryStore) Append(evt event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.events[evt.ExecutionID] = append(m.events[evt.ExecutionID], evt)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(executionID string) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	src := m.events[executionID]
	out := make([]event.Event, len(src))
	copy(out, src)
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
