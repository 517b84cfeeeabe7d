package game

import (
	"sync"
	"time"
)

// Model holds the current snapshot of one session. It exposes whole-snapshot
// reads and an atomic replace; there are no partial updates.
type Model struct {
	mu    sync.RWMutex
	state *State
	now   func() time.Time
}

// NewModel creates a model holding initial.
func NewModel(initial *State) *Model {
	return &Model{
		state: initial,
		now:   time.Now,
	}
}

// Snapshot returns the installed state. Callers must treat it as read-only.
func (m *Model) Snapshot() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Replace installs next, stamping its UpdatedAt.
func (m *Model) Replace(next *State) *State {
	next.UpdatedAt = m.now().UTC()

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	return next
}
