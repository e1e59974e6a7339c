package enroll

import (
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/biosync/internal/observability"
)

// Manager hands out one coordinator per user context and owns their
// lifecycle. Sessions are created lazily on first use and discarded on
// release, so no enrollment state outlives its interaction.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[uuid.UUID]*Coordinator
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[uuid.UUID]*Coordinator),
	}
}

// Session returns the coordinator for a user, creating it on first
// use.
func (m *Manager) Session(userID uuid.UUID) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[userID]; ok {
		return c
	}
	c := NewCoordinator(userID, m.deps)
	m.sessions[userID] = c
	observability.ActiveSessions.Inc()
	return c
}

// Peek returns an existing coordinator without creating one.
func (m *Manager) Peek(userID uuid.UUID) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[userID]
	return c, ok
}

// Release resets and discards a user's session. Used on dialog close.
func (m *Manager) Release(userID uuid.UUID) {
	m.mu.Lock()
	c, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		c.Reset()
		observability.ActiveSessions.Dec()
	}
}

// Len reports how many sessions are live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
