package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps the live sessions in memory and evicts idle ones.
type Manager struct {
	backend      *Backend
	ttl          time.Duration // idle time after which a session is evicted
	pollInterval time.Duration // interval between eviction sweeps

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a new instance of Manager. Sessions idle for longer than ttl are
// evicted by Run every pollInterval.
func NewManager(backend *Backend, ttl, pollInterval time.Duration) *Manager {
	return &Manager{
		backend:      backend,
		ttl:          ttl,
		pollInterval: pollInterval,
		sessions:     make(map[uuid.UUID]*Session),
	}
}

// Create registers a fresh session in StateLoading.
func (m *Manager) Create() *Session {
	session := NewSession(m.backend)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.backend.Metrics.ActiveSessions.Inc()
	m.backend.Log.Debug("Session created", "session", session.ID())

	return session
}

// Get returns the session with the given id.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Delete removes the session and closes its subscriptions.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.close()
	m.backend.Metrics.ActiveSessions.Dec()

	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Run periodically evicts idle sessions until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.backend.Log.InfoContext(ctx, "Session janitor started...", "ttl", m.ttl)

	for {
		select {
		case <-ctx.Done():
			m.backend.Log.InfoContext(ctx, "Session janitor stopped.")
			return
		case now := <-ticker.C:
			if evicted := m.evictIdle(now); evicted > 0 {
				m.backend.Log.InfoContext(ctx, "Evicted idle sessions", "count", evicted, "remaining", m.Len())
			}
		}
	}
}

// evictIdle removes sessions not used since now-ttl and returns how many were removed.
func (m *Manager) evictIdle(now time.Time) int {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var idle []*Session
	for id, session := range m.sessions {
		if session.LastSeen().Before(cutoff) {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range idle {
		session.close()
		m.backend.Metrics.ActiveSessions.Dec()
	}

	return len(idle)
}
