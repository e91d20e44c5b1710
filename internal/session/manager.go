package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/neexbeast/campusnav/internal/metrics"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned when a client-supplied id is not a UUID.
	ErrInvalidID = errors.New("invalid session id")
)

// Manager owns the attached sessions.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// CreateOptions configures a new session. A client that wants its camera
// and destination back after a restart passes its previous ID.
type CreateOptions struct {
	ID              string
	LocationGranted bool
}

// Create attaches a new session. If opts.ID names a session that is
// already attached, that session is returned.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
		}
		id = parsed.String()
	}

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := New(id, opts.LocationGranted, m.deps)
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Attach(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		s.Detach(context.Background())
		return nil, err
	}

	metrics.ActiveSessions.Inc()
	m.deps.Log.Info("session attached", "session", id, "location_granted", opts.LocationGranted)
	return s, nil
}

// Get returns the attached session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End detaches and forgets the session with id.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Detach(ctx)
	metrics.ActiveSessions.Dec()
	m.deps.Log.Info("session detached", "session", id)
	return nil
}

// Len returns the number of attached sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.End(ctx, id)
	}
}
