// Package session keeps one selection controller per connected dashboard.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/selection"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown or closed session id.
var ErrNotFound = errors.New("session not found")

// Session is one dashboard's view: the shared map plus its own selection.
type Session struct {
	ID        string
	store     *store.EntityStore
	selection *selection.Controller
	done      chan struct{}
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Selection returns the session's controller.
func (s *Session) Selection() *selection.Controller { return s.selection }

// Click routes a map click. A cell id present in the current snapshot selects
// that hotspot; anything else counts as a click on empty map and clears.
func (s *Session) Click(cellID string) selection.State {
	if cellID != "" {
		if det, ok := s.store.Lookup(cellID); ok {
			s.selection.SelectMarker(det)
			return s.selection.State()
		}
	}
	s.selection.MapClick()
	return s.selection.State()
}

func (s *Session) close() {
	s.selection.Close()
	close(s.done)
}

// Manager creates and tracks sessions.
type Manager struct {
	store   *store.EntityStore
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    []selection.Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions read from s. opts apply to every
// session's selection controller.
func NewManager(s *store.EntityStore, logger *slog.Logger, metrics *observability.Metrics, opts ...selection.Option) *Manager {
	return &Manager{
		store:    s,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session with an idle selection.
func (m *Manager) Create() *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		store:     m.store,
		selection: selection.New(m.logger, m.metrics, m.opts...),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Set(float64(n))
	m.logger.Info("session opened", "session_id", sess.ID, "active", n)
	return sess
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Close tears down a session, cancelling its pending reveal and place lookup.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	sess.close()
	m.metrics.ActiveSessions.Set(float64(n))
	m.logger.Info("session closed", "session_id", id, "active", n)
	return nil
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	m.metrics.ActiveSessions.Set(0)
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
