// Package session tracks logged-in operators and the working cart each one
// is ringing up.
package session

import (
	"sync"
	"time"

	"otsopos/backend/internal/cart"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/xid"
)

type Session struct {
	ID        string
	Operator  domain.Operator
	StartedAt time.Time

	mu   sync.Mutex
	cart *cart.Cart
}

// WithCart runs fn with exclusive access to the session's cart.
func (s *Session) WithCart(fn func(*cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cart)
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{sessions: make(map[string]*Session), now: now}
}

func (m *Manager) Start(op domain.Operator) *Session {
	s := &Session{
		ID:        xid.New("sess"),
		Operator:  op,
		StartedAt: m.now().UTC(),
		cart:      cart.New(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End destroys the session and its working cart.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Prune drops sessions started before cutoff and reports how many it removed.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.StartedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
