package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 24 * time.Hour

// Manager keeps sessions in memory, keyed by an opaque cookie value.
type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager that drops sessions idle for longer than ttl.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Ensure returns the live session for id, or starts a fresh one. created
// reports whether a new session (with a new ID) was made.
func (m *Manager) Ensure(id string) (sess *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.expireLocked(now)

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			s.mu.Lock()
			s.lastSeen = now
			s.mu.Unlock()
			return s, false
		}
	}
	s := newSession(uuid.NewString(), now)
	m.sessions[s.id] = s
	return s, true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// expireLocked drops stale sessions. A session whose lock is held is in use
// and is skipped until a later sweep.
func (m *Manager) expireLocked(now time.Time) {
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		stale := now.Sub(s.lastSeen) > m.ttl && s.state.Phase != Generating
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
		}
	}
}
