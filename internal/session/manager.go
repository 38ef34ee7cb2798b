// Package session implements DAAP session lifecycle: random session ids
// issued at /login, idle expiry, and a max-concurrent-user cap. Reads and
// writes both serialize on the same lock, fixing the open question
// spec.md §9 raises about the teacher's source only guarding writes.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// Session is one logged-in client.
type Session struct {
	ID            uint32
	RemoteAddress string
	Username      string // empty if auth_method is none
	LastActionAt  time.Time
}

// Manager owns the live session set.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	maxUsers int
	timeout  time.Duration
}

// New returns a Manager. maxUsers of 0 means unlimited; timeout is the idle
// expiry window (default handling is the caller's responsibility, matching
// config.Default() defaulting session_timeout to 30 minutes).
func New(maxUsers int, timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[uint32]*Session),
		maxUsers: maxUsers,
		timeout:  timeout,
	}
}

// ErrTooManyUsers is returned by Login when the configured cap is reached.
type ErrTooManyUsers struct{}

func (ErrTooManyUsers) Error() string { return "too many users" }

// Login creates a new session with a random, currently-unused 31-bit id.
// It enforces maxUsers before creating the session, so a full server never
// fires the caller's user_login side effect for a rejected login.
func (m *Manager) Login(remoteAddr, username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxUsers > 0 && len(m.sessions) >= m.maxUsers {
		return nil, ErrTooManyUsers{}
	}

	id := m.freshIDLocked()
	s := &Session{ID: id, RemoteAddress: remoteAddr, Username: username, LastActionAt: time.Now()}
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) freshIDLocked() uint32 {
	for {
		id := randomPositive31Bit()
		if _, exists := m.sessions[id]; !exists {
			return id
		}
	}
}

func randomPositive31Bit() uint32 {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	v := binary.BigEndian.Uint32(buf[:]) & 0x7FFFFFFF
	if v == 0 {
		v = 1
	}
	return v
}

// Touch updates last_action_at for id; it is a no-op if the session is
// absent (e.g. it expired concurrently).
func (m *Manager) Touch(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActionAt = time.Now()
	}
}

// Logout removes a session. Returns whether it existed.
func (m *Manager) Logout(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Exists reports whether id names a live session. Reads go through the
// same lock writes use.
func (m *Manager) Exists(id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireIdle removes every session whose last action predates now minus the
// configured timeout, and returns their ids so the caller can emit logout
// events for each.
func (m *Manager) ExpireIdle(now time.Time) []uint32 {
	if m.timeout <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []uint32
	for id, s := range m.sessions {
		if now.Sub(s.LastActionAt) > m.timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	return expired
}
