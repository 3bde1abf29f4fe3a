package piwatch

import (
	"sync"
	"time"
)

// SessionStore holds the single appliance session: the sid issued by the last
// successful login, the local wall-clock deadline after which that sid is
// treated as stale, and the most recent authentication failure.
//
// Every accessor runs under one mutex so a reader never observes a sid paired
// with an expiry computed for a different sid. The store performs no I/O;
// login network calls happen entirely outside the lock, with only the final
// state update exclusive.
type SessionStore struct {
	mu      sync.Mutex
	sid     string
	expiry  time.Time
	lastErr string
}

// Read returns the current sid, its expiry and the last auth error as one
// consistent snapshot.
func (s *SessionStore) Read() (sid string, expiry time.Time, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sid, s.expiry, s.lastErr
}

// Write installs a freshly issued sid together with its expiry and clears the
// stored auth error.
func (s *SessionStore) Write(sid string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sid = sid
	s.expiry = expiry
	s.lastErr = ""
}

// WriteError records an authentication failure. The message is kept until the
// next successful Write and is used for diagnostics only.
func (s *SessionStore) WriteError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = msg
}

// Clear drops the session unconditionally, forcing the next token lookup to
// re-authenticate. Clearing an empty store is a no-op.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sid = ""
	s.expiry = time.Time{}
}
