package piwatch

import (
	"context"
	"time"
)

// SessionManager serves a valid sid on demand, transparently
// re-authenticating when the cached one is absent, cleared or past its
// expiry. It owns no state of its own; everything lives in the SessionStore
// so the manager, refresher and executor all see the same session.
type SessionManager struct {
	store *SessionStore
	auth  Authenticator
}

func NewSessionManager(store *SessionStore, auth Authenticator) *SessionManager {
	return &SessionManager{store: store, auth: auth}
}

// Token returns the current sid, logging in first when the cached session is
// unusable. The returned sid may still be empty when the appliance rejects
// the login; callers send it as-is and let the executor's 401 handling take
// over.
//
// The staleness check and the login are deliberately not atomic: Login runs
// without the store lock, so a concurrent Invalidate can at worst cause one
// redundant login, never an inconsistent read.
func (m *SessionManager) Token(ctx context.Context) string {
	if m.stale() {
		m.auth.Login(ctx)
	}

	sid, _, _ := m.store.Read()

	return sid
}

func (m *SessionManager) stale() bool {
	sid, expiry, _ := m.store.Read()
	if sid == "" || sid == SentinelDeleted {
		return true
	}

	return !expiry.IsZero() && !time.Now().Before(expiry)
}

// Invalidate drops the cached session unconditionally so the next Token call
// must re-authenticate. Safe to call when no session exists.
func (m *SessionManager) Invalidate() {
	m.store.Clear()
}
