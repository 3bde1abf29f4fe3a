package piwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/piwatch/internal/metrics"
)

// Authenticator performs the login handshake against the appliance.
// The production implementation is PasswordAuthenticator; the session
// manager and refresher only depend on this interface so tests can
// substitute fakes.
type Authenticator interface {
	// Login attempts a single authentication round trip and reports success.
	// It never returns an error: every failure mode is captured in the
	// session store's last error instead.
	Login(ctx context.Context) bool
}

type authResponse struct {
	Session struct {
		SID string `json:"sid"`
	} `json:"session"`
}

// PasswordAuthenticator logs in with the appliance's shared secret and
// populates a SessionStore on success.
type PasswordAuthenticator struct {
	store      *SessionStore
	httpClient *http.Client
	authURL    string
	password   string
	sessionTTL time.Duration
}

// NewPasswordAuthenticator builds an authenticator for the appliance at
// host (authority only, no scheme). Tokens written by a successful login
// expire sessionTTL after the login, regardless of what the appliance
// thinks: the local deadline is what drives proactive refresh.
func NewPasswordAuthenticator(store *SessionStore, host, password string, sessionTTL, timeout time.Duration) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		authURL:    "http://" + host + "/api/auth",
		password:   password,
		sessionTTL: sessionTTL,
	}
}

// Login posts the shared secret to /api/auth. The sid is taken from the JSON
// body when present, falling back to the session cookie some firmware
// versions use. A cookie value of "deleted" means the appliance cleared the
// session and is never accepted.
func (a *PasswordAuthenticator) Login(ctx context.Context) bool {
	payload, err := json.Marshal(map[string]string{"password": a.password})
	if err != nil {
		a.fail("login error: " + err.Error())
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, bytes.NewReader(payload))
	if err != nil {
		a.fail("login error: " + err.Error())
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.fail("login error: " + err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var body authResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Session.SID != "" {
			a.succeed(body.Session.SID)
			return true
		}
	}

	if sid := sidFromCookies(resp); sid != "" {
		a.succeed(sid)
		return true
	}

	a.fail(fmt.Sprintf("login failed: %d", resp.StatusCode))

	return false
}

func (a *PasswordAuthenticator) succeed(sid string) {
	a.store.Write(sid, time.Now().Add(a.sessionTTL))
	metrics.LoginSuccessTotal.Inc()
	log.Debug().Msg("appliance login succeeded")
}

func (a *PasswordAuthenticator) fail(msg string) {
	a.store.WriteError(msg)
	metrics.LoginFailureTotal.Inc()
	log.Warn().Str("reason", msg).Msg("appliance login failed")
}

func sidFromCookies(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "sid" && c.Value != "" && c.Value != SentinelDeleted {
			return c.Value
		}
	}

	return ""
}
