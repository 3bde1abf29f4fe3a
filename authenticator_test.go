package piwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestPasswordAuthenticator_LoginWithJSONBody(t *testing.T) {
	var gotPassword string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPassword = body["password"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":{"sid":"json-sid","validity":300}}`))
	}))
	defer srv.Close()

	store := &SessionStore{}
	auth := NewPasswordAuthenticator(store, hostOf(srv), "hunter2", 30*time.Minute, time.Second)

	before := time.Now()
	ok := auth.Login(context.Background())

	require.True(t, ok)
	assert.Equal(t, "hunter2", gotPassword)

	sid, expiry, lastErr := store.Read()
	assert.Equal(t, "json-sid", sid)
	assert.Empty(t, lastErr)
	assert.WithinDuration(t, before.Add(30*time.Minute), expiry, 5*time.Second)
}

func TestPasswordAuthenticator_CookieFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "cookie-sid"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := &SessionStore{}
	auth := NewPasswordAuthenticator(store, hostOf(srv), "pw", time.Minute, time.Second)

	require.True(t, auth.Login(context.Background()))

	sid, _, _ := store.Read()
	assert.Equal(t, "cookie-sid", sid)
}

func TestPasswordAuthenticator_RejectsDeletedSentinelCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "deleted"})
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := &SessionStore{}
	auth := NewPasswordAuthenticator(store, hostOf(srv), "pw", time.Minute, time.Second)

	assert.False(t, auth.Login(context.Background()))

	sid, _, lastErr := store.Read()
	assert.Empty(t, sid, "sentinel cookie must not become a live session")
	assert.Equal(t, "login failed: 401", lastErr)
}

func TestPasswordAuthenticator_BadStatusRecordsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &SessionStore{}
	auth := NewPasswordAuthenticator(store, hostOf(srv), "pw", time.Minute, time.Second)

	assert.False(t, auth.Login(context.Background()))

	_, _, lastErr := store.Read()
	assert.Equal(t, "login failed: 502", lastErr)
}

func TestPasswordAuthenticator_TransportFailureRecordsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := hostOf(srv)
	srv.Close()

	store := &SessionStore{}
	auth := NewPasswordAuthenticator(store, host, "pw", time.Minute, time.Second)

	assert.False(t, auth.Login(context.Background()))

	_, _, lastErr := store.Read()
	assert.Contains(t, lastErr, "login error:")
}

func TestPasswordAuthenticator_SuccessClearsPreviousError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session":{"sid":"json-sid"}}`))
	}))
	defer srv.Close()

	store := &SessionStore{}
	store.WriteError("login failed: 401")
	auth := NewPasswordAuthenticator(store, hostOf(srv), "pw", time.Minute, time.Second)

	require.True(t, auth.Login(context.Background()))

	_, _, lastErr := store.Read()
	assert.Empty(t, lastErr)
}
