package echo

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/piwatch"
	"go.pilab.hu/piwatch/cache"
	"go.pilab.hu/piwatch/services"
)

func newDashboard(t *testing.T, upstream http.Handler) *echo.Echo {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	store := &piwatch.SessionStore{}
	auth := piwatch.NewPasswordAuthenticator(store, host, "pw", time.Minute, time.Second)
	sessions := piwatch.NewSessionManager(store, auth)
	client := piwatch.NewClient(host, sessions, time.Second, time.Second)
	blocked := cache.NewBlockedCache(time.Minute)
	t.Cleanup(blocked.Close)
	svc := services.NewDashboardService(client, sessions, store, blocked, 50, host)

	e := echo.New()
	NewDashboardAPI(svc, 50, 10*time.Second).RegisterRoutes(e)

	return e
}

func applianceMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session":{"sid":"test-sid"}}`))
	})
	mux.HandleFunc("/api/queries", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queries":[
			{"domain":"ads.example.com","status":"GRAVITY","time":1700000100},
			{"domain":"ads.example.com","status":"GRAVITY","time":1700000200},
			{"domain":"tracker.example.net","status":"DENYLIST","time":1700000150}
		]}`))
	})
	mux.HandleFunc("/api/domains/allow/exact", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {})

	return mux
}

func TestBlockedHandler_ReturnsAggregatedList(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodGet, "/api/blocked", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"domain":"ads.example.com"`)
	assert.Contains(t, body, `"count":2`)
	assert.Less(t, strings.Index(body, "ads.example.com"), strings.Index(body, "tracker.example.net"),
		"most recent blocked domain comes first")
}

func TestBlockedHandler_ProxiesUpstreamStatus(t *testing.T) {
	broken := http.NewServeMux()
	broken.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session":{"sid":"test-sid"}}`))
	})
	broken.HandleFunc("/api/queries", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"key":"forbidden","message":"api disabled"}}`))
	})
	e := newDashboard(t, broken)

	req := httptest.NewRequest(http.MethodGet, "/api/blocked", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pi-hole API returned status code 403")
}

func TestBlockedHandler_UnreachableApplianceIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	store := &piwatch.SessionStore{}
	auth := piwatch.NewPasswordAuthenticator(store, host, "pw", time.Minute, 100*time.Millisecond)
	sessions := piwatch.NewSessionManager(store, auth)
	client := piwatch.NewClient(host, sessions, 100*time.Millisecond, 100*time.Millisecond)
	blocked := cache.NewBlockedCache(time.Minute)
	t.Cleanup(blocked.Close)
	svc := services.NewDashboardService(client, sessions, store, blocked, 50, host)

	e := echo.New()
	NewDashboardAPI(svc, 50, 10*time.Second).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/api/blocked", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to connect to Pi-hole API")
}

func TestWhitelistHandler_Success(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodPost, "/api/whitelist",
		strings.NewReader(`{"domain":"ads.example.com"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Successfully added ads.example.com to whitelist")
}

func TestWhitelistHandler_RequiresDomain(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodPost, "/api/whitelist",
		strings.NewReader(`{"domain":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Domain is required")
}

func TestWhitelistHandler_RejectsMalformedBody(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodPost, "/api/whitelist",
		strings.NewReader(`{"domain":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestHealthHandler_AlwaysAnswers200(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"pihole_reachable":true`)
	assert.Contains(t, body, `"authenticated":true`)
	assert.Contains(t, body, `"pihole_host"`)
}

func TestIndexHandler_RendersDashboardPage(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recently blocked domains")
}

func TestMetricsEndpoint(t *testing.T) {
	e := newDashboard(t, applianceMux())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
