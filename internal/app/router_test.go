package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/auth"
	"github.com/odyssey-erp/odyssey-signup/internal/confirmation"
	"github.com/odyssey-erp/odyssey-signup/internal/credential"
	"github.com/odyssey-erp/odyssey-signup/internal/notify"
	"github.com/odyssey-erp/odyssey-signup/internal/observability"
	"github.com/odyssey-erp/odyssey-signup/internal/shared"
	"github.com/odyssey-erp/odyssey-signup/internal/view"
)

type nopScheduler struct{}

func (nopScheduler) ScheduleExpiry(ctx context.Context, token string, after time.Duration) error {
	return nil
}

func newTestRouter(t *testing.T, checks map[string]Pinger) http.Handler {
	t.Helper()
	return newLoggingTestRouter(t, checks, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newLoggingTestRouter(t *testing.T, checks map[string]Pinger, logger *slog.Logger) http.Handler {
	t.Helper()
	repo := accounts.NewMemoryRepository()
	hasher := credential.NewHasher("pepper-salt", credential.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32})
	manager := confirmation.NewManager(confirmation.Deps{
		Repository: repo,
		Hasher:     hasher,
		Dispatcher: notify.NewLogDispatcher(logger, notify.LinkBuilder{Domain: "example.com", Port: "443"}),
		Scheduler:  nopScheduler{},
		Logger:     logger,
	}, confirmation.Config{})
	t.Cleanup(manager.Wait)

	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager("signup_session", []byte("router-test-secret-router-test-0"), time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	handler := auth.NewHandler(logger, auth.NewService(repo, hasher), manager, templates, sessions, csrf)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    handler,
		Metrics:        observability.NewMetrics(),
		HealthChecks:   checks,
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAccessLogUsesApplicationLogger(t *testing.T) {
	var buf bytes.Buffer
	router := newLoggingTestRouter(t, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "GET http://example.com/healthz")
	assert.Contains(t, out, " 200 ")
}

func TestHealthzDegraded(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
		"redis":    PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestSecurityHeadersAndStatic(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPostWithoutCSRFTokenRejected(t *testing.T) {
	router := newTestRouter(t, nil)
	form := url.Values{"email": {"alice@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionCookieCarriesCSRFToken(t *testing.T) {
	router := newTestRouter(t, nil)

	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/register", nil))
	require.Equal(t, http.StatusOK, getRec.Code)

	cookies := getRec.Result().Cookies()
	require.Len(t, cookies, 1)
	token := extractCSRF(t, getRec.Body.String())

	form := url.Values{"email": {"alice@example.com"}, "password": {"pw"}, "csrf_token": {token}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signup_http_requests_total{code="200",route="/login"} 1`)
}

func extractCSRF(t *testing.T, body string) string {
	t.Helper()
	const marker = `name="csrf_token" value="`
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0, "csrf field missing")
	rest := body[idx+len(marker):]
	end := strings.Index(rest, `"`)
	require.Greater(t, end, 0)
	return rest[:end]
}
