package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts/internal/platform/metrics"
	"accounts/internal/platform/middleware"
	"accounts/internal/platform/ratelimit"
	"accounts/internal/platform/session"
	"accounts/pkg/requestcontext"
)

type stubPages struct{}

func (stubPages) Register(r chi.Router) {
	r.Get("/signup", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if requestcontext.SessionID(ctx).IsNil() || requestcontext.RequestID(ctx) == "" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte("signup"))
	})
	r.Post("/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter(t *testing.T, health map[string]HealthCheck) http.Handler {
	t.Helper()
	return newTestRouterWithThrottle(t, health, nil)
}

func newTestRouterWithThrottle(t *testing.T, health map[string]HealthCheck, throttle func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	sessions, err := session.NewManager("router-test-signing-key", time.Hour, session.NewMemoryStore(time.Hour))
	require.NoError(t, err)
	return NewRouter(Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics.NewWithRegistry(reg),
		Gatherer: reg,
		Sessions: sessions,
		Throttle: throttle,
		Signup:   stubPages{},
		Health:   health,
	})
}

func TestRouter_PagesGetSessionAndRequestID(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/signup", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
	assert.NotEmpty(t, rr.Result().Cookies())
}

func TestRouter_RecoversPanics(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRouter_Health(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Empty(t, rr.Result().Cookies(), "health checks do not start sessions")
	})

	t.Run("failing dependency", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "degraded")
	})
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/signup", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "accounts_http_request_duration_seconds")
}

func TestRouter_ThrottlesSignupPosts(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute)
	router := newTestRouterWithThrottle(t, nil, limiter.Middleware)

	post := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusFound, post("192.0.2.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, post("192.0.2.1:5001"))
	assert.Equal(t, http.StatusFound, post("192.0.2.2:5000"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/signup", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "page views are not throttled")
}

func TestRouter_ForwardedForCannotDodgeThrottle(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute)
	router := newTestRouterWithThrottle(t, nil, limiter.Middleware)

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusFound, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.3"))
}
