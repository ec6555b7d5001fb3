// Package httptransport assembles the public HTTP surface: platform
// middleware, the signup pages, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accounts/internal/platform/metrics"
	"accounts/internal/platform/middleware"
	"accounts/internal/platform/session"
	"accounts/pkg/platform/httputil"
	"accounts/pkg/platform/middleware/metadata"
	"accounts/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts a feature's routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators NewRouter wires together.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Sessions *session.Manager
	Throttle func(http.Handler) http.Handler
	Signup   RouteRegistrar
	Health   map[string]HealthCheck

	// TrustedProxies may set the client address via forwarding headers.
	TrustedProxies []netip.Prefix
}

const healthCheckTimeout = 2 * time.Second

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(deps.TrustedProxies))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.LatencyMiddleware(deps.Metrics))

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(pages chi.Router) {
		pages.Use(deps.Sessions.Middleware)
		if deps.Throttle != nil {
			pages.Use(deps.Throttle)
		}
		deps.Signup.Register(pages)
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": overall, "checks": report})
	}
}
