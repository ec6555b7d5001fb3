// Package ratelimit throttles form submissions per client IP with a sliding
// window.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"accounts/pkg/platform/httputil"
	"accounts/pkg/requestcontext"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only set when not allowed
}

// Store counts hits per key inside a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Recorder is told about every refused request.
type Recorder interface {
	IncrementRejected(reason string)
}

type Limiter struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	recorder Recorder
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithRecorder(r Recorder) Option {
	return func(l *Limiter) {
		l.recorder = r
	}
}

// New returns a Limiter allowing limit unsafe requests per client IP within
// window. A limit of zero or less disables throttling.
func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware throttles POST requests. Reads pass through untouched, and a
// store failure lets the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, err := l.store.Allow(ctx, key(r.URL.Path, ip), l.limit, l.window)
		if err != nil {
			l.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if !result.Allowed {
			if l.recorder != nil {
				l.recorder.IncrementRejected("throttled")
			}
			l.logger.WarnContext(ctx, "submission throttled",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests from this IP address. Please try again later.",
				"retry_after": result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func key(path, ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return path + ":" + ip
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}
