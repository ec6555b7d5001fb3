package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/requestcontext"
)

// DefaultCookieName matches the cookie browsers already hold from earlier
// deployments.
const DefaultCookieName = "sessionid"

// Manager attaches a session to each request and queues notices for it.
type Manager struct {
	codec        *TokenCodec
	store        Store
	cookieName   string
	ttl          time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithCookieName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithSecureCookie marks the cookie Secure so browsers only send it over
// HTTPS.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) {
		m.secureCookie = secure
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(signingKey string, ttl time.Duration, store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session store is required")
	}
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session signing key is required")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session ttl must be positive")
	}
	m := &Manager{
		codec:      NewTokenCodec(signingKey, ttl),
		store:      store,
		cookieName: DefaultCookieName,
		ttl:        ttl,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Middleware resolves the session cookie. A missing, tampered or expired
// cookie starts a fresh session.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sid, ok := m.fromCookie(r)
		if !ok {
			sid = id.NewSessionID()
			if err := m.setCookie(ctx, w, sid); err != nil {
				m.logger.ErrorContext(ctx, "failed to issue session cookie",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sid)))
	})
}

func (m *Manager) fromCookie(r *http.Request) (id.SessionID, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return id.SessionID{}, false
	}
	sid, err := m.codec.Parse(cookie.Value)
	if err != nil {
		m.logger.DebugContext(r.Context(), "discarding session cookie", "reason", err.Error())
		return id.SessionID{}, false
	}
	return sid, true
}

func (m *Manager) setCookie(ctx context.Context, w http.ResponseWriter, sid id.SessionID) error {
	now := requestcontext.Now(ctx)
	token, err := m.codec.Issue(sid, now)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// AddNotice queues notice for the session in ctx.
func (m *Manager) AddNotice(ctx context.Context, notice Notice) error {
	sid := requestcontext.SessionID(ctx)
	if sid.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "no session in context")
	}
	if err := m.store.Add(ctx, sid, notice); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store notice")
	}
	return nil
}

// PopNotices returns and clears the queued notices. Requests without a
// session have none.
func (m *Manager) PopNotices(ctx context.Context) ([]Notice, error) {
	sid := requestcontext.SessionID(ctx)
	if sid.IsNil() {
		return nil, nil
	}
	notices, err := m.store.Pop(ctx, sid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read notices")
	}
	return notices, nil
}
