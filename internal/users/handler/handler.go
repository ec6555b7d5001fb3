// Package handler serves the signup page.
package handler

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"accounts/internal/platform/metrics"
	"accounts/internal/platform/session"
	"accounts/internal/users/form"
	"accounts/internal/users/verification"
	dErrors "accounts/pkg/domain-errors"
	audit "accounts/pkg/platform/audit"
	"accounts/pkg/platform/httputil"
	"accounts/pkg/requestcontext"
)

// SignupPath serves both the page and the submission; success redirects
// back to it.
const SignupPath = "/signup"

const (
	verificationSentNotice   = "We have sent you a verification email"
	verificationFailedNotice = "Your account was created, but we could not send the verification email. Please try again later."
)

// maxFormBytes bounds the submitted body.
const maxFormBytes = 64 << 10

//go:embed templates/*.html
var templateFS embed.FS

var tracer = otel.Tracer("accounts/users/handler")

// Notices queues and drains one-time messages for the current session.
type Notices interface {
	AddNotice(ctx context.Context, notice session.Notice) error
	PopNotices(ctx context.Context) ([]session.Notice, error)
}

// AuditPublisher records account events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Handler handles the signup endpoints.
type Handler struct {
	forms    *form.Builder
	notifier verification.Notifier
	notices  Notices
	auditor  AuditPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	view     *template.Template
}

// Option configures a Handler.
type Option func(*Handler)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(h *Handler) {
		h.auditor = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New creates a signup Handler.
func New(forms *form.Builder, notifier verification.Notifier, notices Notices, opts ...Option) (*Handler, error) {
	if forms == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "form builder is required")
	}
	if notifier == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification notifier is required")
	}
	if notices == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notice store is required")
	}
	view, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to parse templates")
	}
	h := &Handler{
		forms:    forms,
		notifier: notifier,
		notices:  notices,
		logger:   slog.Default(),
		view:     view,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register registers the signup routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get(SignupPath, h.handleSignupPage)
	r.Post(SignupPath, h.handleSignup)
}

func (h *Handler) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.forms.Unbound())
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "signup.submit")
	defer span.End()
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "invalid signup form body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	f := h.forms.Bind(r.PostForm)
	ok, err := f.Validate(ctx)
	if err != nil {
		h.fail(ctx, w, span, "failed to validate signup", err)
		return
	}
	if !ok {
		h.reject(ctx, span, "invalid")
		h.render(w, r.WithContext(ctx), f)
		return
	}

	user, err := f.Save(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			h.reject(ctx, span, "conflict")
			h.emit(ctx, audit.Event{
				Action: string(audit.EventRegistrationConflict),
				Email:  f.Value(form.FieldEmail),
				Reason: err.Error(),
			})
			h.render(w, r.WithContext(ctx), f)
			return
		}
		h.fail(ctx, w, span, "failed to save user", err)
		return
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	if h.metrics != nil {
		h.metrics.IncrementUsersRegistered()
	}
	h.emit(ctx, audit.Event{
		UserID: user.ID,
		Action: string(audit.EventUserCreated),
		Email:  user.Email,
	})
	h.logger.InfoContext(ctx, "user registered",
		"request_id", requestID,
		"user_id", user.ID.String(),
	)

	notice := session.Notice{Level: session.LevelInfo, Text: verificationSentNotice}
	if err := h.notifier.RequestVerification(ctx, user); err != nil {
		h.logger.ErrorContext(ctx, "failed to request verification",
			"request_id", requestID,
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
		h.countVerification("failed")
		h.emit(ctx, audit.Event{
			UserID: user.ID,
			Action: string(audit.EventVerificationRequestFailed),
			Email:  user.Email,
			Reason: err.Error(),
		})
		notice = session.Notice{Level: session.LevelWarning, Text: verificationFailedNotice}
	} else {
		h.countVerification("requested")
		h.emit(ctx, audit.Event{
			UserID: user.ID,
			Action: string(audit.EventVerificationRequested),
			Email:  user.Email,
		})
	}

	if err := h.notices.AddNotice(ctx, notice); err != nil {
		h.logger.WarnContext(ctx, "failed to queue signup notice",
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	http.Redirect(w, r, SignupPath, http.StatusFound)
}

type signupView struct {
	Action         string
	Fields         []form.Field
	NonFieldErrors []string
	Notices        []session.Notice
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, f *form.Registration) {
	ctx := r.Context()
	notices, err := h.notices.PopNotices(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to load notices",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}

	var buf bytes.Buffer
	err = h.view.ExecuteTemplate(&buf, "signup", signupView{
		Action:         SignupPath,
		Fields:         f.Fields(),
		NonFieldErrors: f.NonFieldErrors(),
		Notices:        notices,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render signup page",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render page"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, span trace.Span, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, msg))
}

func (h *Handler) reject(ctx context.Context, span trace.Span, reason string) {
	span.SetAttributes(attribute.String("signup.rejected", reason))
	if h.metrics != nil {
		h.metrics.IncrementRejected(reason)
	}
	h.logger.InfoContext(ctx, "signup rejected",
		"request_id", requestcontext.RequestID(ctx),
		"reason", reason,
	)
}

func (h *Handler) countVerification(outcome string) {
	if h.metrics != nil {
		h.metrics.IncrementVerificationRequest(outcome)
	}
}

// emit never fails the request; the account already exists by the time
// events are written.
func (h *Handler) emit(ctx context.Context, event audit.Event) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Emit(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", event.Action,
			"error", err.Error(),
		)
	}
}
