// Package verification records the obligation to confirm a new user's
// email address. Sending the email is left to whoever consumes the record.
package verification

import (
	"context"
	"log/slog"
	"time"

	"accounts/internal/users/models"
	id "accounts/pkg/domain"
	"accounts/pkg/requestcontext"
)

// Notifier is told once per successful registration.
type Notifier interface {
	RequestVerification(ctx context.Context, user *models.User) error
}

// Request is the recorded obligation.
type Request struct {
	UserID      id.UserID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requested_at"`
}

func newRequest(ctx context.Context, user *models.User) Request {
	return Request{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		RequestedAt: requestcontext.Now(ctx).UTC(),
	}
}

// LogNotifier writes the obligation to the log. Used when no broker is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) RequestVerification(ctx context.Context, user *models.User) error {
	req := newRequest(ctx, user)
	n.logger.InfoContext(ctx, "verification requested",
		"user_id", req.UserID.String(),
		"email", req.Email,
		"requested_at", req.RequestedAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
