// Package session identifies browsers with a signed cookie and keeps the
// one-time notices shown on their next page view.
package session

import (
	"context"

	id "accounts/pkg/domain"
)

// Level classifies a notice for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a message queued for the next page the session renders.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Store persists pending notices per session. Pop returns the queue in
// insertion order and clears it in one step.
type Store interface {
	Add(ctx context.Context, sid id.SessionID, notice Notice) error
	Pop(ctx context.Context, sid id.SessionID) ([]Notice, error)
}
