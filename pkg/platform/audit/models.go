// Package audit records what happened to accounts, by whom and from where.
package audit

import (
	"context"
	"time"

	id "accounts/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance,
	// such as account creation.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers events relevant to abuse monitoring.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from request handling to capture key actions.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Action    string
	Email     string
	Reason    string
	// RequestID correlates the event with request logs.
	RequestID string
	ClientIP  string
	// Device is the display name derived from the User-Agent.
	Device string
}

type AuditEvent string

const (
	EventUserCreated               AuditEvent = "user_created"
	EventVerificationRequested     AuditEvent = "verification_requested"
	EventVerificationRequestFailed AuditEvent = "verification_request_failed"
	EventRegistrationConflict      AuditEvent = "registration_conflict"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:               CategoryCompliance,
	EventVerificationRequested:     CategoryCompliance,
	EventVerificationRequestFailed: CategoryOperations,
	EventRegistrationConflict:      CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
