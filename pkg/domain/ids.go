// Package domain holds typed identifiers shared across modules.
//
// IDs wrap uuid.UUID so that a session ID can never be passed where a user ID
// is expected. Parsing happens once at the trust boundary; everything past it
// works with typed values.
package domain

import (
	"github.com/google/uuid"

	dErrors "accounts/pkg/domain-errors"
)

type (
	UserID    uuid.UUID
	SessionID uuid.UUID
)

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID allocates a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID allocates a fresh random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

// MarshalText encodes the canonical UUID form, so IDs read as strings in
// JSON payloads.
func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
