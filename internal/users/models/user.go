package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/platform/sentinel"
)

// Column limits shared by the form, the stores and the schema.
const (
	MaxUsernameLength   = 150
	MaxNameLength       = 150
	MaxEmailLength      = 254
	MaxAddressLength    = 255
	MaxCityLength       = 30
	MaxPostcodeLength   = 10
	MaxMobileLength     = 15
	MaxPictureKeyLength = 100
)

var (
	// ErrEmailTaken and ErrUsernameTaken identify which unique constraint a
	// create tripped. Both match sentinel.ErrAlreadyUsed.
	ErrEmailTaken    = fmt.Errorf("email %w", sentinel.ErrAlreadyUsed)
	ErrUsernameTaken = fmt.Errorf("username %w", sentinel.ErrAlreadyUsed)
)

// User is the persisted account.
//
// Invariants:
//   - ID is non-nil; Username and Email are non-empty
//   - PasswordHash holds a bcrypt hash, never the submitted password
//   - Email is unique across users (case-insensitive), enforced by the store
//   - Verified starts false and is only set by the verification flow
//   - Optional profile fields are empty when absent and respect their limits
type User struct {
	BasePrincipal

	Email    string
	Verified bool

	Address  string
	City     string
	Postcode string
	Mobile   string
	// ProfilePicture is the storage key of an uploaded image, empty when none.
	ProfilePicture string
}

// NewUserParams are the validated values a registration produces.
type NewUserParams struct {
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

// NewUser builds an active, unverified account. The caller supplies an
// already-hashed password.
func NewUser(userID id.UserID, p NewUserParams, now time.Time) (*User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id cannot be nil")
	}
	if p.Username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if p.Email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if !LooksHashed(p.PasswordHash) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password must be stored as a hash")
	}
	u := &User{
		BasePrincipal: BasePrincipal{
			ID:           userID,
			Username:     p.Username,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			PasswordHash: p.PasswordHash,
			Active:       true,
			DateJoined:   now,
		},
		Email: p.Email,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks the length limits of every column.
func (u *User) Validate() error {
	limits := []struct {
		field string
		value string
		max   int
	}{
		{"username", u.Username, MaxUsernameLength},
		{"first_name", u.FirstName, MaxNameLength},
		{"last_name", u.LastName, MaxNameLength},
		{"email", u.Email, MaxEmailLength},
		{"address", u.Address, MaxAddressLength},
		{"city", u.City, MaxCityLength},
		{"postcode", u.Postcode, MaxPostcodeLength},
		{"mobile", u.Mobile, MaxMobileLength},
		{"profile_picture", u.ProfilePicture, MaxPictureKeyLength},
	}
	for _, l := range limits {
		if n := utf8.RuneCountInString(l.value); n > l.max {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("%s must be at most %d characters (has %d)", l.field, l.max, n))
		}
	}
	return nil
}

// LooksHashed reports whether s has the shape of a bcrypt hash.
func LooksHashed(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// NormalizeKey is the case-folded form used by unique indexes.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
