package models

import (
	"time"

	id "accounts/pkg/domain"
)

// Principal is the authenticated-account shape every user record provides.
// Login, session and permission code depend on this interface rather than on
// User so the profile fields can evolve independently.
type Principal interface {
	PrincipalID() id.UserID
	PrincipalUsername() string
	// Credential returns the stored password hash. It is never plaintext.
	Credential() string
	Flags() AccountFlags
}

// AccountFlags are the standard account switches.
type AccountFlags struct {
	Active    bool
	Staff     bool
	Superuser bool
}

// BasePrincipal carries the fields shared by every account type. User embeds
// it; nothing else in this package inherits behavior.
type BasePrincipal struct {
	ID           id.UserID
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	Staff        bool
	Superuser    bool
	DateJoined   time.Time
	LastLogin    *time.Time
}

func (p *BasePrincipal) PrincipalID() id.UserID    { return p.ID }
func (p *BasePrincipal) PrincipalUsername() string { return p.Username }
func (p *BasePrincipal) Credential() string        { return p.PasswordHash }

func (p *BasePrincipal) Flags() AccountFlags {
	return AccountFlags{Active: p.Active, Staff: p.Staff, Superuser: p.Superuser}
}

// FullName joins first and last name, skipping empty parts.
func (p *BasePrincipal) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
