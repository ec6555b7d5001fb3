package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/platform/sentinel"
)

const sampleHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func validParams() NewUserParams {
	return NewUserParams{
		Username:     "alice",
		FirstName:    "A",
		LastName:     "B",
		Email:        "a@x.com",
		PasswordHash: sampleHash,
	}
}

func TestNewUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("creates active unverified user", func(t *testing.T) {
		userID := id.NewUserID()
		u, err := NewUser(userID, validParams(), now)
		require.NoError(t, err)

		assert.Equal(t, userID, u.PrincipalID())
		assert.Equal(t, "alice", u.PrincipalUsername())
		assert.Equal(t, sampleHash, u.Credential())
		assert.False(t, u.Verified)
		assert.Equal(t, AccountFlags{Active: true}, u.Flags())
		assert.Equal(t, now, u.DateJoined)
		assert.Nil(t, u.LastLogin)
		assert.Empty(t, u.Address)
		assert.Empty(t, u.ProfilePicture)
	})

	t.Run("user satisfies Principal", func(t *testing.T) {
		u, err := NewUser(id.NewUserID(), validParams(), now)
		require.NoError(t, err)
		var p Principal = u
		assert.Equal(t, u.ID, p.PrincipalID())
	})

	t.Run("rejects invariant violations", func(t *testing.T) {
		tests := []struct {
			name   string
			id     id.UserID
			mutate func(*NewUserParams)
		}{
			{name: "nil id", id: id.UserID{}, mutate: func(*NewUserParams) {}},
			{name: "empty username", id: id.NewUserID(), mutate: func(p *NewUserParams) { p.Username = "" }},
			{name: "empty email", id: id.NewUserID(), mutate: func(p *NewUserParams) { p.Email = "" }},
			{name: "plaintext password", id: id.NewUserID(), mutate: func(p *NewUserParams) { p.PasswordHash = "Str0ng!Pass" }},
			{name: "username too long", id: id.NewUserID(), mutate: func(p *NewUserParams) { p.Username = strings.Repeat("u", MaxUsernameLength+1) }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := validParams()
				tt.mutate(&p)
				_, err := NewUser(tt.id, p, now)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			})
		}
	})
}

func TestValidateOptionalFieldLimits(t *testing.T) {
	u, err := NewUser(id.NewUserID(), validParams(), time.Now())
	require.NoError(t, err)

	u.Address = strings.Repeat("a", MaxAddressLength)
	u.City = strings.Repeat("c", MaxCityLength)
	u.Postcode = strings.Repeat("1", MaxPostcodeLength)
	u.Mobile = strings.Repeat("9", MaxMobileLength)
	require.NoError(t, u.Validate())

	u.Postcode = strings.Repeat("1", MaxPostcodeLength+1)
	assert.Error(t, u.Validate())

	u.Postcode = ""
	u.Mobile = "+44 7700 900000 ext"
	assert.Error(t, u.Validate())
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&BasePrincipal{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "Ada", (&BasePrincipal{FirstName: "Ada"}).FullName())
	assert.Equal(t, "Lovelace", (&BasePrincipal{LastName: "Lovelace"}).FullName())
}

func TestConflictErrorsMatchSentinel(t *testing.T) {
	assert.ErrorIs(t, ErrEmailTaken, sentinel.ErrAlreadyUsed)
	assert.ErrorIs(t, ErrUsernameTaken, sentinel.ErrAlreadyUsed)
	assert.NotErrorIs(t, ErrEmailTaken, ErrUsernameTaken)
}
