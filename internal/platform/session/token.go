package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
)

const issuer = "accounts"

// Claims is the payload of the session cookie.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session cookies with HS256.
type TokenCodec struct {
	signingKey []byte
	ttl        time.Duration
}

func NewTokenCodec(signingKey string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{signingKey: []byte(signingKey), ttl: ttl}
}

// Issue returns a signed token for sid valid from now for the codec's TTL.
func (c *TokenCodec) Issue(sid id.SessionID, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sid.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return signed, nil
}

// Parse verifies raw and returns the session it names.
func (c *TokenCodec) Parse(raw string) (id.SessionID, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}
	return id.ParseSessionID(claims.SessionID)
}
