package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by ParseClaims for tokens that are not JWTs. The
// service may issue opaque tokens; callers should treat this as "no claims".
var ErrNotJWT = errors.New("credential: token is not a JWT")

// Claims is the display subset of the token's payload.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token's exp claim is before now. Tokens without
// an exp claim never expire locally; the server stays the authority.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims decodes the token payload without verifying the signature. The
// client has no signing key; the result is for display only and must never
// gate a request.
func ParseClaims(token string) (Claims, error) {
	var rc jwt.RegisteredClaims

	_, _, err := jwt.NewParser().ParseUnverified(token, &rc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Claims{}, ErrNotJWT
		}

		return Claims{}, fmt.Errorf("credential: parsing claims: %w", err)
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}

	return c, nil
}
