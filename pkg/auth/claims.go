package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the subset of the backend's bearer token the client inspects.
type AccessTokenClaims struct {
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Expired reports whether the token carries an exp claim that is not after now.
func (c *AccessTokenClaims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}
