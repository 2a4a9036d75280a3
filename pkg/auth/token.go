package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agroconexion/storefront-sync/pkg/redis"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken means no access token is available for the current user.
var ErrNoToken = errors.New("auth: no access token")

// TokenSource supplies the bearer token attached to backend calls and the push handshake.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken serves a token fixed at startup.
type StaticToken string

func (s StaticToken) AccessToken(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

type tokenGetter interface {
	GetAccessToken(ctx context.Context, userKey string) (string, error)
}

// StoredToken reads the token from redis, falling back to a static value on a miss.
type StoredToken struct {
	store    tokenGetter
	userKey  string
	fallback StaticToken
}

func NewStoredToken(store tokenGetter, userKey string, fallback string) *StoredToken {
	return &StoredToken{store: store, userKey: userKey, fallback: StaticToken(fallback)}
}

func (s *StoredToken) AccessToken(ctx context.Context) (string, error) {
	if s.store == nil {
		return s.fallback.AccessToken(ctx)
	}
	token, err := s.store.GetAccessToken(ctx, s.userKey)
	if errors.Is(err, redis.ErrMiss) || (err == nil && strings.TrimSpace(token) == "") {
		return s.fallback.AccessToken(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// InspectAccessToken decodes the token claims without verifying the signature.
// Signature checks belong to the backend; the client only looks at exp.
func InspectAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(tokenString), claims); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return claims, nil
}

// Usable reports whether a token is worth sending. Opaque (non-JWT) tokens are
// assumed usable; JWTs are rejected once expired.
func Usable(tokenString string, now time.Time) bool {
	if strings.TrimSpace(tokenString) == "" {
		return false
	}
	claims, err := InspectAccessToken(tokenString)
	if err != nil {
		return true
	}
	return !claims.Expired(now)
}
