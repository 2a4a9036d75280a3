package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace   = "agro"
	tokenPrefix    = "token"
	snapshotPrefix = "cart_snapshot"
	idempotencyKey = "idempotency"
)

// ErrMiss is returned when a requested key does not exist.
var ErrMiss = errors.New("redis: key not found")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the redis helpers used for token storage and the cart snapshot cache.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(raw *redis.Client) *Client {
	return &Client{store: raw, raw: raw}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Get returns a string value stored at key, or ErrMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	value, err := c.store.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return value, err
}

// AccessTokenKey returns the namespaced key holding a user's bearer token.
func (c *Client) AccessTokenKey(userKey string) string {
	return c.buildKey(tokenPrefix, userKey)
}

// CartSnapshotKey returns the namespaced key holding the last confirmed cart.
func (c *Client) CartSnapshotKey(userKey string) string {
	return c.buildKey(snapshotPrefix, userKey)
}

// IdempotencyKey returns the namespaced key for a replayable request.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyKey, scope, id)
}

func (c *Client) StoreAccessToken(ctx context.Context, userKey, token string, ttl time.Duration) error {
	return c.Set(ctx, c.AccessTokenKey(userKey), token, ttl)
}

func (c *Client) GetAccessToken(ctx context.Context, userKey string) (string, error) {
	return c.Get(ctx, c.AccessTokenKey(userKey))
}

func (c *Client) RevokeAccessToken(ctx context.Context, userKey string) error {
	return c.Del(ctx, c.AccessTokenKey(userKey))
}

// SaveCartSnapshot stores an encoded cart snapshot.
func (c *Client) SaveCartSnapshot(ctx context.Context, userKey string, payload []byte, ttl time.Duration) error {
	return c.Set(ctx, c.CartSnapshotKey(userKey), string(payload), ttl)
}

// LoadCartSnapshot returns the encoded snapshot or ErrMiss.
func (c *Client) LoadCartSnapshot(ctx context.Context, userKey string) ([]byte, error) {
	value, err := c.Get(ctx, c.CartSnapshotKey(userKey))
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
