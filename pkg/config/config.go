package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Auth    AuthConfig
	Redis   RedisConfig
	Push    PushConfig
	Breaker BreakerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Push.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string   `envconfig:"AGRO_APP_ENV" default:"dev"`
	Addr            string   `envconfig:"AGRO_APP_ADDR" default:":8090"`
	LogLevel        string   `envconfig:"AGRO_LOG_LEVEL" default:"info"`
	LogWarnStack    bool     `envconfig:"AGRO_LOG_WARN_STACK" default:"false"`
	DefaultLanguage string   `envconfig:"AGRO_DEFAULT_LANGUAGE" default:"es"`
	CORSOrigins     []string `envconfig:"AGRO_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type BackendConfig struct {
	APIBaseURL          string        `envconfig:"AGRO_API_BASE_URL" required:"true"`
	MediaBaseURL        string        `envconfig:"AGRO_MEDIA_BASE_URL"`
	PushBaseURL         string        `envconfig:"AGRO_PUSH_BASE_URL" required:"true"`
	RequestTimeout      time.Duration `envconfig:"AGRO_REQUEST_TIMEOUT" default:"5s"`
	QuantityUpdateMode  string        `envconfig:"AGRO_QUANTITY_UPDATE_MODE" default:"replace"`
	ReloadAfterMutation bool          `envconfig:"AGRO_RELOAD_AFTER_MUTATION" default:"true"`
	MarkReadSync        bool          `envconfig:"AGRO_MARK_READ_SYNC" default:"false"`
}

func (b BackendConfig) validate() error {
	for env, raw := range map[string]string{
		EnvAPIBaseURL:  b.APIBaseURL,
		EnvPushBaseURL: b.PushBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute url, got %q", env, raw)
		}
	}
	switch strings.ToLower(strings.TrimSpace(b.QuantityUpdateMode)) {
	case UpdateModeReplace, UpdateModePut:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvQuantityUpdateMode, UpdateModeReplace, UpdateModePut, b.QuantityUpdateMode)
	}
	if b.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvRequestTimeout)
	}
	return nil
}

// MediaBase falls back to the API base when no dedicated media host is set.
func (b BackendConfig) MediaBase() string {
	if strings.TrimSpace(b.MediaBaseURL) != "" {
		return b.MediaBaseURL
	}
	return b.APIBaseURL
}

type AuthConfig struct {
	AccessToken string `envconfig:"AGRO_ACCESS_TOKEN"`
	UserKey     string `envconfig:"AGRO_USER_KEY" default:"default"`
}

// RedisConfig is optional; an empty URL keeps tokens and snapshots in memory.
type RedisConfig struct {
	URL          string        `envconfig:"AGRO_REDIS_URL"`
	PoolSize     int           `envconfig:"AGRO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGRO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGRO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGRO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGRO_REDIS_WRITE_TIMEOUT" default:"5s"`
	SnapshotTTL  time.Duration `envconfig:"AGRO_REDIS_SNAPSHOT_TTL" default:"24h"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type PushConfig struct {
	ReconnectBase     time.Duration `envconfig:"AGRO_PUSH_RECONNECT_BASE" default:"500ms"`
	ReconnectMax      time.Duration `envconfig:"AGRO_PUSH_RECONNECT_MAX" default:"30s"`
	ReconnectAttempts uint64        `envconfig:"AGRO_PUSH_RECONNECT_ATTEMPTS" default:"8"`
	HandshakeTimeout  time.Duration `envconfig:"AGRO_PUSH_HANDSHAKE_TIMEOUT" default:"10s"`
}

func (p PushConfig) validate() error {
	if p.ReconnectBase <= 0 || p.ReconnectMax < p.ReconnectBase {
		return fmt.Errorf("%s must be positive and not exceed %s", EnvPushReconnectBase, EnvPushReconnectMax)
	}
	return nil
}

type BreakerConfig struct {
	MaxRequests         uint32        `envconfig:"AGRO_BREAKER_MAX_REQUESTS" default:"1"`
	Interval            time.Duration `envconfig:"AGRO_BREAKER_INTERVAL" default:"60s"`
	Timeout             time.Duration `envconfig:"AGRO_BREAKER_TIMEOUT" default:"15s"`
	ConsecutiveFailures uint32        `envconfig:"AGRO_BREAKER_CONSECUTIVE_FAILURES" default:"5"`
}
