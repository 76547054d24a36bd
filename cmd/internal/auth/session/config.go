package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// TTL is the lifetime of a session from login.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"336h"`

	// IDBytes is the entropy of the opaque session identifier.
	IDBytes int `env:"SESSION_ID_BYTES" envDefault:"32"`

	// TouchInterval is the minimum gap between last_used_at writes for one session.
	// Zero writes on every validation.
	TouchInterval time.Duration `env:"SESSION_TOUCH_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns the two-week, 32-byte baseline with one-minute touches.
func DefaultConfig() Config {
	return Config{
		TTL:           14 * 24 * time.Hour,
		IDBytes:       32,
		TouchInterval: time.Minute,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - WARDEN_SESSION_TTL (Go duration, > 0, <= 180 days)
//   - WARDEN_SESSION_ID_BYTES (32..64)
//   - WARDEN_SESSION_TOUCH_INTERVAL (Go duration, >= 0, < TTL)
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "WARDEN_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks bounds.
func (c Config) Validate() error {
	if c.TTL <= 0 || c.TTL > 180*24*time.Hour {
		return fmt.Errorf("%w: WARDEN_SESSION_TTL out of range", ErrConfig)
	}
	if c.IDBytes < 32 || c.IDBytes > 64 {
		return fmt.Errorf("%w: WARDEN_SESSION_ID_BYTES out of range [32..64]", ErrConfig)
	}
	if c.TouchInterval < 0 || c.TouchInterval >= c.TTL {
		return fmt.Errorf("%w: WARDEN_SESSION_TOUCH_INTERVAL out of range", ErrConfig)
	}
	return nil
}
