package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"warden/cmd/identity"
)

// EnvPrefix is prepended to every variable read by LoadConfig.
const EnvPrefix = "WARDEN_"

// Config contains the runtime configuration loaded from WARDEN_* environment variables.
// Component settings (password, session, api, federated) are loaded by their packages.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// json (default), text or pretty.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogColor  bool   `env:"LOG_COLOR"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Empty selects the in-memory stores.
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"warden"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	// If false, migrations are expected to be applied out of band.
	DBMigrate bool `env:"DB_MIGRATE" envDefault:"true"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB"`

	// If true, WARDEN_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool `env:"REQUIRE_TOKEN_HMAC"`

	AutoActivate                bool `env:"AUTO_ACTIVATE"`
	RevokeTokenOnPasswordChange bool `env:"REVOKE_TOKEN_ON_PASSWORD_CHANGE"`

	NotifyWebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

// LoadConfig parses Config from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("app config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would make the server misbehave.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("WARDEN_HTTP_ADDR is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("WARDEN_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	if !identity.ValidSchemaName(c.DBSchema) {
		return fmt.Errorf("WARDEN_DB_SCHEMA: invalid schema name %q", c.DBSchema)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("WARDEN_DB_MIN_CONNS/WARDEN_DB_MAX_CONNS: invalid pool bounds %d/%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.NotifyWebhookURL != "" {
		u, err := url.Parse(c.NotifyWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("WARDEN_NOTIFY_WEBHOOK_URL: must be an absolute http(s) URL")
		}
	}
	return nil
}

// DBEnabled reports whether Postgres-backed stores are configured.
func (c Config) DBEnabled() bool { return strings.TrimSpace(c.DatabaseURL) != "" }
