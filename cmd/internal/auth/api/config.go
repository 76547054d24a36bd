package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config controls the Account API transport.
type Config struct {
	SessionCookieName string `env:"SESSION_COOKIE_NAME" envDefault:"sessionid"`
	CookiePath        string `env:"COOKIE_PATH" envDefault:"/"`
	CookieDomain      string `env:"COOKIE_DOMAIN"`
	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite    string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	MaxBodyBytes int64 `env:"API_MAX_BODY_BYTES" envDefault:"1048576"`
	// If true, X-Forwarded-For / X-Real-IP are trusted for client addresses.
	TrustProxy bool `env:"API_TRUST_PROXY"`

	DefaultProvider string `env:"FEDERATED_DEFAULT_PROVIDER" envDefault:"facebook"`
}

const (
	defaultCookieName   = "sessionid"
	defaultMaxBodyBytes = 1 << 20
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SessionCookieName: defaultCookieName,
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    "lax",
		MaxBodyBytes:      defaultMaxBodyBytes,
		DefaultProvider:   "facebook",
	}
}

// LoadConfigFromEnv loads Config from WARDEN_-prefixed variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "WARDEN_"}); err != nil {
		return Config{}, fmt.Errorf("api config: %w", err)
	}
	if _, err := parseSameSite(cfg.CookieSameSite); err != nil {
		return Config{}, err
	}
	return cfg.clamped(), nil
}

func (c Config) clamped() Config {
	c.SessionCookieName = strings.TrimSpace(c.SessionCookieName)
	if c.SessionCookieName == "" {
		c.SessionCookieName = defaultCookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if strings.TrimSpace(c.DefaultProvider) == "" {
		c.DefaultProvider = "facebook"
	}
	return c
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("WARDEN_COOKIE_SAMESITE: unknown value %q", s)
	}
}
