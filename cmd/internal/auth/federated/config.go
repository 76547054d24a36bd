package federated

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the federated login configuration.
//
// Env surface (all prefixed WARDEN_):
//   - FEDERATED_TIMEOUT (default 10s)
//   - FACEBOOK_ENABLED (default true), FACEBOOK_GRAPH_URL, FACEBOOK_APP_SECRET
//   - FEDERATED_JWT_PROVIDER (default "jwt"), FEDERATED_JWT_SECRET,
//     FEDERATED_JWT_ISSUER, FEDERATED_JWT_AUDIENCE, FEDERATED_JWT_LEEWAY (default 30s)
//
// The JWT provider is registered only when a secret is set.
type Config struct {
	Timeout  time.Duration  `env:"FEDERATED_TIMEOUT" envDefault:"10s"`
	Facebook FacebookConfig `envPrefix:"FACEBOOK_"`
	JWT      JWTConfig      `envPrefix:"FEDERATED_JWT_"`
}

type FacebookConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"true"`
	GraphURL  string `env:"GRAPH_URL" envDefault:"https://graph.facebook.com"`
	AppSecret string `env:"APP_SECRET"`
}

type JWTConfig struct {
	Provider string        `env:"PROVIDER" envDefault:"jwt"`
	Secret   string        `env:"SECRET"`
	Issuer   string        `env:"ISSUER"`
	Audience string        `env:"AUDIENCE"`
	Leeway   time.Duration `env:"LEEWAY" envDefault:"30s"`
}

// DefaultTimeout bounds provider verification when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

const maxTimeout = 2 * time.Minute

// LoadConfigFromEnv parses and validates Config.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "WARDEN_"}); err != nil {
		return Config{}, fmt.Errorf("federated config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges only; provider settings are checked by BuildRegistry.
func (c Config) Validate() error {
	if c.Timeout <= 0 || c.Timeout > maxTimeout {
		return fmt.Errorf("WARDEN_FEDERATED_TIMEOUT: out of range (0..%s]", maxTimeout)
	}
	if c.JWT.Leeway < 0 {
		return errors.New("WARDEN_FEDERATED_JWT_LEEWAY: must not be negative")
	}
	return nil
}

// BuildRegistry registers the configured providers. client is the base HTTP
// client for outbound provider calls.
func (c Config) BuildRegistry(client *http.Client) (*Registry, error) {
	r := NewRegistry()
	if c.Facebook.Enabled {
		r.Register(NewFacebook(c.Facebook.GraphURL, c.Facebook.AppSecret, client))
	}
	if c.JWT.Secret != "" {
		p, err := NewJWTProvider(c.JWT.Provider, []byte(c.JWT.Secret), c.JWT.Issuer, c.JWT.Audience, c.JWT.Leeway)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}
	return r, nil
}
