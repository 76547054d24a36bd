package federated

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.True(t, cfg.Facebook.Enabled)
	require.Equal(t, DefaultGraphURL, cfg.Facebook.GraphURL)
	require.Equal(t, "jwt", cfg.JWT.Provider)

	r, err := cfg.BuildRegistry(nil)
	require.NoError(t, err)
	require.Equal(t, []string{FacebookName}, r.Names())
}

func TestLoadConfigFromEnv_JWTProvider(t *testing.T) {
	t.Setenv("WARDEN_FEDERATED_TIMEOUT", "3s")
	t.Setenv("WARDEN_FACEBOOK_ENABLED", "false")
	t.Setenv("WARDEN_FEDERATED_JWT_PROVIDER", "acme")
	t.Setenv("WARDEN_FEDERATED_JWT_SECRET", strings.Repeat("k", MinJWTSecretLen))
	t.Setenv("WARDEN_FEDERATED_JWT_ISSUER", "https://id.acme.test")
	t.Setenv("WARDEN_FEDERATED_JWT_AUDIENCE", "warden")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Timeout)

	r, err := cfg.BuildRegistry(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"acme"}, r.Names())

	p, err := r.Get("ACME")
	require.NoError(t, err)
	require.Equal(t, "acme", p.Name())
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("WARDEN_FEDERATED_TIMEOUT", "0s")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}

func TestBuildRegistry_BadJWTSettings(t *testing.T) {
	cfg := Config{Timeout: time.Second, JWT: JWTConfig{Provider: "jwt", Secret: "short"}}
	_, err := cfg.BuildRegistry(nil)
	require.Error(t, err)
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := NewRegistry().Get("facebook")
	require.ErrorIs(t, err, ErrUnknownProvider)
}
