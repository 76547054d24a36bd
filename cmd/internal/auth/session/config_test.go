package session

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("WARDEN_SESSION_TTL", "")
	t.Setenv("WARDEN_SESSION_ID_BYTES", "")
	t.Setenv("WARDEN_SESSION_TOUCH_INTERVAL", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Override(t *testing.T) {
	t.Setenv("WARDEN_SESSION_TTL", "24h")
	t.Setenv("WARDEN_SESSION_ID_BYTES", "48")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTL != 24*time.Hour || cfg.IDBytes != 48 {
		t.Fatalf("override failed: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"negative ttl":   {"WARDEN_SESSION_TTL", "-5m"},
		"garbage ttl":    {"WARDEN_SESSION_TTL", "soon"},
		"too long ttl":   {"WARDEN_SESSION_TTL", "9000h"},
		"small id bytes": {"WARDEN_SESSION_ID_BYTES", "16"},
		"large id bytes": {"WARDEN_SESSION_ID_BYTES", "65"},
		"negative touch": {"WARDEN_SESSION_TOUCH_INTERVAL", "-1s"},
		"touch over ttl": {"WARDEN_SESSION_TOUCH_INTERVAL", "400h"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfigFromEnv()
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
