package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations_Ordered(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, ".")
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	want := []string{"00001_accounts.sql", "00002_sessions.sql", "00003_api_tokens.sql"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Fatalf("migration %d: got %s want %s", i, e.Name(), want[i])
		}
		b, err := fs.ReadFile(Migrations, e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		s := string(b)
		if !strings.Contains(s, "-- +goose Up") || !strings.Contains(s, "-- +goose Down") {
			t.Fatalf("%s: missing goose annotations", e.Name())
		}
	}
}

func TestApply_RejectsBadInput(t *testing.T) {
	if err := Apply(t.Context(), nil, "warden"); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}
