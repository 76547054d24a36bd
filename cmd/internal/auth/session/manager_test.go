package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"warden/cmd/security/token"
)

func newTestManager(cfg Config) (*Manager, *MemoryStore) {
	st := NewMemoryStore()
	return NewManager(cfg, st, token.NewHasher([]byte("test-hmac-key-0123456789abcdef012345"))), st
}

func TestManager_StartValidate(t *testing.T) {
	m, st := newTestManager(DefaultConfig())
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	iss, err := m.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// 32 bytes base64url without padding.
	if len(iss.SessionID) != 43 || strings.ContainsAny(iss.SessionID, "+/=") {
		t.Fatalf("unexpected session id %q", iss.SessionID)
	}
	if !iss.ExpiresAt.Equal(now.Add(14 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", iss.ExpiresAt)
	}

	got, err := m.Validate(ctx, iss.SessionID, now.Add(time.Minute))
	if err != nil || got != "acct-1" {
		t.Fatalf("validate: %q %v", got, err)
	}

	// The plaintext identifier is never stored.
	for h := range st.byHash {
		if h == iss.SessionID || len(h) != token.HashHexLen {
			t.Fatalf("store holds unexpected key %q", h)
		}
	}
}

func TestManager_ValidateFailsClosed(t *testing.T) {
	m, _ := newTestManager(Config{TTL: time.Hour, IDBytes: 32})
	ctx := context.Background()
	now := time.Now().UTC()

	iss, err := m.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	cases := map[string]struct {
		id  string
		now time.Time
	}{
		"empty":     {"", now},
		"short":     {"abc", now},
		"bad chars": {strings.Repeat("!", 43), now},
		"unknown":   {strings.Repeat("A", 43), now},
		"expired":   {iss.SessionID, now.Add(2 * time.Hour)},
	}
	for name, tc := range cases {
		if _, err := m.Validate(ctx, tc.id, tc.now); !errors.Is(err, ErrNotActive) {
			t.Fatalf("%s: expected ErrNotActive, got %v", name, err)
		}
	}
}

func TestManager_EndIsIdempotent(t *testing.T) {
	m, _ := newTestManager(DefaultConfig())
	ctx := context.Background()
	now := time.Now().UTC()

	iss, err := m.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.End(ctx, iss.SessionID, now); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := m.End(ctx, iss.SessionID, now); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if err := m.End(ctx, "garbage", now); err != nil {
		t.Fatalf("end garbage: %v", err)
	}
	if _, err := m.Validate(ctx, iss.SessionID, now); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after end, got %v", err)
	}
}

func TestManager_ConcurrentSessionsAndEndAll(t *testing.T) {
	m, st := newTestManager(DefaultConfig())
	ctx := context.Background()
	now := time.Now().UTC()

	a, _ := m.Start(ctx, "acct-1", now)
	b, _ := m.Start(ctx, "acct-1", now)
	other, _ := m.Start(ctx, "acct-2", now)

	if n := st.ActiveCount("acct-1", now); n != 2 {
		t.Fatalf("expected 2 active sessions, got %d", n)
	}

	if err := m.EndOthers(ctx, "acct-1", a.SessionID, now); err != nil {
		t.Fatalf("end others: %v", err)
	}
	if _, err := m.Validate(ctx, a.SessionID, now); err != nil {
		t.Fatalf("kept session should survive: %v", err)
	}
	if _, err := m.Validate(ctx, b.SessionID, now); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected b ended, got %v", err)
	}

	if err := m.EndAll(ctx, "acct-1", now); err != nil {
		t.Fatalf("end all: %v", err)
	}
	if n := st.ActiveCount("acct-1", now); n != 0 {
		t.Fatalf("expected no active sessions, got %d", n)
	}
	if _, err := m.Validate(ctx, other.SessionID, now); err != nil {
		t.Fatalf("other account must be untouched: %v", err)
	}
}

func TestManager_HasherChangeInvalidates(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := NewManager(DefaultConfig(), st, token.NewHasher([]byte("key-one-0123456789abcdef0123456789")))
	iss, err := a.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	b := NewManager(DefaultConfig(), st, token.NewHasher(nil))
	if _, err := b.Validate(ctx, iss.SessionID, now); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive under a different hasher, got %v", err)
	}
}

type touchCountingStore struct {
	*MemoryStore
	calls int
	err   error
}

func (s *touchCountingStore) Touch(ctx context.Context, now time.Time, secretHash string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Touch(ctx, now, secretHash)
}

func TestManager_TouchIsThrottledAndLogged(t *testing.T) {
	st := &touchCountingStore{MemoryStore: NewMemoryStore()}
	var logs bytes.Buffer
	cfg := Config{TTL: time.Hour, IDBytes: 32, TouchInterval: time.Minute}
	m := NewManager(cfg, st, token.NewHasher(nil), WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	iss, err := m.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	steps := []struct {
		after     time.Duration
		wantCalls int
	}{
		{30 * time.Second, 0},
		{61 * time.Second, 1},
		{90 * time.Second, 1},
		{2*time.Minute + 2*time.Second, 2},
	}
	for _, s := range steps {
		if _, err := m.Validate(ctx, iss.SessionID, now.Add(s.after)); err != nil {
			t.Fatalf("validate at +%v: %v", s.after, err)
		}
		if st.calls != s.wantCalls {
			t.Fatalf("at +%v: touches=%d want=%d", s.after, st.calls, s.wantCalls)
		}
	}

	st.err = errors.New("db down")
	got, err := m.Validate(ctx, iss.SessionID, now.Add(10*time.Minute))
	if err != nil || got != "acct-1" {
		t.Fatalf("touch failure must not fail validation: %q %v", got, err)
	}
	if !strings.Contains(logs.String(), "session.touch.fail") || !strings.Contains(logs.String(), "db down") {
		t.Fatalf("expected touch failure log, got %q", logs.String())
	}
}

func TestManager_ZeroTouchIntervalTouchesEveryTime(t *testing.T) {
	st := &touchCountingStore{MemoryStore: NewMemoryStore()}
	m := NewManager(Config{TTL: time.Hour, IDBytes: 32}, st, token.NewHasher(nil))
	ctx := context.Background()
	now := time.Now().UTC()

	iss, err := m.Start(ctx, "acct-1", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := m.Validate(ctx, iss.SessionID, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	if st.calls != 3 {
		t.Fatalf("touches=%d want=3", st.calls)
	}
}
