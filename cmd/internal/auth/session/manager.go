package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/security/token"
)

// Manager implements the high-level session operations.
type Manager struct {
	cfg    Config
	store  Store
	hasher token.Hasher
	log    *slog.Logger
}

// ManagerOption configures optional Manager behaviour.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Issued is the result of starting a session.
// SessionID is the plaintext identifier; it is never stored or logged.
type Issued struct {
	ID        string
	SessionID string
	ExpiresAt time.Time
}

// NewManager constructs a Manager.
func NewManager(cfg Config, store Store, hasher token.Hasher, opts ...ManagerOption) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.IDBytes < 32 || cfg.IDBytes > 64 {
		cfg.IDBytes = DefaultConfig().IDBytes
	}
	if cfg.TouchInterval < 0 {
		cfg.TouchInterval = DefaultConfig().TouchInterval
	}
	m := &Manager{cfg: cfg, store: store, hasher: hasher, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start creates a session for accountID.
func (m *Manager) Start(ctx context.Context, accountID string, now time.Time) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.NewOpaque(m.cfg.IDBytes)
	if err != nil {
		return Issued{}, err
	}
	exp := now.Add(m.cfg.TTL)

	id, err := m.store.Create(ctx, now, accountID, m.hasher.Hash(plain), exp)
	if err != nil {
		return Issued{}, err
	}
	return Issued{ID: id, SessionID: plain, ExpiresAt: exp}, nil
}

// Validate returns the account bound to sessionID, or ErrNotActive.
// last_used_at is refreshed best-effort, at most once per TouchInterval.
func (m *Manager) Validate(ctx context.Context, sessionID string, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	hash, ok := m.hash(sessionID)
	if !ok {
		return "", ErrNotActive
	}

	row, err := m.store.GetBySecretHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if !token.EqualHex(row.SecretHash, hash) || !row.Active(now) {
		return "", ErrNotActive
	}

	if m.touchDue(row, now) {
		if err := m.store.Touch(ctx, now, hash); err != nil {
			m.log.WarnContext(ctx, "session.touch.fail", "session", row.ID, "err", err)
		}
	}
	return row.AccountID, nil
}

func (m *Manager) touchDue(row Row, now time.Time) bool {
	if row.LastUsedAt == nil || m.cfg.TouchInterval == 0 {
		return true
	}
	return now.Sub(*row.LastUsedAt) >= m.cfg.TouchInterval
}

// End revokes sessionID. Unknown, malformed or ended sessions are a no-op.
func (m *Manager) End(ctx context.Context, sessionID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	hash, ok := m.hash(sessionID)
	if !ok {
		return nil
	}
	return m.store.Revoke(ctx, now, hash)
}

// EndAll revokes every session of accountID.
func (m *Manager) EndAll(ctx context.Context, accountID string, now time.Time) error {
	return m.EndOthers(ctx, accountID, "", now)
}

// EndOthers revokes every session of accountID except keepSessionID.
func (m *Manager) EndOthers(ctx context.Context, accountID, keepSessionID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	keep, _ := m.hash(keepSessionID)
	return m.store.RevokeAll(ctx, now, accountID, keep)
}

// hash rejects identifiers that could not have come from Start.
func (m *Manager) hash(sessionID string) (string, bool) {
	sessionID = strings.TrimSpace(sessionID)
	if len(sessionID) < 32 || len(sessionID) > 128 {
		return "", false
	}
	for i := 0; i < len(sessionID); i++ {
		c := sessionID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return "", false
		}
	}
	return m.hasher.Hash(sessionID), true
}
