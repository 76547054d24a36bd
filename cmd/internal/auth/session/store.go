package session

import (
	"context"
	"time"
)

// Row mirrors the sessions table.
type Row struct {
	ID         string
	AccountID  string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the row is usable at now.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store abstracts persistence for session state.
// Sessions are addressed by the hash of their opaque identifier.
type Store interface {
	// Create inserts a new session row and returns its id.
	Create(ctx context.Context, now time.Time, accountID, secretHash string, expiresAt time.Time) (string, error)

	// GetBySecretHash loads a row; ErrNotActive when none matches.
	GetBySecretHash(ctx context.Context, secretHash string) (Row, error)

	// Touch updates last_used_at for an active session.
	Touch(ctx context.Context, now time.Time, secretHash string) error

	// Revoke revokes one session. Unknown or revoked sessions are a no-op.
	Revoke(ctx context.Context, now time.Time, secretHash string) error

	// RevokeAll revokes every active session of an account except keepHash ("" keeps none).
	RevokeAll(ctx context.Context, now time.Time, accountID, keepHash string) error
}
