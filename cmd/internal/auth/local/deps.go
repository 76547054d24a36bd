package local

import (
	"context"
	"time"

	"warden/cmd/internal/auth/apitoken"
	"warden/cmd/internal/auth/notify"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

var (
	_ PasswordHasher = (*password.Hasher)(nil)
	_ Sessions       = (*session.Manager)(nil)
	_ Tokens         = (*apitoken.Issuer)(nil)
	_ Notifier       = (*notify.Dispatcher)(nil)
)

// PasswordHasher is satisfied by *password.Hasher.
type PasswordHasher interface {
	Validate(plain string) error
	Hash(plain string) (string, error)
	Verify(plain, credential string) bool
	NeedsRehash(credential string) bool
}

// Sessions is satisfied by *session.Manager.
type Sessions interface {
	Start(ctx context.Context, accountID string, now time.Time) (session.Issued, error)
	Validate(ctx context.Context, sessionID string, now time.Time) (string, error)
	End(ctx context.Context, sessionID string, now time.Time) error
	EndOthers(ctx context.Context, accountID, keepSessionID string, now time.Time) error
}

// Tokens is satisfied by *apitoken.Issuer.
type Tokens interface {
	GetOrCreate(ctx context.Context, accountID string, now time.Time) (apitoken.Token, bool, error)
	Validate(ctx context.Context, key string) (string, error)
	Revoke(ctx context.Context, accountID string) error
}

// Notifier is satisfied by *notify.Dispatcher. It must not block.
type Notifier interface {
	NewAccount(ctx context.Context, n notify.NewAccount)
}

type noopNotifier struct{}

func (noopNotifier) NewAccount(context.Context, notify.NewAccount) {}
