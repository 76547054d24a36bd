// Package apitoken issues the long-lived bearer token each account may hold.
//
// Every account has at most one token. Issuing is get-or-create: the first
// call mints a 40-char hex key, later calls return the same value until the
// token is revoked. Keys are stored as issued so they can be handed back.
package apitoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"warden/cmd/security/token"
)

// KeyLen is the length of every issued key.
const KeyLen = 40

// flightTimeout bounds a shared get-or-create against the store.
const flightTimeout = 10 * time.Second

// ErrNotFound is returned when no token matches.
var ErrNotFound = errors.New("token not found")

// Token binds a key to an account.
type Token struct {
	Key       string
	AccountID string
	CreatedAt time.Time
}

// Store persists tokens with at most one row per account.
type Store interface {
	// GetByAccount returns the account's token or ErrNotFound.
	GetByAccount(ctx context.Context, accountID string) (Token, error)
	// GetByKey returns the token for key or ErrNotFound.
	GetByKey(ctx context.Context, key string) (Token, error)
	// InsertIfAbsent stores t unless the account already has a token.
	InsertIfAbsent(ctx context.Context, t Token) (inserted bool, err error)
	// Delete removes the account's token; missing tokens are a no-op.
	Delete(ctx context.Context, accountID string) error
}

// Issuer implements get-or-create over a Store.
type Issuer struct {
	store Store
	group singleflight.Group
}

// NewIssuer constructs an Issuer.
func NewIssuer(store Store) *Issuer {
	return &Issuer{store: store}
}

type issued struct {
	tok     Token
	created bool
}

// GetOrCreate returns the account's token, creating it when absent.
// created is true only for the caller whose insert won.
func (i *Issuer) GetOrCreate(ctx context.Context, accountID string, now time.Time) (Token, bool, error) {
	if strings.TrimSpace(accountID) == "" {
		return Token{}, false, errors.New("apitoken: empty account id")
	}

	// leader is written only by the flight this caller started; the channel
	// receive orders it before the read below.
	leader := false
	ch := i.group.DoChan(accountID, func() (any, error) {
		leader = true
		// The flight is shared, so it must outlive the caller that started it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return i.getOrCreate(fctx, accountID, now)
	})

	select {
	case <-ctx.Done():
		return Token{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, false, res.Err
		}
		out := res.Val.(issued)
		// Joined callers observe an existing token.
		return out.tok, out.created && leader, nil
	}
}

func (i *Issuer) getOrCreate(ctx context.Context, accountID string, now time.Time) (issued, error) {
	tok, err := i.store.GetByAccount(ctx, accountID)
	if err == nil {
		return issued{tok: tok}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return issued{}, err
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	key, err := token.NewHexKey(KeyLen / 2)
	if err != nil {
		return issued{}, err
	}

	fresh := Token{Key: key, AccountID: accountID, CreatedAt: now}
	inserted, err := i.store.InsertIfAbsent(ctx, fresh)
	if err != nil {
		return issued{}, err
	}
	if inserted {
		return issued{tok: fresh, created: true}, nil
	}

	// Lost the race to another process: read the winner's token.
	tok, err = i.store.GetByAccount(ctx, accountID)
	if err != nil {
		return issued{}, err
	}
	return issued{tok: tok}, nil
}

// Validate returns the account bound to key, or ErrNotFound.
func (i *Issuer) Validate(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if !wellFormed(key) {
		return "", ErrNotFound
	}
	tok, err := i.store.GetByKey(ctx, key)
	if err != nil {
		return "", err
	}
	return tok.AccountID, nil
}

// Revoke deletes the account's token.
func (i *Issuer) Revoke(ctx context.Context, accountID string) error {
	return i.store.Delete(ctx, accountID)
}

func wellFormed(key string) bool {
	if len(key) != KeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
