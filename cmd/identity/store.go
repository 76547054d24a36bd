package identity

import (
	"context"
	"time"
)

// Account is warden's canonical principal. It carries no credential material.
type Account struct {
	ID       string
	Username string
	Email    string
	Name     string
	Tagline  string
	TimeZone string

	IsActive bool
	IsStaff  bool
	IsAdmin  bool

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// FederatedIdentity links an external provider subject to an account.
type FederatedIdentity struct {
	Provider    string
	Subject     string
	AccountID   string
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// CreateAccountInput describes a new account.
// Credential is an already-encoded password hash; empty means unusable.
type CreateAccountInput struct {
	Username   string
	Email      string
	Name       string
	Tagline    string
	TimeZone   string
	Credential string
	IsActive   bool
	Now        time.Time
}

// ProfileUpdate changes profile fields of an account. Nil fields are left alone.
type ProfileUpdate struct {
	Username *string
	Name     *string
	Tagline  *string
	TimeZone *string
	Now      time.Time
}

// Page bounds for ListAccounts.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListAccountsInput pages accounts in id order, starting after After.
type ListAccountsInput struct {
	After string
	Limit int
}

// Store is the credential persistence boundary.
type Store interface {
	// CreateAccount returns ConflictError{Field: "username"|"email"} when taken.
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	GetAccountByID(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)

	// GetCredential returns the encoded password hash, "" for unusable credentials.
	GetCredential(ctx context.Context, accountID string) (string, error)
	SetPassword(ctx context.Context, accountID, credential string, now time.Time) error
	SetActive(ctx context.Context, accountID string, active bool, now time.Time) error
	TouchLastLogin(ctx context.Context, accountID string, now time.Time) error

	// UpdateProfile applies upd with the same checks as CreateAccount and
	// returns ConflictError{Field: "username"} when the new username is taken.
	UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Account, error)
	ListAccounts(ctx context.Context, in ListAccountsInput) ([]Account, error)

	// LinkFederatedIdentity is idempotent for the same account and returns
	// ConflictError{Field: "federated_identity"} when linked elsewhere.
	LinkFederatedIdentity(ctx context.Context, provider, subject, accountID string, now time.Time) error
	GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (Account, error)
	// CreateFederatedAccount creates the account and its link atomically.
	CreateFederatedAccount(ctx context.Context, in CreateAccountInput, provider, subject string) (Account, error)
}
