package session

import (
	"context"
	"sync"
	"time"

	"warden/cmd/identity"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*Row)}
}

var _ Store = (*MemoryStore)(nil)

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, now time.Time, accountID, secretHash string, expiresAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lu := now
	s.byHash[secretHash] = &Row{
		ID:         id,
		AccountID:  accountID,
		SecretHash: secretHash,
		CreatedAt:  now,
		LastUsedAt: &lu,
		ExpiresAt:  expiresAt,
	}
	return id, nil
}

// GetBySecretHash implements Store.
func (s *MemoryStore) GetBySecretHash(ctx context.Context, secretHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byHash[secretHash]
	if !ok {
		return Row{}, ErrNotActive
	}
	return *r, nil
}

// Touch implements Store.
func (s *MemoryStore) Touch(ctx context.Context, now time.Time, secretHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byHash[secretHash]; ok && r.Active(now) {
		t := now
		r.LastUsedAt = &t
	}
	return nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, secretHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byHash[secretHash]; ok && r.RevokedAt == nil {
		t := now
		r.RevokedAt = &t
	}
	return nil
}

// RevokeAll implements Store.
func (s *MemoryStore) RevokeAll(ctx context.Context, now time.Time, accountID, keepHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for h, r := range s.byHash {
		if r.AccountID != accountID || r.RevokedAt != nil || (keepHash != "" && h == keepHash) {
			continue
		}
		t := now
		r.RevokedAt = &t
	}
	return nil
}

// ActiveCount returns the number of active sessions of accountID.
func (s *MemoryStore) ActiveCount(accountID string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.byHash {
		if r.AccountID == accountID && r.Active(now) {
			n++
		}
	}
	return n
}
