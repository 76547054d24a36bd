package apitoken

import (
	"context"
	"sync"

	"warden/cmd/security/token"
)

// MemoryStore is an in-process Store keyed by account.
type MemoryStore struct {
	mu        sync.Mutex
	byAccount map[string]Token
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAccount: make(map[string]Token)}
}

var _ Store = (*MemoryStore)(nil)

// GetByAccount implements Store.
func (s *MemoryStore) GetByAccount(ctx context.Context, accountID string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byAccount[accountID]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

// GetByKey implements Store. Every stored key is compared in constant time.
func (s *MemoryStore) GetByKey(ctx context.Context, key string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found Token
		ok    bool
	)
	for _, t := range s.byAccount {
		if token.EqualString(t.Key, key) {
			found, ok = t, true
		}
	}
	if !ok {
		return Token{}, ErrNotFound
	}
	return found, nil
}

// InsertIfAbsent implements Store.
func (s *MemoryStore) InsertIfAbsent(ctx context.Context, t Token) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAccount[t.AccountID]; ok {
		return false, nil
	}
	s.byAccount[t.AccountID] = t
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byAccount, accountID)
	return nil
}

// Len returns the number of stored tokens.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAccount)
}
