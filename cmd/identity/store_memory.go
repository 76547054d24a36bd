package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu sync.RWMutex

	accounts   map[string]*memAccount // id -> account
	byUsername map[string]string      // username -> id
	byEmail    map[string]string      // email -> id
	federated  map[federatedKey]*FederatedIdentity
}

type memAccount struct {
	account    Account
	credential string
}

type federatedKey struct {
	provider string
	subject  string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*memAccount),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		federated:  make(map[federatedKey]*FederatedIdentity),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateAccount implements Store.
func (s *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	in, err := normalizeInput(op, in)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(op, in)
}

// CreateFederatedAccount implements Store.
func (s *MemoryStore) CreateFederatedAccount(ctx context.Context, in CreateAccountInput, provider, subject string) (Account, error) {
	const op = "identity.CreateFederatedAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return Account{}, err
	}
	in, err = normalizeInput(op, in)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.federated[key]; ok {
		return Account{}, ConflictError{Op: op, Field: "federated_identity"}
	}
	acc, err := s.insertLocked(op, in)
	if err != nil {
		return Account{}, err
	}
	s.federated[key] = &FederatedIdentity{
		Provider:  key.provider,
		Subject:   key.subject,
		AccountID: acc.ID,
		CreatedAt: in.Now,
	}
	return acc, nil
}

func (s *MemoryStore) insertLocked(op string, in CreateAccountInput) (Account, error) {
	if _, ok := s.byUsername[in.Username]; ok {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[in.Email]; ok {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return Account{}, err
	}

	acc := Account{
		ID:        id,
		Username:  in.Username,
		Email:     in.Email,
		Name:      in.Name,
		Tagline:   in.Tagline,
		TimeZone:  in.TimeZone,
		IsActive:  in.IsActive,
		CreatedAt: in.Now,
	}
	s.accounts[id] = &memAccount{account: acc, credential: in.Credential}
	s.byUsername[acc.Username] = id
	s.byEmail[acc.Email] = id
	return acc, nil
}

// GetAccountByID implements Store.
func (s *MemoryStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetAccountByID"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return m.snapshot(), nil
}

// GetAccountByUsername implements Store.
func (s *MemoryStore) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return s.lookup(ctx, "identity.GetAccountByUsername", s.byUsername, NormalizeUsername(username))
}

// GetAccountByEmail implements Store.
func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.lookup(ctx, "identity.GetAccountByEmail", s.byEmail, NormalizeEmail(email))
}

func (s *MemoryStore) lookup(ctx context.Context, op string, index map[string]string, key string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return s.accounts[id].snapshot(), nil
}

// GetCredential implements Store.
func (s *MemoryStore) GetCredential(ctx context.Context, accountID string) (string, error) {
	const op = "identity.GetCredential"
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.accounts[accountID]
	if !ok {
		return "", NotFoundError{Op: op, Resource: "account"}
	}
	return m.credential, nil
}

// SetPassword implements Store.
func (s *MemoryStore) SetPassword(ctx context.Context, accountID, credential string, now time.Time) error {
	const op = "identity.SetPassword"
	if strings.TrimSpace(credential) == "" {
		return invalid(op, "credential is required")
	}
	return s.update(ctx, op, accountID, func(m *memAccount) { m.credential = credential })
}

// SetActive implements Store.
func (s *MemoryStore) SetActive(ctx context.Context, accountID string, active bool, now time.Time) error {
	return s.update(ctx, "identity.SetActive", accountID, func(m *memAccount) { m.account.IsActive = active })
}

// TouchLastLogin implements Store.
func (s *MemoryStore) TouchLastLogin(ctx context.Context, accountID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.update(ctx, "identity.TouchLastLogin", accountID, func(m *memAccount) {
		t := now
		m.account.LastLoginAt = &t
	})
}

// UpdateProfile implements Store.
func (s *MemoryStore) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (Account, error) {
	const op = "identity.UpdateProfile"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.accounts[accountID]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	next, err := applyProfileUpdate(op, m.account, upd)
	if err != nil {
		return Account{}, err
	}
	if next.Username != m.account.Username {
		if _, taken := s.byUsername[next.Username]; taken {
			return Account{}, ConflictError{Op: op, Field: "username"}
		}
		delete(s.byUsername, m.account.Username)
		s.byUsername[next.Username] = accountID
	}
	m.account = next
	return m.snapshot(), nil
}

// ListAccounts implements Store.
func (s *MemoryStore) ListAccounts(ctx context.Context, in ListAccountsInput) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in = normalizeList(in)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		if id > in.After {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > in.Limit {
		ids = ids[:in.Limit]
	}

	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.accounts[id].snapshot())
	}
	return out, nil
}

func (s *MemoryStore) update(ctx context.Context, op, accountID string, fn func(*memAccount)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.accounts[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	fn(m)
	return nil
}

// LinkFederatedIdentity implements Store.
func (s *MemoryStore) LinkFederatedIdentity(ctx context.Context, provider, subject, accountID string, now time.Time) error {
	const op = "identity.LinkFederatedIdentity"

	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}

	if fi, ok := s.federated[key]; ok {
		if fi.AccountID != accountID {
			return ConflictError{Op: op, Field: "federated_identity"}
		}
		t := now
		fi.LastLoginAt = &t
		return nil
	}

	s.federated[key] = &FederatedIdentity{
		Provider:  key.provider,
		Subject:   key.subject,
		AccountID: accountID,
		CreatedAt: now,
	}
	return nil
}

// GetAccountByFederatedIdentity implements Store.
func (s *MemoryStore) GetAccountByFederatedIdentity(ctx context.Context, provider, subject string) (Account, error) {
	const op = "identity.GetAccountByFederatedIdentity"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	key, err := federatedKeyOf(op, provider, subject)
	if err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, ok := s.federated[key]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "federated_identity"}
	}
	m, ok := s.accounts[fi.AccountID]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return m.snapshot(), nil
}

func (m *memAccount) snapshot() Account {
	out := m.account
	if m.account.LastLoginAt != nil {
		t := *m.account.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

func federatedKeyOf(op, provider, subject string) (federatedKey, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	subject = strings.TrimSpace(subject)
	if provider == "" {
		return federatedKey{}, invalid(op, "provider is required")
	}
	if subject == "" {
		return federatedKey{}, invalid(op, "subject is required")
	}
	return federatedKey{provider: provider, subject: subject}, nil
}
