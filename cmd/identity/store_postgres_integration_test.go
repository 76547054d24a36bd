package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"warden/cmd/internal/pgtest"
)

// Integration tests are opt-in and require WARDEN_DATABASE_URL.

func mustNewPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool)

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPostgresStore_CreateAccount_Conflicts(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	acc, err := s.CreateAccount(ctx, newAccountInput("Robin", "robin@example.com"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.CreateAccount(ctx, newAccountInput("Robin", "x@example.com")); !IsConflict(err) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	_, err = s.CreateAccount(ctx, newAccountInput("other", "robin@example.com"))
	if field, ok := ConflictField(err); !ok || field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	// Case-sensitive uniqueness.
	if _, err := s.CreateAccount(ctx, newAccountInput("robin", "Robin@example.com")); err != nil {
		t.Fatalf("expected distinct account, got %v", err)
	}

	got, err := s.GetAccountByEmail(ctx, "robin@example.com")
	if err != nil || got.ID != acc.ID {
		t.Fatalf("get by email: %+v %v", got, err)
	}
	if _, err := s.GetAccountByUsername(ctx, "nobody"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_PasswordActiveLastLogin(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	acc, err := s.CreateAccount(ctx, newAccountInput("pw-user", "pw@example.com"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := s.SetPassword(ctx, acc.ID, "$argon2id$replaced", now); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := s.SetActive(ctx, acc.ID, true, now); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := s.TouchLastLogin(ctx, acc.ID, now); err != nil {
		t.Fatalf("touch: %v", err)
	}

	cred, err := s.GetCredential(ctx, acc.ID)
	if err != nil || cred != "$argon2id$replaced" {
		t.Fatalf("credential: %q %v", cred, err)
	}
	got, err := s.GetAccountByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsActive || got.LastLoginAt == nil || !got.LastLoginAt.Equal(now) {
		t.Fatalf("unexpected account: %+v", got)
	}

	if err := s.SetActive(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", true, now); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_Federated(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	in := newAccountInput("fb-user", "777@facebook.invalid")
	in.Credential = ""
	in.IsActive = true
	acc, err := s.CreateFederatedAccount(ctx, in, "facebook", "777")
	if err != nil {
		t.Fatalf("create federated: %v", err)
	}

	got, err := s.GetAccountByFederatedIdentity(ctx, "facebook", "777")
	if err != nil || got.ID != acc.ID || !got.IsActive {
		t.Fatalf("lookup: %+v %v", got, err)
	}

	now := time.Now().UTC()
	if err := s.LinkFederatedIdentity(ctx, "facebook", "777", acc.ID, now); err != nil {
		t.Fatalf("relink same account: %v", err)
	}

	other, err := s.CreateAccount(ctx, newAccountInput("other-fb", "other-fb@example.com"))
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if err := s.LinkFederatedIdentity(ctx, "facebook", "777", other.ID, now); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The losing transaction must not leave its account behind.
	dup := newAccountInput("fb-dup", "dup@facebook.invalid")
	if _, err := s.CreateFederatedAccount(ctx, dup, "facebook", "777"); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.GetAccountByUsername(ctx, "fb-dup"); !IsNotFound(err) {
		t.Fatalf("expected rollback, got %v", err)
	}
}

func TestPostgresStore_ConcurrentFederatedCreate(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := newAccountInput("race-"+string(rune('a'+i)), "race-"+string(rune('a'+i))+"@example.com")
			_, err := s.CreateFederatedAccount(ctx, in, "facebook", "race-subject")
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !IsConflict(err):
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}

func TestPostgresStore_ProfileAndList(t *testing.T) {
	t.Parallel()
	checkProfileAndList(t, mustNewPostgresStore(t))
}
