package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

// checkProfileAndList runs the same expectations against any Store.
func checkProfileAndList(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	alice, err := s.CreateAccount(ctx, newAccountInput("alice", "alice@example.com"))
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := s.CreateAccount(ctx, newAccountInput("bob", "bob@example.com")); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	upd, err := s.UpdateProfile(ctx, alice.ID, ProfileUpdate{
		Username: strPtr(" alice2 "),
		Tagline:  strPtr("hi there"),
		TimeZone: strPtr("Asia/Tokyo"),
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Username != "alice2" || upd.Tagline != "hi there" || upd.TimeZone != "Asia/Tokyo" {
		t.Fatalf("unexpected update result: %+v", upd)
	}
	if upd.Name != "Test User" || upd.Email != "alice@example.com" {
		t.Fatalf("untouched fields changed: %+v", upd)
	}

	if _, err := s.GetAccountByUsername(ctx, "alice"); !IsNotFound(err) {
		t.Fatalf("old username should be free, got %v", err)
	}
	got, err := s.GetAccountByUsername(ctx, "alice2")
	if err != nil || got.ID != alice.ID {
		t.Fatalf("lookup by new username: %+v %v", got, err)
	}
	if _, err := s.CreateAccount(ctx, newAccountInput("alice", "alice-again@example.com")); err != nil {
		t.Fatalf("old username should be reusable: %v", err)
	}

	_, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: strPtr("bob")})
	if field, ok := ConflictField(err); !ok || field != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}
	_, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{TimeZone: strPtr("Mars/Olympus")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid time zone, got %v", err)
	}
	_, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Username: strPtr("  ")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid username, got %v", err)
	}
	missing, _ := NewULID(time.Now())
	if _, err := s.UpdateProfile(ctx, missing, ProfileUpdate{Name: strPtr("x")}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Clearing the tagline with an explicit empty value.
	upd, err = s.UpdateProfile(ctx, alice.ID, ProfileUpdate{Tagline: strPtr("")})
	if err != nil || upd.Tagline != "" || upd.Username != "alice2" {
		t.Fatalf("clear tagline: %+v %v", upd, err)
	}

	all, err := s.ListAccounts(ctx, ListAccountsInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("list not in id order: %q then %q", all[i-1].ID, all[i].ID)
		}
	}

	page, err := s.ListAccounts(ctx, ListAccountsInput{Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("first page: %d %v", len(page), err)
	}
	rest, err := s.ListAccounts(ctx, ListAccountsInput{After: page[1].ID, Limit: 2})
	if err != nil || len(rest) != 1 || rest[0].ID != all[2].ID {
		t.Fatalf("second page: %+v %v", rest, err)
	}
}

func TestMemoryStore_ProfileAndList(t *testing.T) {
	checkProfileAndList(t, NewMemoryStore())
}

func TestNormalizeList(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultListLimit},
		{in: -3, want: DefaultListLimit},
		{in: 10, want: 10},
		{in: MaxListLimit + 1, want: MaxListLimit},
	}
	for _, tc := range cases {
		if got := normalizeList(ListAccountsInput{Limit: tc.in}).Limit; got != tc.want {
			t.Fatalf("normalizeList(%d)=%d want=%d", tc.in, got, tc.want)
		}
	}
}
