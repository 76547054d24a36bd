package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/autherr"
)

func strPtr(s string) *string { return &s }

func TestGetAccount(t *testing.T) {
	f := newFixture(t)
	acc := f.registerActive(t)
	ctx := context.Background()

	got, err := f.svc.GetAccount(ctx, " robin ")
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)

	_, err = f.svc.GetAccount(ctx, "nobody")
	require.ErrorIs(t, err, autherr.ErrNotFound)

	_, err = f.svc.GetAccount(ctx, "  ")
	require.ErrorIs(t, err, autherr.ErrValidation)
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerActive(t)
	for _, u := range []string{"sam", "kim"} {
		_, err := f.store.CreateAccount(ctx, identity.CreateAccountInput{Username: u, Email: u + "@example.com"})
		require.NoError(t, err)
	}

	all, err := f.svc.ListAccounts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := f.svc.ListAccounts(ctx, all[0].ID, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, all[1].ID, page[0].ID)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	acc := f.registerActive(t)
	ctx := context.Background()

	got, err := f.svc.UpdateProfile(ctx, UpdateProfileInput{
		AccountID: acc.ID,
		Name:      strPtr(" Robin R "),
		TimeZone:  strPtr("Asia/Tokyo"),
	})
	require.NoError(t, err)
	require.Equal(t, "Robin R", got.Name)
	require.Equal(t, "Asia/Tokyo", got.TimeZone)
	require.Equal(t, "robin", got.Username)
	require.Contains(t, f.logs.String(), "auth.profile.update")

	_, err = f.store.CreateAccount(ctx, identity.CreateAccountInput{Username: "sam", Email: "sam@example.com"})
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, UpdateProfileInput{AccountID: acc.ID, Username: strPtr("sam")})
	require.ErrorIs(t, err, autherr.ErrConflict)
	require.Equal(t, "username", autherr.FieldOf(err))

	_, err = f.svc.UpdateProfile(ctx, UpdateProfileInput{AccountID: acc.ID, TimeZone: strPtr("Nowhere/City")})
	require.ErrorIs(t, err, autherr.ErrValidation)
	require.Equal(t, "time zone is invalid", autherr.Public(err))

	_, err = f.svc.UpdateProfile(ctx, UpdateProfileInput{AccountID: "01JNOTREAL", Name: strPtr("x")})
	require.ErrorIs(t, err, autherr.ErrNotFound)

	// Login still works after a username change.
	_, err = f.svc.UpdateProfile(ctx, UpdateProfileInput{AccountID: acc.ID, Username: strPtr("robin2")})
	require.NoError(t, err)
	_, _, err = f.svc.ObtainToken(ctx, ObtainTokenInput{Username: "robin2", Password: "correct horse battery"})
	require.NoError(t, err)
}
