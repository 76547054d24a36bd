package local

import (
	"context"
	"strings"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/autherr"
)

// GetAccount looks an account up by username.
func (s *Service) GetAccount(ctx context.Context, username string) (identity.Account, error) {
	const op = "local.GetAccount"
	if strings.TrimSpace(username) == "" {
		return identity.Account{}, autherr.Field(op, autherr.ErrValidation, "username", nil)
	}
	acc, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return identity.Account{}, lookupErr(op, err)
	}
	return acc, nil
}

// ListAccounts returns one page of accounts in id order, starting after the given id.
func (s *Service) ListAccounts(ctx context.Context, after string, limit int) ([]identity.Account, error) {
	const op = "local.ListAccounts"
	accs, err := s.store.ListAccounts(ctx, identity.ListAccountsInput{After: after, Limit: limit})
	if err != nil {
		return nil, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	return accs, nil
}

// UpdateProfileInput carries the fields to change; nil leaves a field as is.
type UpdateProfileInput struct {
	AccountID string
	Username  *string
	Name      *string
	Tagline   *string
	TimeZone  *string
}

// UpdateProfile applies a partial profile change to the account.
func (s *Service) UpdateProfile(ctx context.Context, in UpdateProfileInput) (identity.Account, error) {
	const op = "local.UpdateProfile"
	acc, err := s.store.UpdateProfile(ctx, in.AccountID, identity.ProfileUpdate{
		Username: in.Username,
		Name:     in.Name,
		Tagline:  in.Tagline,
		TimeZone: in.TimeZone,
		Now:      s.now(),
	})
	if err != nil {
		return identity.Account{}, lookupErr(op, err)
	}
	s.log.Info("auth.profile.update", "account_id", acc.ID)
	return acc, nil
}

func lookupErr(op string, err error) error {
	if identity.IsNotFound(err) {
		return autherr.Wrap(op, autherr.ErrNotFound, err)
	}
	return mapStoreErr(op, err)
}
