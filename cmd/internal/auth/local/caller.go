package local

import (
	"context"
	"errors"
	"strings"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/apitoken"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/session"
)

// Authentication methods reported in Caller.Method.
const (
	MethodSession = "session"
	MethodToken   = "token"
)

// Credentials are what a request presented. Either may be empty.
type Credentials struct {
	SessionID string
	TokenKey  string
}

// Caller is an authenticated principal.
type Caller struct {
	Account   identity.Account
	Method    string
	SessionID string
}

// Authenticate resolves credentials to an active account, session first.
// Inactive accounts are rejected on both paths.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (Caller, error) {
	const op = "local.Authenticate"
	now := s.now()

	if sid := strings.TrimSpace(c.SessionID); sid != "" {
		accountID, err := s.sessions.Validate(ctx, sid, now)
		switch {
		case err == nil:
			return s.caller(ctx, op, accountID, MethodSession, sid)
		case !errors.Is(err, session.ErrNotActive):
			return Caller{}, autherr.Wrap(op, autherr.ErrInternal, err)
		}
	}

	if key := strings.TrimSpace(c.TokenKey); key != "" {
		accountID, err := s.tokens.Validate(ctx, key)
		switch {
		case err == nil:
			return s.caller(ctx, op, accountID, MethodToken, "")
		case !errors.Is(err, apitoken.ErrNotFound):
			return Caller{}, autherr.Wrap(op, autherr.ErrInternal, err)
		}
	}

	return Caller{}, autherr.New(op, autherr.ErrUnauthorized)
}

func (s *Service) caller(ctx context.Context, op, accountID, method, sessionID string) (Caller, error) {
	acc, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Caller{}, autherr.New(op, autherr.ErrUnauthorized)
		}
		return Caller{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	if !acc.IsActive {
		return Caller{}, autherr.New(op, autherr.ErrUnauthorized)
	}
	return Caller{Account: acc, Method: method, SessionID: sessionID}, nil
}

// IssueToken returns the account's token, creating it when absent.
func (s *Service) IssueToken(ctx context.Context, accountID string) (apitoken.Token, bool, error) {
	tok, created, err := s.tokens.GetOrCreate(ctx, accountID, s.now())
	if err != nil {
		return apitoken.Token{}, false, autherr.Wrap("local.IssueToken", autherr.ErrInternal, err)
	}
	if created {
		s.log.Info("auth.token.created", "account_id", accountID)
	}
	return tok, created, nil
}
