// Package local implements username/password account flows: registration,
// login, logout, password changes and caller authentication.
//
// The service is transport-free; every failure is an *autherr.Error.
package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/apitoken"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/notify"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

// Service wires the credential store, hasher, sessions and tokens together.
type Service struct {
	log      *slog.Logger
	store    identity.Store
	hasher   PasswordHasher
	sessions Sessions
	tokens   Tokens
	notifier Notifier
	now      func() time.Time

	autoActivate         bool
	revokeTokenOnSetPass bool

	dummyHash string
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithNotifier sets the new-account notifier (default: none).
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithAutoActivate makes newly registered accounts active immediately.
func WithAutoActivate(on bool) Option {
	return func(s *Service) { s.autoActivate = on }
}

// WithTokenRevocationOnPasswordChange drops the account's token after SetPassword.
func WithTokenRevocationOnPasswordChange(on bool) Option {
	return func(s *Service) { s.revokeTokenOnSetPass = on }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs a Service.
func NewService(store identity.Store, hasher PasswordHasher, sessions Sessions, tokens Tokens, opts ...Option) (*Service, error) {
	if store == nil || hasher == nil || sessions == nil || tokens == nil {
		return nil, errors.New("local: missing dependency")
	}

	s := &Service{
		log:      slog.Default(),
		store:    store,
		hasher:   hasher,
		sessions: sessions,
		tokens:   tokens,
		notifier: noopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	// Verified against for unknown emails so both failure paths cost one hash.
	hash, err := hasher.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	s.dummyHash = hash
	return s, nil
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Tagline         string
	TimeZone        string
}

// Register creates a local account. Nothing is persisted on validation failure.
func (s *Service) Register(ctx context.Context, in RegisterInput) (identity.Account, error) {
	const op = "local.Register"

	if err := checkPasswordPair(op, in.Password, in.ConfirmPassword); err != nil {
		return identity.Account{}, err
	}

	acctIn := identity.CreateAccountInput{
		Username: in.Username,
		Email:    in.Email,
		Name:     in.Name,
		Tagline:  in.Tagline,
		TimeZone: in.TimeZone,
		IsActive: s.autoActivate,
		Now:      s.now(),
	}
	// Cheap profile checks run before the deliberately slow hash.
	if err := identity.ValidateAccountInput(acctIn); err != nil {
		return identity.Account{}, mapStoreErr(op, err)
	}
	if err := s.hasher.Validate(in.Password); err != nil {
		return identity.Account{}, autherr.Field(op, autherr.ErrValidation, "password", err)
	}

	cred, err := s.hasher.Hash(in.Password)
	if err != nil {
		return identity.Account{}, hashErr(op, err)
	}
	acctIn.Credential = cred

	acc, err := s.store.CreateAccount(ctx, acctIn)
	if err != nil {
		if identity.IsConflict(err) {
			s.log.Info("auth.register.conflict", "field", fieldOf(err))
		}
		return identity.Account{}, mapStoreErr(op, err)
	}

	s.log.Info("auth.register.success", "account_id", acc.ID, "active", acc.IsActive)
	s.notifier.NewAccount(ctx, notify.NewAccount{AccountID: acc.ID, Username: acc.Username, Email: acc.Email})
	return acc, nil
}

// LoginInput is the login form. CurrentSessionID is the caller's session, if any.
type LoginInput struct {
	Email            string
	Password         string
	CurrentSessionID string
}

// LoginResult is returned by successful logins.
type LoginResult struct {
	Account      identity.Account
	Session      session.Issued
	Token        apitoken.Token
	TokenCreated bool
}

// Login authenticates by email and password.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	const op = "local.Login"
	now := s.now()

	if err := s.rejectAuthenticated(ctx, op, in.CurrentSessionID, now); err != nil {
		return LoginResult{}, err
	}

	email := identity.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return LoginResult{}, autherr.Validation(op, "email and password are required")
	}

	acc, err := s.checkCredentials(ctx, op, "auth.login.fail", in.Password, now, func() (identity.Account, error) {
		return s.store.GetAccountByEmail(ctx, email)
	})
	if err != nil {
		return LoginResult{}, err
	}

	issued, err := s.sessions.Start(ctx, acc.ID, now)
	if err != nil {
		return LoginResult{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	tok, created, err := s.tokens.GetOrCreate(ctx, acc.ID, now)
	if err != nil {
		_ = s.sessions.End(ctx, issued.SessionID, now)
		return LoginResult{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	s.touchLastLogin(ctx, &acc, now)

	s.log.Info("auth.login.success", "account_id", acc.ID, "session", issued.ID, "token_created", created)
	return LoginResult{Account: acc, Session: issued, Token: tok, TokenCreated: created}, nil
}

// ObtainTokenInput is the token-only credential exchange form.
type ObtainTokenInput struct {
	Username string
	Password string
}

// ObtainToken exchanges a username and password for the account's token
// without starting a session. Failures match Login.
func (s *Service) ObtainToken(ctx context.Context, in ObtainTokenInput) (apitoken.Token, bool, error) {
	const op = "local.ObtainToken"
	now := s.now()

	username := identity.NormalizeUsername(in.Username)
	if username == "" || in.Password == "" {
		return apitoken.Token{}, false, autherr.Validation(op, "username and password are required")
	}

	acc, err := s.checkCredentials(ctx, op, "auth.token.obtain.fail", in.Password, now, func() (identity.Account, error) {
		return s.store.GetAccountByUsername(ctx, username)
	})
	if err != nil {
		return apitoken.Token{}, false, err
	}

	tok, created, err := s.tokens.GetOrCreate(ctx, acc.ID, now)
	if err != nil {
		return apitoken.Token{}, false, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	s.log.Info("auth.token.obtain.success", "account_id", acc.ID, "token_created", created)
	return tok, created, nil
}

// checkCredentials loads the account via lookup and verifies plain against it.
// Unknown accounts and wrong passwords fail identically; a dummy hash keeps
// their cost equal. Outdated credentials are re-encoded after a match.
func (s *Service) checkCredentials(ctx context.Context, op, event, plain string, now time.Time, lookup func() (identity.Account, error)) (identity.Account, error) {
	acc, err := lookup()
	if err != nil {
		if !identity.IsNotFound(err) {
			return identity.Account{}, autherr.Wrap(op, autherr.ErrInternal, err)
		}
		_ = s.hasher.Verify(plain, s.dummyHash)
		s.log.Info(event, "reason", "not_found")
		return identity.Account{}, autherr.New(op, autherr.ErrInvalidCredentials)
	}

	cred, err := s.store.GetCredential(ctx, acc.ID)
	if err != nil {
		return identity.Account{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	if !s.hasher.Verify(plain, cred) {
		s.log.Info(event, "reason", "bad_password", "account_id", acc.ID)
		return identity.Account{}, autherr.New(op, autherr.ErrInvalidCredentials)
	}
	if !acc.IsActive {
		s.log.Info(event, "reason", "inactive", "account_id", acc.ID)
		return identity.Account{}, autherr.New(op, autherr.ErrAccountInactive)
	}

	if s.hasher.NeedsRehash(cred) {
		s.rehash(ctx, acc.ID, plain, now)
	}
	return acc, nil
}

// rehash re-encodes a verified password with the current parameters.
// Failures are logged; the old credential keeps working.
func (s *Service) rehash(ctx context.Context, accountID, plain string, now time.Time) {
	cred, err := s.hasher.Hash(plain)
	if err != nil {
		s.log.Warn("auth.rehash.fail", "account_id", accountID, "err", err)
		return
	}
	if err := s.store.SetPassword(ctx, accountID, cred, now); err != nil {
		s.log.Warn("auth.rehash.fail", "account_id", accountID, "err", err)
		return
	}
	s.log.Info("auth.rehash.success", "account_id", accountID)
}

// Logout ends sessionID. It fails with ErrUnauthorized when the session is not valid.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	const op = "local.Logout"
	now := s.now()

	accountID, err := s.sessions.Validate(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			return autherr.New(op, autherr.ErrUnauthorized)
		}
		return autherr.Wrap(op, autherr.ErrInternal, err)
	}
	if err := s.sessions.End(ctx, sessionID, now); err != nil {
		return autherr.Wrap(op, autherr.ErrInternal, err)
	}

	s.log.Info("auth.logout", "account_id", accountID)
	return nil
}

// EndSession ends sessionID without requiring it to be valid.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.sessions.End(ctx, sessionID, s.now()); err != nil {
		return autherr.Wrap("local.EndSession", autherr.ErrInternal, err)
	}
	return nil
}

// SetPasswordInput changes an account's password.
// KeepSessionID, when set, survives the session sweep that follows.
type SetPasswordInput struct {
	AccountID       string
	Password        string
	ConfirmPassword string
	KeepSessionID   string
}

// SetPassword re-hashes and replaces the credential, then ends the account's other sessions.
func (s *Service) SetPassword(ctx context.Context, in SetPasswordInput) error {
	const op = "local.SetPassword"
	now := s.now()

	if err := checkPasswordPair(op, in.Password, in.ConfirmPassword); err != nil {
		return err
	}
	cred, err := s.hasher.Hash(in.Password)
	if err != nil {
		return hashErr(op, err)
	}

	if err := s.store.SetPassword(ctx, in.AccountID, cred, now); err != nil {
		return mapStoreErr(op, err)
	}
	if err := s.sessions.EndOthers(ctx, in.AccountID, in.KeepSessionID, now); err != nil {
		return autherr.Wrap(op, autherr.ErrInternal, err)
	}
	if s.revokeTokenOnSetPass {
		if err := s.tokens.Revoke(ctx, in.AccountID); err != nil {
			return autherr.Wrap(op, autherr.ErrInternal, err)
		}
	}

	s.log.Info("auth.set_password.success", "account_id", in.AccountID)
	return nil
}

// Activate marks the account active.
func (s *Service) Activate(ctx context.Context, accountID string) error {
	const op = "local.Activate"
	if err := s.store.SetActive(ctx, accountID, true, s.now()); err != nil {
		return mapStoreErr(op, err)
	}
	s.log.Info("auth.activate", "account_id", accountID)
	return nil
}

func (s *Service) rejectAuthenticated(ctx context.Context, op, sessionID string, now time.Time) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	_, err := s.sessions.Validate(ctx, sessionID, now)
	switch {
	case err == nil:
		return autherr.New(op, autherr.ErrAlreadyAuthenticated)
	case errors.Is(err, session.ErrNotActive):
		return nil
	default:
		return autherr.Wrap(op, autherr.ErrInternal, err)
	}
}

func (s *Service) touchLastLogin(ctx context.Context, acc *identity.Account, now time.Time) {
	if err := s.store.TouchLastLogin(ctx, acc.ID, now); err != nil {
		s.log.Warn("auth.login.touch.fail", "account_id", acc.ID, "err", err)
		return
	}
	t := now
	acc.LastLoginAt = &t
}

// hashErr keeps policy rejections caller-visible and hides everything else.
func hashErr(op string, err error) error {
	if password.IsPolicyError(err) {
		return autherr.Field(op, autherr.ErrValidation, "password", err)
	}
	return autherr.Wrap(op, autherr.ErrInternal, err)
}

func checkPasswordPair(op, pw, confirm string) error {
	switch {
	case pw == "":
		return autherr.Field(op, autherr.ErrValidation, "password", errors.New("password is required"))
	case confirm == "":
		return autherr.Field(op, autherr.ErrValidation, "confirm_password", errors.New("password confirmation is required"))
	case pw != confirm:
		return autherr.Field(op, autherr.ErrValidation, "confirm_password", errors.New("passwords do not match"))
	}
	return nil
}

// mapStoreErr converts identity errors into service errors.
func mapStoreErr(op string, err error) error {
	var oe identity.OpError
	switch {
	case err == nil:
		return nil
	case identity.IsConflict(err):
		return autherr.Field(op, autherr.ErrConflict, fieldOf(err), err)
	case errors.As(err, &oe) && errors.Is(oe.Kind, identity.ErrInvalidInput):
		return autherr.Validation(op, "%s", oe.Msg)
	case identity.IsNotFound(err):
		return autherr.Wrap(op, autherr.ErrValidation, errors.New("account not found"))
	default:
		return autherr.Wrap(op, autherr.ErrInternal, err)
	}
}

func fieldOf(err error) string {
	f, _ := identity.ConflictField(err)
	return f
}
