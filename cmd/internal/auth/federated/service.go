package federated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/session"
)

// Sessions is satisfied by *session.Manager.
type Sessions interface {
	Start(ctx context.Context, accountID string, now time.Time) (session.Issued, error)
}

// maxUsernameAttempts bounds the numeric-suffix search for a free username.
const maxUsernameAttempts = 50

// Service implements federated login.
type Service struct {
	log      *slog.Logger
	store    identity.Store
	sessions Sessions
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeout bounds provider verification.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store identity.Store, sessions Sessions, registry *Registry, opts ...Option) (*Service, error) {
	if store == nil || sessions == nil || registry == nil {
		return nil, errors.New("federated: missing dependency")
	}
	s := &Service{
		log:      slog.Default(),
		store:    store,
		sessions: sessions,
		registry: registry,
		timeout:  DefaultTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// LoginResult is returned by a successful federated login.
type LoginResult struct {
	Account  identity.Account
	Session  session.Issued
	Provider string
	Created  bool
}

// LoginWithProviderToken verifies token with the named provider and logs the
// linked account in, creating and linking an active account on first use.
//
// Provider failures surface as ErrAuthenticationFailed wrapping
// ErrProviderRejected. Store failures are ErrInternal.
func (s *Service) LoginWithProviderToken(ctx context.Context, providerName, token string) (LoginResult, error) {
	const op = "federated.LoginWithProviderToken"
	now := s.now()

	p, profile, err := s.verify(ctx, providerName, token)
	if err != nil {
		s.log.Info("auth.federated.provider_rejected", "provider", providerKey(providerName), "err", err)
		return LoginResult{}, autherr.Wrap(op, autherr.ErrAuthenticationFailed, autherr.Wrap(op, autherr.ErrProviderRejected, err))
	}
	name := p.Name()

	acc, created, err := s.resolve(ctx, name, profile, now)
	if err != nil {
		return LoginResult{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}
	if !acc.IsActive {
		s.log.Info("auth.federated.fail", "reason", "inactive", "provider", name, "account_id", acc.ID)
		return LoginResult{}, autherr.New(op, autherr.ErrAuthenticationFailed)
	}

	issued, err := s.sessions.Start(ctx, acc.ID, now)
	if err != nil {
		return LoginResult{}, autherr.Wrap(op, autherr.ErrInternal, err)
	}

	if !created {
		if err := s.store.LinkFederatedIdentity(ctx, name, profile.Subject, acc.ID, now); err != nil {
			s.log.Warn("auth.federated.touch.fail", "provider", name, "account_id", acc.ID, "err", err)
		}
	}
	if err := s.store.TouchLastLogin(ctx, acc.ID, now); err != nil {
		s.log.Warn("auth.login.touch.fail", "account_id", acc.ID, "err", err)
	} else {
		t := now
		acc.LastLoginAt = &t
	}

	s.log.Info("auth.federated.success", "provider", name, "account_id", acc.ID, "created", created)
	return LoginResult{Account: acc, Session: issued, Provider: name, Created: created}, nil
}

func (s *Service) verify(ctx context.Context, providerName, token string) (Provider, Profile, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, Profile{}, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, Profile{}, errors.New("federated: empty token")
	}

	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := p.Verify(vctx, token)
	if err != nil {
		return nil, Profile{}, err
	}
	profile.Subject = strings.TrimSpace(profile.Subject)
	if profile.Subject == "" {
		return nil, Profile{}, errors.New("federated: provider returned no subject")
	}
	return p, profile, nil
}

// resolve returns the account linked to (provider, subject), creating it when absent.
func (s *Service) resolve(ctx context.Context, provider string, profile Profile, now time.Time) (identity.Account, bool, error) {
	acc, err := s.store.GetAccountByFederatedIdentity(ctx, provider, profile.Subject)
	if err == nil {
		return acc, false, nil
	}
	if !identity.IsNotFound(err) {
		return identity.Account{}, false, err
	}

	base := deriveUsername(provider, profile)
	email := profile.Email
	if !identity.ValidEmail(email) {
		email = placeholderEmail(provider, profile.Subject)
	}

	suffix := 1
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		in := identity.CreateAccountInput{
			Username: withSuffix(base, suffix),
			Email:    email,
			Name:     truncateRunes(profile.Name, identity.MaxNameLen),
			IsActive: true,
			Now:      now,
		}
		acc, err := s.store.CreateFederatedAccount(ctx, in, provider, profile.Subject)
		if err == nil {
			return acc, true, nil
		}

		field, ok := identity.ConflictField(err)
		if !ok {
			return identity.Account{}, false, err
		}
		// A concurrent first login may have linked the subject already.
		if winner, gerr := s.store.GetAccountByFederatedIdentity(ctx, provider, profile.Subject); gerr == nil {
			return winner, false, nil
		}
		switch field {
		case "username":
			suffix++
		case "email":
			placeholder := placeholderEmail(provider, profile.Subject)
			if email == placeholder {
				return identity.Account{}, false, err
			}
			email = placeholder
		default:
			return identity.Account{}, false, err
		}
	}
	return identity.Account{}, false, fmt.Errorf("federated: no free username for %q", base)
}

// deriveUsername picks the first usable of the provider username, the email
// local part and the display name, falling back to provider_subject.
func deriveUsername(provider string, p Profile) string {
	local, _, _ := strings.Cut(p.Email, "@")
	for _, c := range []string{p.Username, local, p.Name, provider + "_" + p.Subject} {
		if u := sanitizeUsername(c); u != "" {
			return u
		}
	}
	return "user"
}

// usernameRoom leaves space for a numeric suffix within MaxUsernameLen.
const usernameRoom = identity.MaxUsernameLen - 4

func sanitizeUsername(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n == usernameRoom {
			break
		}
		if identity.ValidUsername(string(r)) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func withSuffix(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + strconv.Itoa(n)
}

// placeholderEmail is used when the provider withholds an email or it is taken.
func placeholderEmail(provider, subject string) string {
	var b strings.Builder
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	local := strings.Trim(b.String(), ".")
	if local == "" {
		local = "user"
	}
	if len(local) > 64 {
		local = local[:64]
	}
	return local + "@" + provider + ".invalid"
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
