package federated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinJWTSecretLen is the shortest accepted HS256 shared secret.
const MinJWTSecretLen = 32

// JWTProvider verifies HS256 identity tokens signed with a shared secret.
type JWTProvider struct {
	name     string
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

type idClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// NewJWTProvider validates its settings; issuer and audience are required.
func NewJWTProvider(name string, secret []byte, issuer, audience string, leeway time.Duration) (*JWTProvider, error) {
	name = providerKey(name)
	switch {
	case name == "":
		return nil, errors.New("federated: jwt provider name is required")
	case len(secret) < MinJWTSecretLen:
		return nil, fmt.Errorf("federated: jwt secret must be at least %d bytes", MinJWTSecretLen)
	case strings.TrimSpace(issuer) == "":
		return nil, errors.New("federated: jwt issuer is required")
	case strings.TrimSpace(audience) == "":
		return nil, errors.New("federated: jwt audience is required")
	case leeway < 0:
		return nil, errors.New("federated: jwt leeway must not be negative")
	}
	return &JWTProvider{
		name:     name,
		secret:   secret,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		leeway:   leeway,
		now:      time.Now,
	}, nil
}

func (p *JWTProvider) Name() string { return p.name }

// Verify implements Provider.
func (p *JWTProvider) Verify(_ context.Context, raw string) (Profile, error) {
	const op = "federated.JWTProvider.Verify"

	var claims idClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims,
		func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Profile{}, fmt.Errorf("%s: sub is required", op)
	}
	return Profile{
		Subject:  sub,
		Email:    strings.TrimSpace(claims.Email),
		Name:     strings.TrimSpace(claims.Name),
		Username: strings.TrimSpace(claims.PreferredUsername),
	}, nil
}
