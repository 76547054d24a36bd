package federated

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("s", MinJWTSecretLen))

func newTestJWT(t *testing.T) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider("Acme", testSecret, "https://id.acme.test", "warden", 0)
	require.NoError(t, err)
	return p
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims idClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() idClaims {
	return idClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://id.acme.test",
			Subject:   "user-42",
			Audience:  jwt.ClaimStrings{"warden"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:             "ada@acme.test",
		Name:              "Ada",
		PreferredUsername: "ada",
	}
}

func TestJWTProvider_Verify(t *testing.T) {
	p := newTestJWT(t)
	require.Equal(t, "acme", p.Name())

	got, err := p.Verify(context.Background(), sign(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	require.NoError(t, err)
	require.Equal(t, Profile{Subject: "user-42", Email: "ada@acme.test", Name: "Ada", Username: "ada"}, got)
}

func TestJWTProvider_Rejects(t *testing.T) {
	p := newTestJWT(t)

	cases := map[string]func() string{
		"wrong secret": func() string {
			return sign(t, jwt.SigningMethodHS256, []byte(strings.Repeat("x", MinJWTSecretLen)), validClaims())
		},
		"wrong method": func() string {
			return sign(t, jwt.SigningMethodHS512, testSecret, validClaims())
		},
		"none alg": func() string {
			return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims())
		},
		"expired": func() string {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		},
		"no expiry": func() string {
			c := validClaims()
			c.ExpiresAt = nil
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		},
		"wrong issuer": func() string {
			c := validClaims()
			c.Issuer = "https://evil.test"
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		},
		"wrong audience": func() string {
			c := validClaims()
			c.Audience = jwt.ClaimStrings{"someone-else"}
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		},
		"no subject": func() string {
			c := validClaims()
			c.Subject = " "
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		},
		"garbage": func() string { return "not.a.jwt" },
	}
	for name, mk := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Verify(context.Background(), mk())
			require.Error(t, err)
		})
	}
}

func TestNewJWTProvider_Validation(t *testing.T) {
	_, err := NewJWTProvider("", testSecret, "iss", "aud", 0)
	require.Error(t, err)
	_, err = NewJWTProvider("acme", []byte("short"), "iss", "aud", 0)
	require.Error(t, err)
	_, err = NewJWTProvider("acme", testSecret, "", "aud", 0)
	require.Error(t, err)
	_, err = NewJWTProvider("acme", testSecret, "iss", "", 0)
	require.Error(t, err)
	_, err = NewJWTProvider("acme", testSecret, "iss", "aud", -time.Second)
	require.Error(t, err)
}
