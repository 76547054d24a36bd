package app

import (
	"errors"

	"warden/cmd/security/token"
)

// ValidateSecurityConfig enforces warden's startup security policy and
// returns the hasher used for session secrets.
//
// Under WARDEN_REQUIRE_TOKEN_HMAC the server refuses to start with a missing
// or short WARDEN_TOKEN_HMAC_KEY instead of falling back to plain SHA-256.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	if !cfg.RequireTokenHMAC {
		return token.HasherFromEnv(), nil
	}

	key, err := token.HMACKeyFromEnv(32)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but WARDEN_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but WARDEN_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return token.Hasher{}, err
		}
	}

	h := token.NewHasher(key)
	if !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
