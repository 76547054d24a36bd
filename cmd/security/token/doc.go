// Package token provides opaque token generation and hashing primitives for warden.
//
// It is the single source of truth for how session identifiers are hashed before
// they reach storage.
//
// Design goals:
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production mode: HMAC-SHA256(token, key) when WARDEN_TOKEN_HMAC_KEY is set.
// - Stable 64-char hex output for storage and constant-time comparison.
package token
