// Package session implements warden's server-side login sessions.
//
// A session is identified by an opaque random string handed to the client
// once. Only a 64-char hex hash of it is stored (HMAC-SHA256 when
// WARDEN_TOKEN_HMAC_KEY is set, SHA-256 otherwise). Accounts may hold many
// concurrent sessions; each ends on logout, expiry or an EndAll sweep.
//
// Transport (cookies, headers) is out of scope here.
package session
