package session

import "errors"

var (
	// ErrNotActive is returned for missing, expired, revoked or malformed sessions.
	// All of these cases are indistinguishable to callers.
	ErrNotActive = errors.New("session not active")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
