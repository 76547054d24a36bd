package identity

import (
	"strings"
	"time"

	"warden/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// ValidAccountID reports whether id has the shape of an account id.
func ValidAccountID(id string) bool {
	return ids.Valid(strings.TrimSpace(id))
}
