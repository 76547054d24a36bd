package identity

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Field limits enforced by ValidateAccountInput.
const (
	MaxUsernameLen = 64
	MaxEmailLen    = 254
	MaxNameLen     = 100
	MaxTaglineLen  = 140

	DefaultTimeZone = "UTC"
)

// NormalizeUsername trims surrounding whitespace. Usernames stay case-sensitive.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims surrounding whitespace. Emails stay case-sensitive.
func NormalizeEmail(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeTimeZone trims s and falls back to UTC when empty.
func NormalizeTimeZone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeZone
	}
	return s
}

// ValidUsername accepts letters, digits and @.+-_ up to MaxUsernameLen runes.
func ValidUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxUsernameLen {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '@', '.', '+', '-', '_':
			continue
		}
		return false
	}
	return true
}

// ValidEmail reports whether s is a bare, plausible address (no display name).
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// ValidTimeZone reports whether name is loadable from the time zone database.
func ValidTimeZone(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// normalizeInput trims every field and validates the result.
func normalizeInput(op string, in CreateAccountInput) (CreateAccountInput, error) {
	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Tagline = strings.TrimSpace(in.Tagline)
	in.TimeZone = NormalizeTimeZone(in.TimeZone)

	switch {
	case in.Username == "":
		return in, invalid(op, "username is required")
	case !ValidUsername(in.Username):
		return in, invalid(op, "username is invalid")
	case in.Email == "":
		return in, invalid(op, "email is required")
	case !ValidEmail(in.Email):
		return in, invalid(op, "email is invalid")
	case utf8.RuneCountInString(in.Name) > MaxNameLen:
		return in, invalid(op, "name is too long")
	case utf8.RuneCountInString(in.Tagline) > MaxTaglineLen:
		return in, invalid(op, "tagline is too long")
	case !ValidTimeZone(in.TimeZone):
		return in, invalid(op, "time zone is invalid")
	}

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

// ValidateAccountInput applies the same trimming and checks the stores apply.
func ValidateAccountInput(in CreateAccountInput) error {
	_, err := normalizeInput("identity.ValidateAccountInput", in)
	return err
}

// applyProfileUpdate merges upd into acc and validates the result like a new account.
func applyProfileUpdate(op string, acc Account, upd ProfileUpdate) (Account, error) {
	in := CreateAccountInput{
		Username: acc.Username,
		Email:    acc.Email,
		Name:     acc.Name,
		Tagline:  acc.Tagline,
		TimeZone: acc.TimeZone,
		Now:      upd.Now,
	}
	if upd.Username != nil {
		in.Username = *upd.Username
	}
	if upd.Name != nil {
		in.Name = *upd.Name
	}
	if upd.Tagline != nil {
		in.Tagline = *upd.Tagline
	}
	if upd.TimeZone != nil {
		in.TimeZone = *upd.TimeZone
	}

	in, err := normalizeInput(op, in)
	if err != nil {
		return Account{}, err
	}
	acc.Username = in.Username
	acc.Name = in.Name
	acc.Tagline = in.Tagline
	acc.TimeZone = in.TimeZone
	return acc, nil
}

func normalizeList(in ListAccountsInput) ListAccountsInput {
	in.After = strings.TrimSpace(in.After)
	switch {
	case in.Limit <= 0:
		in.Limit = DefaultListLimit
	case in.Limit > MaxListLimit:
		in.Limit = MaxListLimit
	}
	return in
}
