// Package autherr is the error taxonomy shared by warden's auth services and
// the HTTP adapter. Services return *Error; transports map its Kind.
package autherr

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountInactive      = errors.New("account inactive")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrProviderRejected     = errors.New("provider rejected token")
	ErrInternal             = errors.New("internal error")
)

var kinds = []error{
	ErrValidation,
	ErrConflict,
	ErrInvalidCredentials,
	ErrAuthenticationFailed,
	ErrAccountInactive,
	ErrAlreadyAuthenticated,
	ErrUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrProviderRejected,
	ErrInternal,
}

// Error is a classified service error.
// Field names the offending input for validation and conflict errors.
// Err is the cause and is never shown to callers.
type Error struct {
	Op    string
	Kind  error
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap yields both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an Error of kind with no cause.
func New(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap returns an Error of kind caused by err.
func Wrap(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Field returns a validation or conflict Error naming field.
func Field(op string, kind error, field string, err error) *Error {
	return &Error{Op: op, Kind: kind, Field: field, Err: err}
}

// Validation is shorthand for a field-less validation error with a message.
func Validation(op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, ErrInternal when unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind != nil {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// FieldOf returns the Field of err, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// Public returns a caller-safe message for err.
// Validation errors expose their cause message; every other kind exposes only the kind.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case ErrValidation:
			if e.Err != nil {
				return e.Err.Error()
			}
			if e.Field != "" {
				return e.Field + " is invalid"
			}
		case ErrConflict:
			if e.Field != "" {
				return e.Field + " already exists"
			}
		}
	}
	return KindOf(err).Error()
}
