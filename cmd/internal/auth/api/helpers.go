package api

import (
	"errors"
	"net/http"

	"warden/cmd/internal/auth/autherr"
)

// errorStatus maps an autherr kind to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch autherr.KindOf(err) {
	case autherr.ErrValidation:
		return http.StatusBadRequest, "invalid_request"
	case autherr.ErrConflict:
		return http.StatusBadRequest, "conflict"
	case autherr.ErrInvalidCredentials:
		return http.StatusUnauthorized, "invalid_credentials"
	case autherr.ErrAccountInactive:
		return http.StatusUnauthorized, "account_inactive"
	case autherr.ErrAuthenticationFailed, autherr.ErrProviderRejected:
		return http.StatusUnauthorized, "authentication_failed"
	case autherr.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case autherr.ErrAlreadyAuthenticated:
		return http.StatusForbidden, "already_authenticated"
	case autherr.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case autherr.ErrNotFound:
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// writeServiceError writes err in the API error shape. Internal causes are logged, never sent.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), event, "err", err)
	}
	writeError(w, status, code, autherr.Public(err))
}

// result is the metrics label for a login or registration outcome.
func result(err error) string {
	if err == nil {
		return "success"
	}
	var e *autherr.Error
	if !errors.As(err, &e) {
		return "error"
	}
	_, code := errorStatus(err)
	return code
}
