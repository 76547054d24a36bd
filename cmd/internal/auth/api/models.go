package api

import (
	"time"

	"warden/cmd/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
	Tagline         string `json:"tagline"`
	TimeZone        string `json:"time_zone"`
}

type obtainTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// updateAccountRequest fields left out of the body are not changed.
type updateAccountRequest struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
	Tagline  *string `json:"tagline"`
	TimeZone *string `json:"time_zone"`
}

type setPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type federatedLoginRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
}

type accountResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Tagline     string     `json:"tagline"`
	TimeZone    string     `json:"time_zone"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsAdmin     bool       `json:"is_admin"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

type loginResponse struct {
	accountResponse
	Token            string    `json:"token"`
	SessionID        string    `json:"session_id"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

type userInfoResponse struct {
	accountResponse
	Token string `json:"token"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	Created bool   `json:"created"`
}

type accountListResponse struct {
	Accounts []accountResponse `json:"accounts"`
	Next     string            `json:"next,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type federatedLoginResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func toAccountResponse(a identity.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		Name:        a.Name,
		Tagline:     a.Tagline,
		TimeZone:    a.TimeZone,
		IsActive:    a.IsActive,
		IsStaff:     a.IsStaff,
		IsAdmin:     a.IsAdmin,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}
