// Package api is warden's Account API: a JSON-over-HTTP adapter for the
// local and federated auth services.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/apitoken"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/federated"
	"warden/cmd/internal/auth/local"
)

// Accounts is satisfied by *local.Service.
type Accounts interface {
	Register(ctx context.Context, in local.RegisterInput) (identity.Account, error)
	Login(ctx context.Context, in local.LoginInput) (local.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
	SetPassword(ctx context.Context, in local.SetPasswordInput) error
	Authenticate(ctx context.Context, c local.Credentials) (local.Caller, error)
	IssueToken(ctx context.Context, accountID string) (apitoken.Token, bool, error)
	ObtainToken(ctx context.Context, in local.ObtainTokenInput) (apitoken.Token, bool, error)
	GetAccount(ctx context.Context, username string) (identity.Account, error)
	ListAccounts(ctx context.Context, after string, limit int) ([]identity.Account, error)
	UpdateProfile(ctx context.Context, in local.UpdateProfileInput) (identity.Account, error)
}

// FederatedLogin is satisfied by *federated.Service.
type FederatedLogin interface {
	LoginWithProviderToken(ctx context.Context, provider, token string) (federated.LoginResult, error)
}

var (
	_ Accounts       = (*local.Service)(nil)
	_ FederatedLogin = (*federated.Service)(nil)
)

const badAccessToken = "Bad Access Token"

// Handler serves the Account API.
type Handler struct {
	log       *slog.Logger
	cfg       Config
	sameSite  http.SameSite
	accounts  Accounts
	federated FederatedLogin
	metrics   *Metrics
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithFederated enables /federated-login and /facebook-signup.
func WithFederated(f FederatedLogin) HandlerOption {
	return func(h *Handler) { h.federated = f }
}

func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts Accounts, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil {
		return nil, errors.New("api: nil accounts service")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.clamped()
	sameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, err
	}

	h := &Handler{log: log, cfg: cfg, sameSite: sameSite, accounts: accounts}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the Account API routes onto r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/login", h.handleLoginGet).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/token", h.handleToken).Methods(http.MethodGet)
	r.HandleFunc("/api-token-auth", h.handleObtainToken).Methods(http.MethodPost)
	r.HandleFunc("/user-info", h.handleUserInfo).Methods(http.MethodGet)
	r.HandleFunc("/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/accounts", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/accounts", h.handleListAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{username}", h.handleGetAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{username}", h.handleUpdateAccount).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/accounts/{username}/set-password", h.handleSetPassword).Methods(http.MethodPost)
	r.HandleFunc("/federated-login", h.handleFederatedLogin).Methods(http.MethodPost)
	r.HandleFunc("/facebook-signup", h.handleFederatedLogin).Methods(http.MethodPost)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.accounts.Login(r.Context(), local.LoginInput{
		Email:            req.Email,
		Password:         req.Password,
		CurrentSessionID: h.sessionID(r),
	})
	h.metrics.login("password", result(err))
	if err != nil {
		h.audit(r, "auth.login.failed", "reason", result(err))
		h.writeServiceError(w, r, "auth.login.fail", err)
		return
	}

	h.audit(r, "auth.login.success", "account_id", res.Account.ID, "session", res.Session.ID)
	h.setSessionCookie(w, res.Session.SessionID, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		accountResponse:  toAccountResponse(res.Account),
		Token:            res.Token.Key,
		SessionID:        res.Session.SessionID,
		SessionExpiresAt: res.Session.ExpiresAt,
	})
}

// handleLoginGet rejects GET but still ends the caller's session.
func (h *Handler) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	if sid := h.sessionID(r); sid != "" {
		if err := h.accounts.EndSession(r.Context(), sid); err != nil {
			h.log.ErrorContext(r.Context(), "auth.login_get.end_session.fail", "err", err)
		}
		h.clearSessionCookie(w)
	}
	writeError(w, http.StatusBadRequest, "method_not_supported", "GET not supported for this command")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAuth(w, r, http.StatusUnauthorized)
	if !ok {
		return
	}
	if caller.SessionID != "" {
		if err := h.accounts.Logout(r.Context(), caller.SessionID); err != nil {
			h.writeServiceError(w, r, "auth.logout.fail", err)
			return
		}
	}

	h.audit(r, "auth.logout", "account_id", caller.Account.ID, "method", caller.Method)
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAuth(w, r, http.StatusForbidden)
	if !ok {
		return
	}
	tok, created, err := h.accounts.IssueToken(r.Context(), caller.Account.ID)
	if err != nil {
		h.writeServiceError(w, r, "auth.token.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok.Key, Created: created})
}

// handleObtainToken exchanges a username and password for the account's API token.
// No session is created.
func (h *Handler) handleObtainToken(w http.ResponseWriter, r *http.Request) {
	var req obtainTokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	tok, created, err := h.accounts.ObtainToken(r.Context(), local.ObtainTokenInput{
		Username: req.Username,
		Password: req.Password,
	})
	h.metrics.login("token", result(err))
	if err != nil {
		h.audit(r, "auth.token_auth.failed", "reason", result(err))
		h.writeServiceError(w, r, "auth.token_auth.fail", err)
		return
	}

	h.audit(r, "auth.token_auth.success", "account_id", tok.AccountID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok.Key, Created: created})
}

func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAuth(w, r, http.StatusForbidden)
	if !ok {
		return
	}
	tok, _, err := h.accounts.IssueToken(r.Context(), caller.Account.ID)
	if err != nil {
		h.writeServiceError(w, r, "auth.user_info.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, userInfoResponse{
		accountResponse: toAccountResponse(caller.Account),
		Token:           tok.Key,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	acc, err := h.accounts.Register(r.Context(), local.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		Tagline:         req.Tagline,
		TimeZone:        req.TimeZone,
	})
	h.metrics.registration(result(err))
	if err != nil {
		h.writeServiceError(w, r, "auth.register.fail", err)
		return
	}

	h.audit(r, "auth.register", "account_id", acc.ID)
	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuth(w, r, http.StatusForbidden); !ok {
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	accs, err := h.accounts.ListAccounts(r.Context(), q.Get("after"), limit)
	if err != nil {
		h.writeServiceError(w, r, "auth.accounts.list.fail", err)
		return
	}
	res := accountListResponse{Accounts: make([]accountResponse, 0, len(accs))}
	for _, acc := range accs {
		res.Accounts = append(res.Accounts, toAccountResponse(acc))
	}
	if len(accs) > 0 {
		res.Next = accs[len(accs)-1].ID
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuth(w, r, http.StatusForbidden); !ok {
		return
	}
	acc, err := h.accounts.GetAccount(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.writeServiceError(w, r, "auth.accounts.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAuth(w, r, http.StatusUnauthorized)
	if !ok {
		return
	}
	if caller.Account.Username != mux.Vars(r)["username"] {
		writeError(w, http.StatusForbidden, "forbidden", "not the account owner")
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	acc, err := h.accounts.UpdateProfile(r.Context(), local.UpdateProfileInput{
		AccountID: caller.Account.ID,
		Username:  req.Username,
		Name:      req.Name,
		Tagline:   req.Tagline,
		TimeZone:  req.TimeZone,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.accounts.update.fail", err)
		return
	}

	h.audit(r, "auth.accounts.update", "account_id", acc.ID)
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAuth(w, r, http.StatusUnauthorized)
	if !ok {
		return
	}
	if caller.Account.Username != mux.Vars(r)["username"] {
		writeError(w, http.StatusForbidden, "forbidden", "not the account owner")
		return
	}

	var req setPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	err := h.accounts.SetPassword(r.Context(), local.SetPasswordInput{
		AccountID:       caller.Account.ID,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		KeepSessionID:   caller.SessionID,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.set_password.fail", err)
		return
	}

	h.audit(r, "auth.set_password", "account_id", caller.Account.ID)
	writeJSON(w, http.StatusCreated, statusResponse{Status: "password set"})
}

func (h *Handler) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedLoginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = h.cfg.DefaultProvider
	}

	if h.federated == nil {
		h.metrics.login("federated", "authentication_failed")
		writeJSON(w, http.StatusUnauthorized, federatedLoginResponse{Reason: badAccessToken})
		return
	}

	res, err := h.federated.LoginWithProviderToken(r.Context(), provider, req.AccessToken)
	h.metrics.login("federated", result(err))
	if err != nil {
		h.audit(r, "auth.federated.failed", "provider", provider, "reason", result(err))
		if autherr.KindOf(err) == autherr.ErrInternal {
			h.writeServiceError(w, r, "auth.federated.fail", err)
			return
		}
		writeJSON(w, http.StatusUnauthorized, federatedLoginResponse{Reason: badAccessToken})
		return
	}

	h.audit(r, "auth.federated.success", "provider", res.Provider, "account_id", res.Account.ID, "created", res.Created)
	h.setSessionCookie(w, res.Session.SessionID, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, federatedLoginResponse{
		Success:   true,
		Username:  res.Account.Username,
		AccountID: res.Account.ID,
		SessionID: res.Session.SessionID,
	})
}

// requireAuth resolves the caller or writes an error with anonStatus.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request, anonStatus int) (local.Caller, bool) {
	caller, err := h.accounts.Authenticate(r.Context(), local.Credentials{
		SessionID: h.sessionID(r),
		TokenKey:  tokenKey(r),
	})
	if err == nil {
		return caller, true
	}
	if autherr.KindOf(err) != autherr.ErrUnauthorized {
		h.writeServiceError(w, r, "auth.authenticate.fail", err)
		return local.Caller{}, false
	}
	code := "unauthorized"
	if anonStatus == http.StatusForbidden {
		code = "forbidden"
	}
	writeError(w, anonStatus, code, "authentication required")
	return local.Caller{}, false
}
