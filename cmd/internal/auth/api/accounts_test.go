package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObtainToken(t *testing.T) {
	e := newEnv(t)
	e.registerActive(t, "robin", "robin@example.com")

	rr := e.do(t, http.MethodPost, "/api-token-auth", obtainTokenRequest{Username: "robin", Password: "correct horse battery"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Empty(t, rr.Result().Cookies())
	tok := decode[tokenResponse](t, rr)
	require.NotEmpty(t, tok.Token)
	require.True(t, tok.Created)

	rr = e.do(t, http.MethodGet, "/user-info", nil, withAuth("Token "+tok.Token))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, tok.Token, decode[userInfoResponse](t, rr).Token)

	res := e.login(t, "robin@example.com")
	require.Equal(t, tok.Token, res.Token)

	rr = e.do(t, http.MethodPost, "/api-token-auth", obtainTokenRequest{Username: "robin", Password: "wrong password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid_credentials", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodPost, "/api-token-auth", obtainTokenRequest{Username: "robin"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Equal(t, float64(1), counter(t, e.metrics.logins, "token", "success"))
	require.Equal(t, float64(1), counter(t, e.metrics.logins, "token", "invalid_credentials"))
}

func TestAccounts_GetAndList(t *testing.T) {
	e := newEnv(t)
	robin := e.registerActive(t, "robin", "robin@example.com")
	e.registerActive(t, "sam", "sam@example.com")
	e.registerActive(t, "kim", "kim@example.com")
	sess := e.login(t, "robin@example.com")

	rr := e.do(t, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = e.do(t, http.MethodGet, "/accounts/robin", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodGet, "/accounts/robin", nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, robin.ID, decode[accountResponse](t, rr).ID)

	rr = e.do(t, http.MethodGet, "/accounts/nobody", nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "not_found", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodGet, "/accounts", nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	all := decode[accountListResponse](t, rr)
	require.Len(t, all.Accounts, 3)

	rr = e.do(t, http.MethodGet, "/accounts?limit=2", nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[accountListResponse](t, rr)
	require.Len(t, first.Accounts, 2)
	require.Equal(t, first.Accounts[1].ID, first.Next)

	rr = e.do(t, http.MethodGet, "/accounts?limit=2&after="+first.Next, nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[accountListResponse](t, rr)
	require.Len(t, second.Accounts, 1)
	require.Equal(t, all.Accounts[2].ID, second.Accounts[0].ID)

	rr = e.do(t, http.MethodGet, "/accounts?limit=zero", nil, withSession(sess.SessionID))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decode[errorResponse](t, rr).Error.Code)
}

func TestAccounts_UpdateOwnerOnly(t *testing.T) {
	e := newEnv(t)
	e.registerActive(t, "robin", "robin@example.com")
	e.registerActive(t, "sam", "sam@example.com")
	owner := e.login(t, "robin@example.com")
	other := e.login(t, "sam@example.com")

	name := "Robin R"
	body := updateAccountRequest{Name: &name}

	rr := e.do(t, http.MethodPatch, "/accounts/robin", body)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, http.MethodPatch, "/accounts/robin", body, withSession(other.SessionID))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodPatch, "/accounts/robin", `{"name":"Robin R","time_zone":"Asia/Tokyo"}`, withSession(owner.SessionID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[accountResponse](t, rr)
	require.Equal(t, "Robin R", got.Name)
	require.Equal(t, "Asia/Tokyo", got.TimeZone)
	require.Equal(t, "robin@example.com", got.Email)

	rr = e.do(t, http.MethodPut, "/accounts/robin", `{"username":"sam"}`, withSession(owner.SessionID))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "conflict", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodPatch, "/accounts/robin", `{"time_zone":"Nowhere/City"}`, withSession(owner.SessionID))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodPatch, "/accounts/robin", `{"email":"new@example.com"}`, withSession(owner.SessionID))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_json", decode[errorResponse](t, rr).Error.Code)

	rr = e.do(t, http.MethodPatch, "/accounts/robin", `{"username":"robin2"}`, withSession(owner.SessionID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodGet, "/accounts/robin2", nil, withSession(owner.SessionID))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Robin R", decode[accountResponse](t, rr).Name)
}
