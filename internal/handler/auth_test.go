package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/identity"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authTestPolicy = `
[auth]
jwtSecret = "01234567890123456789012345678901"

[[connections]]
id = "prod"
name = "Production"
host = "localhost"
port = 5432
database = "app"
username = "app"

[[users]]
email = "owner@example.com"
password = "hunter2"
owner = true
`

func buildAuthTestHandler(t *testing.T) *AuthHandler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(authTestPolicy), 0o600))

	store, err := config.Load(path, config.Options{
		Logger:       zerolog.Nop(),
		Validator:    license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 10}, nil),
		LicenseToken: "tok",
	})
	require.NoError(t, err)

	svc, err := identity.NewService(context.Background(), store, nil, zerolog.Nop())
	require.NoError(t, err)

	return NewAuthHandler(svc, zerolog.Nop(), false)
}

func TestAuthHandler_SigninSucceedsAndSetsCookie(t *testing.T) {
	h := buildAuthTestHandler(t)

	body := strings.NewReader(`{"email":"owner@example.com","password":"hunter2"}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", body)
	w := httptest.NewRecorder()
	h.Signin(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := w.Result()
	var sawCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == "pgconsole_session" && c.Value != "" {
			sawCookie = true
		}
	}
	assert.True(t, sawCookie, "signin must set the session cookie")
}

func TestAuthHandler_SigninWrongPasswordReturnsUnauthenticated(t *testing.T) {
	h := buildAuthTestHandler(t)

	body := strings.NewReader(`{"email":"owner@example.com","password":"wrong"}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", body)
	w := httptest.NewRecorder()
	h.Signin(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_SigninMalformedBodyIsInvalidArgument(t *testing.T) {
	h := buildAuthTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	h.Signin(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_SigninWithAuthDisabledIsUnavailable(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop(), false)

	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Signin(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_SignoutClearsCookie(t *testing.T) {
	h := buildAuthTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/auth/signout", nil)
	w := httptest.NewRecorder()
	h.Signout(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := w.Result()
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, -1, resp.Cookies()[0].MaxAge)

	var body struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data["ok"])
}

func TestAuthHandler_BeginOIDCUnknownProviderIsNotConfigured(t *testing.T) {
	h := buildAuthTestHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", "google")
	r := httptest.NewRequest(http.MethodGet, "/v1/auth/oidc/google/begin", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h.BeginOIDC(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandler_BeginOIDCWithAuthDisabledIsUnavailable(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop(), false)

	r := httptest.NewRequest(http.MethodGet, "/v1/auth/oidc/google/begin", nil)
	w := httptest.NewRecorder()
	h.BeginOIDC(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_OIDCCallbackUnknownProviderRedirectsWithErrorKind(t *testing.T) {
	h := buildAuthTestHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", "google")
	r := httptest.NewRequest(http.MethodGet, "/v1/auth/oidc/google/callback?state=s&code=c", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h.OIDCCallback(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "error=not_configured")
}

func TestAuthHandler_OIDCCallbackWithAuthDisabledIsUnavailable(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop(), false)

	r := httptest.NewRequest(http.MethodGet, "/v1/auth/oidc/google/callback", nil)
	w := httptest.NewRecorder()
	h.OIDCCallback(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
