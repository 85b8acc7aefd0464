package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/iam"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/pgconsole/gateway/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionsHandlerTestPolicy = `
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
email = "analyst@example.com"
password = "hunter2"
`

func buildSessionsTestHandler(t *testing.T) *SessionHandler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(sessionsHandlerTestPolicy), 0o600))

	store, err := config.Load(path, config.Options{
		Logger:       zerolog.Nop(),
		Validator:    license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 10}, nil),
		LicenseToken: "tok",
	})
	require.NoError(t, err)

	iamSvc := iam.NewService(store, zerolog.Nop())
	factory := database.NewClientFactory(zerolog.Nop())
	return NewSessionHandler(session.NewService(store, factory, iamSvc))
}

// serveWithConnectionID drives fn through a real middleware.Session wrapper
// and a chi route context carrying connectionID, mirroring how the router
// would dispatch a /v1/connections/{connectionID}/... route.
func serveWithConnectionID(principal *domain.Principal, method, connectionID string, fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
	mw := middleware.Session(fakeParser{principal: principal})
	wrapped := mw(fn)

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, "/v1/connections/"+connectionID+"/sessions", strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, "/v1/connections/"+connectionID+"/sessions", nil)
	}
	r.AddCookie(&http.Cookie{Name: middleware.SessionTokenCookie, Value: "tok"})

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("connectionID", connectionID)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, r)
	return w
}

func TestSessionHandler_ListWithNoGrantLooksLikeNotFound(t *testing.T) {
	h := buildSessionsTestHandler(t)
	analyst := &domain.Principal{Email: "analyst@example.com"}

	w := serveWithConnectionID(analyst, http.MethodGet, "prod", h.List, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_TerminateUnknownConnectionIsNotFound(t *testing.T) {
	h := buildSessionsTestHandler(t)
	analyst := &domain.Principal{Email: "analyst@example.com"}

	w := serveWithConnectionID(analyst, http.MethodPost, "does-not-exist", h.Terminate, `{"pid":1234}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_TerminateMalformedBodyIsInvalidArgument(t *testing.T) {
	h := buildSessionsTestHandler(t)
	analyst := &domain.Principal{Email: "analyst@example.com"}

	w := serveWithConnectionID(analyst, http.MethodPost, "prod", h.Terminate, "not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
