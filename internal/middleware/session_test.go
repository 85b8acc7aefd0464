package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionParser struct {
	principal *domain.Principal
	err       error
}

func (f fakeSessionParser) ParseSessionToken(_ string) (*domain.Principal, error) {
	return f.principal, f.err
}

func TestSession_NilParserAttachesGuestPrincipal(t *testing.T) {
	var captured *domain.Principal
	mw := Session(nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.NotNil(t, captured)
	assert.True(t, captured.Guest)
}

func TestSession_MissingCookieIsUnauthenticated(t *testing.T) {
	mw := Session(fakeSessionParser{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session cookie")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSession_ValidCookieAttachesPrincipal(t *testing.T) {
	want := &domain.Principal{Email: "a@example.com"}
	mw := Session(fakeSessionParser{principal: want})

	var captured *domain.Principal
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionTokenCookie, Value: "signed-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, want, captured)
}

func TestSession_InvalidTokenWritesAPIError(t *testing.T) {
	mw := Session(fakeSessionParser{err: apierr.Unauthenticated("session expired")})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionTokenCookie, Value: "bad-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSession_UnknownErrorBecomesInternal(t *testing.T) {
	mw := Session(fakeSessionParser{err: errors.New("database unreachable")})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a parse error")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionTokenCookie, Value: "bad-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
