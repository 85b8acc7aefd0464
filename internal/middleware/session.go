package middleware

import (
	"context"
	"net/http"

	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/handler"
)

type contextKey string

const principalContextKey contextKey = "principal"

// SessionTokenCookie is the name of the cookie carrying the signed session
// token (spec.md §4.2).
const SessionTokenCookie = "pgconsole_session"

// SessionParser is the subset of identity.Service the middleware needs, so
// tests can substitute a fake without standing up OIDC providers.
type SessionParser interface {
	ParseSessionToken(token string) (*domain.Principal, error)
}

// Session resolves the request's principal: from the signed session
// cookie when identitySvc is non-nil, or the sentinel guest principal when
// auth is disabled entirely (spec.md §4.2 "auth disabled" path).
func Session(identitySvc SessionParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identitySvc == nil {
				ctx := context.WithValue(r.Context(), principalContextKey, domain.GuestPrincipal())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			cookie, err := r.Cookie(SessionTokenCookie)
			if err != nil {
				handler.WriteJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]string{"code": "UNAUTHENTICATED", "message": "no active session"},
				})
				return
			}

			principal, err := identitySvc.ParseSessionToken(cookie.Value)
			if err != nil {
				handler.WriteAPIError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext recovers the principal a Session middleware call
// attached to the request context.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalContextKey).(*domain.Principal)
	return p
}
