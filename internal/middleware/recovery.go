// Package middleware provides the chi HTTP middleware chain: panic
// recovery, request logging, and session authentication.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/pgconsole/gateway/internal/handler"
	"github.com/rs/zerolog"
)

// Recoverer recovers from panics in downstream handlers and writes a
// generic 500 instead of letting the connection die silently.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("panic recovered")
					handler.WriteJSON(w, http.StatusInternalServerError, map[string]any{
						"error": map[string]string{"code": "INTERNAL", "message": "an internal error occurred"},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
