// Package router builds the HTTP route tree and middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pgconsole/gateway/internal/handler"
	"github.com/pgconsole/gateway/internal/identity"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies holds every handler and cross-cutting collaborator the
// route tree wires together. Identity is nil when authentication is
// disabled; every request is then attached the guest principal instead.
type Dependencies struct {
	Logger       zerolog.Logger
	Tracer       trace.Tracer
	Identity     *identity.Service
	Auth         *handler.AuthHandler
	SQL          *handler.SQLHandler
	Sessions     *handler.SessionHandler
	Audit        *handler.AuditHandler
	Connection   *handler.ConnectionHandler
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// New builds the chi router.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	if deps.Tracer != nil {
		r.Use(middleware.Trace(deps.Tracer))
	}
	if deps.WriteTimeout > 0 {
		r.Use(chimiddleware.Timeout(deps.WriteTimeout))
	}

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Health)

	if deps.Auth != nil {
		r.Post("/v1/auth/signin", deps.Auth.Signin)
		r.Post("/v1/auth/signout", deps.Auth.Signout)
		r.Get("/auth/begin/{provider}", deps.Auth.BeginOIDC)
		r.Get("/auth/callback/{provider}", deps.Auth.OIDCCallback)
	}

	r.Route("/v1", func(r chi.Router) {
		// Passed as a bare nil, not a typed *identity.Service(nil), so the
		// middleware's interface nil-check actually triggers the guest path.
		var sessionAuth middleware.SessionParser
		if deps.Identity != nil {
			sessionAuth = deps.Identity
		}
		r.Use(middleware.Session(sessionAuth))

		r.Get("/connections", deps.Connection.List)
		r.Get("/labels", deps.Connection.Labels)

		r.Route("/connections/{connectionID}", func(r chi.Router) {
			r.Post("/query", deps.SQL.Execute)
			r.Get("/query/stream", deps.SQL.Stream)
			r.Get("/sessions", deps.Sessions.List)
			r.Post("/sessions/{pid}/terminate", deps.Sessions.Terminate)
		})

		r.Post("/queries/cancel", deps.SQL.Cancel)

		r.Get("/audit", deps.Audit.Query)
		r.Get("/audit/export", deps.Audit.Export)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "the requested resource was not found"},
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"error": map[string]string{"code": "INVALID_ARGUMENT", "message": "method not allowed"},
		})
	})

	return r
}
