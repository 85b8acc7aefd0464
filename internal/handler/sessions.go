package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/pgconsole/gateway/internal/session"
)

// SessionHandler serves the active-backend listing and admin termination
// routes (spec.md §4.7).
type SessionHandler struct {
	sessions *session.Service
}

// NewSessionHandler builds the session handler.
func NewSessionHandler(sessions *session.Service) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List returns the backend sessions visible to the caller on a connection.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	sessions, err := h.sessions.ActiveSessions(r.Context(), principal, connectionID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, sessions)
}

type terminateRequest struct {
	PID uint32 `json:"pid"`
}

// Terminate kills a backend by pid, after ownership/admin authorization.
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	var req terminateRequest
	if pidParam := chi.URLParam(r, "pid"); pidParam != "" {
		pid, err := strconv.ParseUint(pidParam, 10, 32)
		if err != nil {
			WriteAPIError(w, apierr.InvalidArgument("pid must be numeric"))
			return
		}
		req.PID = uint32(pid)
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, apierr.InvalidArgument("malformed request body"))
		return
	}

	if err := h.sessions.TerminateSession(r.Context(), principal, connectionID, req.PID); err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"terminated": true})
}
