package handler

import (
	"net/http"

	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/iam"
	"github.com/pgconsole/gateway/internal/middleware"
)

// ConnectionHandler serves the connection listing scoped to what the
// caller's IAM rules actually grant them (spec.md §4.3).
type ConnectionHandler struct {
	store *config.Store
	iam   *iam.Service
}

// NewConnectionHandler builds the connection listing handler.
func NewConnectionHandler(store *config.Store, iamSvc *iam.Service) *ConnectionHandler {
	return &ConnectionHandler{store: store, iam: iamSvc}
}

type connectionView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Database    string   `json:"database"`
	LabelIDs    []string `json:"label_ids,omitempty"`
	Permissions []string `json:"permissions"`
}

// List returns every connection the caller has at least one permission on.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	accessible := make(map[string]bool)
	for _, id := range h.iam.AccessibleConnections(principal) {
		accessible[id] = true
	}

	var views []connectionView
	for _, conn := range h.store.Connections() {
		if !accessible[conn.ID] {
			continue
		}
		perms := h.iam.PermissionsFor(principal, conn.ID)
		var names []string
		for _, p := range perms.Slice() {
			names = append(names, string(p))
		}
		views = append(views, connectionView{
			ID:          conn.ID,
			Name:        conn.Name,
			Database:    conn.Database,
			LabelIDs:    conn.LabelIDs,
			Permissions: names,
		})
	}

	WriteSuccess(w, views)
}

// Labels returns the configured connection labels.
func (h *ConnectionHandler) Labels(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.store.Labels())
}
