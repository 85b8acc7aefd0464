package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/audit"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/middleware"
)

// AuditHandler serves the audit query and export routes (spec.md §4.6).
// Both routes restrict callers to their own records unless they hold the
// owner-only admin scope, supplied here as the isOwner func
// (config.Store.IsOwner in cmd/gateway) since audit browsing is an owner capability, not a per-connection
// IAM permission.
type AuditHandler struct {
	auditLog *audit.Logger
	isOwner  func(email string) bool
}

// NewAuditHandler builds the audit handler.
func NewAuditHandler(auditLog *audit.Logger, isOwner func(email string) bool) *AuditHandler {
	return &AuditHandler{auditLog: auditLog, isOwner: isOwner}
}

func (h *AuditHandler) filterFromRequest(r *http.Request) audit.Filter {
	q := r.URL.Query()
	principal := middleware.PrincipalFromContext(r.Context())

	filter := audit.Filter{
		ConnectionID: q.Get("connection_id"),
		Kind:         domain.AuditKind(q.Get("kind")),
		Limit:        50,
	}

	if !h.isOwner(principal.Email) {
		filter.Email = principal.Email
	} else if email := q.Get("email"); email != "" {
		filter.Email = email
	}

	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}
	return filter
}

// Query returns a filtered, paginated page of audit records.
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	page := h.auditLog.Query(h.filterFromRequest(r))
	WriteSuccess(w, page)
}

// Export returns the filtered record set as a downloadable JSON or CSV
// document.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportJSON
	}

	body, err := h.auditLog.Export(h.filterFromRequest(r), format)
	if err != nil {
		WriteAPIError(w, apierr.InvalidArgument(err.Error()))
		return
	}

	contentType := "application/json"
	ext := "json"
	if format == audit.ExportCSV {
		contentType = "text/csv"
		ext = "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=audit-export."+ext)
	_, _ = w.Write(body)
}
