package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pgconsole/gateway/internal/audit"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAuthenticated(principal *domain.Principal, method, target string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	mw := middleware.Session(fakeParser{principal: principal})
	wrapped := mw(fn)

	r := httptest.NewRequest(method, target, nil)
	r.AddCookie(&http.Cookie{Name: middleware.SessionTokenCookie, Value: "tok"})
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, r)
	return w
}

func TestAuditHandler_NonOwnerIsRestrictedToOwnEmail(t *testing.T) {
	log := audit.NewLogger(zerolog.Nop(), nil, nil)
	now := time.Now()
	log.Record(context.Background(), domain.AuditRecord{Timestamp: now, Kind: domain.AuditKindSQL, Email: "analyst@example.com", Success: true})
	log.Record(context.Background(), domain.AuditRecord{Timestamp: now, Kind: domain.AuditKindSQL, Email: "owner@example.com", Success: true})

	h := NewAuditHandler(log, func(email string) bool { return email == "owner@example.com" })

	w := serveAuthenticated(&domain.Principal{Email: "analyst@example.com"}, http.MethodGet, "/v1/audit", h.Query)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data audit.Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Records, 1)
	assert.Equal(t, "analyst@example.com", body.Data.Records[0].Email)
}

func TestAuditHandler_OwnerCanQueryAcrossEmails(t *testing.T) {
	log := audit.NewLogger(zerolog.Nop(), nil, nil)
	now := time.Now()
	log.Record(context.Background(), domain.AuditRecord{Timestamp: now, Kind: domain.AuditKindSQL, Email: "analyst@example.com", Success: true})
	log.Record(context.Background(), domain.AuditRecord{Timestamp: now, Kind: domain.AuditKindSQL, Email: "owner@example.com", Success: true})

	h := NewAuditHandler(log, func(email string) bool { return email == "owner@example.com" })

	w := serveAuthenticated(&domain.Principal{Email: "owner@example.com"}, http.MethodGet, "/v1/audit", h.Query)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data audit.Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Records, 2)
}

func TestAuditHandler_ExportDefaultsToJSON(t *testing.T) {
	log := audit.NewLogger(zerolog.Nop(), nil, nil)
	log.Record(context.Background(), domain.AuditRecord{Timestamp: time.Now(), Kind: domain.AuditKindSQL, Email: "owner@example.com", Success: true})

	h := NewAuditHandler(log, func(email string) bool { return true })

	w := serveAuthenticated(&domain.Principal{Email: "owner@example.com"}, http.MethodGet, "/v1/audit/export", h.Export)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".json")
}

func TestAuditHandler_ExportCSVFormat(t *testing.T) {
	log := audit.NewLogger(zerolog.Nop(), nil, nil)
	log.Record(context.Background(), domain.AuditRecord{Timestamp: time.Now(), Kind: domain.AuditKindSQL, Email: "owner@example.com", Success: true})

	h := NewAuditHandler(log, func(email string) bool { return true })

	w := serveAuthenticated(&domain.Principal{Email: "owner@example.com"}, http.MethodGet, "/v1/audit/export?format=csv", h.Export)

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, w.Body.String(), "timestamp,kind,email")
}
