// Package audit implements C8 Audit Sink: an append-only, line-oriented
// log of login/logout/sql/export events, mirrored into ClickHouse for
// analytics and into a webhook for risky statements.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/rs/zerolog"
)

// Filter narrows a query over the in-memory audit buffer.
type Filter struct {
	Email        string
	ConnectionID string
	Kind         domain.AuditKind
	Since        time.Time
	Limit        int
	Offset       int
}

// Page is one page of filtered audit records, most recent first.
type Page struct {
	Records []domain.AuditRecord
	Total   int
	HasMore bool
}

// RiskyStatementNotifier is called after every SQL audit record is
// recorded. The logger applies no permission-based filter: an audit record
// does not carry the permission set its statement required.
type RiskyStatementNotifier interface {
	NotifyRiskyStatement(ctx context.Context, rec domain.AuditRecord)
}

// Logger is the in-memory, append-only audit sink. Grounded on the
// teacher's internal/audit/logger.go ring buffer, generalized from its
// RBAC-action log shape to spec.md §4.6's four audit kinds.
type Logger struct {
	logger     zerolog.Logger
	mu         sync.RWMutex
	records    []domain.AuditRecord
	maxRecords int
	mirror     *database.ClickHouse
	notifier   RiskyStatementNotifier
}

// NewLogger builds an audit sink. mirror and notifier may both be nil.
func NewLogger(logger zerolog.Logger, mirror *database.ClickHouse, notifier RiskyStatementNotifier) *Logger {
	return &Logger{
		logger:     logger,
		records:    make([]domain.AuditRecord, 0),
		maxRecords: 50000,
		mirror:     mirror,
		notifier:   notifier,
	}
}

// Record appends rec to the audit log, mirrors it to ClickHouse if
// configured, and passes SQL records to the notifier when one is set.
func (l *Logger) Record(ctx context.Context, rec domain.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	l.mu.Lock()
	if len(l.records) >= l.maxRecords {
		l.records = l.records[1:]
	}
	l.records = append(l.records, rec)
	l.mu.Unlock()

	event := l.logger.Info()
	if !rec.Success {
		event = l.logger.Warn()
	}
	event.
		Str("kind", string(rec.Kind)).
		Str("email", rec.Email).
		Str("connection_id", rec.ConnectionID).
		Bool("success", rec.Success).
		Int64("elapsed_ms", rec.ElapsedMS).
		Msg("audit event")

	if l.mirror != nil {
		l.mirror.InsertAuditRecord(ctx, database.AuditRow{
			Timestamp:    rec.Timestamp,
			Kind:         string(rec.Kind),
			Email:        rec.Email,
			ConnectionID: rec.ConnectionID,
			Database:     rec.Database,
			SQLText:      rec.SQLText,
			Success:      rec.Success,
			ElapsedMS:    rec.ElapsedMS,
			RowCount:     rec.RowCount,
			ErrorMessage: rec.ErrorMessage,
		})
	}

	if l.notifier != nil && rec.Kind == domain.AuditKindSQL {
		l.notifier.NotifyRiskyStatement(ctx, rec)
	}
}

// Query returns a filtered, paginated page of records, most recent first.
func (l *Logger) Query(filter Filter) Page {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []domain.AuditRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if !matches(rec, filter) {
			continue
		}
		filtered = append(filtered, rec)
	}

	total := len(filtered)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Page{
		Records: filtered[start:end],
		Total:   total,
		HasMore: end < total,
	}
}

func matches(rec domain.AuditRecord, filter Filter) bool {
	if filter.Email != "" && !strings.EqualFold(rec.Email, filter.Email) {
		return false
	}
	if filter.ConnectionID != "" && rec.ConnectionID != filter.ConnectionID {
		return false
	}
	if filter.Kind != "" && rec.Kind != filter.Kind {
		return false
	}
	if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}

// ExportFormat is the supported export encodings for audit records.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Export renders a filtered page of records in the requested format.
func (l *Logger) Export(filter Filter, format ExportFormat) ([]byte, error) {
	filter.Limit = 0
	page := l.Query(filter)
	switch format {
	case ExportCSV:
		return exportCSV(page.Records)
	default:
		return json.MarshalIndent(page.Records, "", "  ")
	}
}

func exportCSV(records []domain.AuditRecord) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "kind", "email", "connection_id", "database", "sql_text", "success", "elapsed_ms", "row_count", "error_message"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, rec := range records {
		rowCount := ""
		if rec.RowCount != nil {
			rowCount = strconv.FormatInt(*rec.RowCount, 10)
		}
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			string(rec.Kind),
			rec.Email,
			rec.ConnectionID,
			rec.Database,
			rec.SQLText,
			strconv.FormatBool(rec.Success),
			strconv.FormatInt(rec.ElapsedMS, 10),
			rowCount,
			rec.ErrorMessage,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
