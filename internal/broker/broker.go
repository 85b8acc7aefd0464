// Package broker implements C7 Query Broker: it takes raw SQL text,
// analyzes it for the permissions it needs, acquires a pooled client, and
// streams back exactly one PID
// frame followed by row/completion/error frames, tracking every in-flight
// query in a process-wide table so it can later be cancelled.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgconsole/gateway/internal/admission"
	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/audit"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/iam"
	"github.com/pgconsole/gateway/internal/sqlengine"
	"github.com/rs/zerolog"
)

// Broker is C7. It has no public mutable state beyond the active-query
// table; every other collaborator it holds is itself safe for concurrent
// use.
type Broker struct {
	store     *config.Store
	factory   *database.ClientFactory
	iam       *iam.Service
	admission *admission.Limiter
	auditLog  *audit.Logger
	logger    zerolog.Logger

	mu      sync.RWMutex
	active  map[string]*activeQuery
}

// New builds a Broker.
func New(store *config.Store, factory *database.ClientFactory, iamSvc *iam.Service, admissionLimiter *admission.Limiter, auditLog *audit.Logger, logger zerolog.Logger) *Broker {
	return &Broker{
		store:     store,
		factory:   factory,
		iam:       iamSvc,
		admission: admissionLimiter,
		auditLog:  auditLog,
		logger:    logger,
		active:    make(map[string]*activeQuery),
	}
}

// Emit is called once per frame produced while a query executes.
type Emit func(Frame)

// ExecuteSQL runs sqlText against connectionID on behalf of principal,
// streaming frames to emit. It implements spec.md §4.5 steps 1-11: analyze,
// authorize, admit, acquire, stream the backend pid first, apply
// searchPath, execute (wrapped in an explicit transaction when every
// statement is transaction-safe), stream rows, and finally emit exactly one
// Complete or Error frame. queryID is supplied by the caller and is the key
// under which the query is registered in the active-query table; a blank
// queryID executes normally but is not registered, so it cannot later be
// cancelled (spec.md §4.5 step 5). searchPath, if nonblank, is applied
// before sqlText runs (step 7).
func (b *Broker) ExecuteSQL(ctx context.Context, principal *domain.Principal, connectionID, queryID, searchPath, sqlText string, emit Emit) error {
	if strings.TrimSpace(connectionID) == "" || strings.TrimSpace(sqlText) == "" {
		return apierr.InvalidArgument("connectionId and sqlText are required")
	}
	if principal == nil {
		return apierr.Unauthenticated("authentication required")
	}

	analysis := sqlengine.Analyze(sqlText)

	if err := b.iam.RequirePermissions(principal, connectionID, analysis.Permissions); err != nil {
		return err
	}

	conn, ok := b.store.ConnectionByID(connectionID)
	if !ok {
		return apierr.NotFound("connection not found")
	}

	release, err := b.admission.Acquire(ctx, principal.Email)
	if err != nil {
		return err
	}
	defer release(ctx)

	client, err := b.factory.Acquire(ctx, conn, principal.Email)
	if err != nil {
		return apierr.Unavailable("failed to acquire database connection: " + err.Error())
	}
	defer client.Release()

	if queryID != "" {
		aq := &activeQuery{
			QueryID:        queryID,
			ConnectionID:   connectionID,
			BackendPID:     client.BackendPID(),
			RequesterEmail: principal.Email,
			State:          StatePidKnown,
			StartedAt:      time.Now(),
		}
		b.mu.Lock()
		b.active[queryID] = aq
		b.mu.Unlock()
		defer func() {
			b.mu.Lock()
			delete(b.active, queryID)
			b.mu.Unlock()
		}()
	}

	emit(Frame{Kind: FramePID, QueryID: queryID, BackendPID: client.BackendPID()})

	if strings.TrimSpace(searchPath) != "" {
		if err := applySearchPath(ctx, client.Conn(), searchPath); err != nil {
			b.auditLog.Record(ctx, domain.AuditRecord{
				Kind:         domain.AuditKindSQL,
				Email:        principal.Email,
				ConnectionID: connectionID,
				Database:     conn.Database,
				SQLText:      sqlText,
				Success:      false,
				ErrorMessage: err.Error(),
			})
			emit(errorFrame(sqlText, err))
			return nil
		}
	}

	start := time.Now()
	rowCount, execErr := b.runStatements(ctx, client, conn, sqlText, analysis, emit)
	elapsed := time.Since(start)

	b.auditLog.Record(ctx, domain.AuditRecord{
		Kind:         domain.AuditKindSQL,
		Email:        principal.Email,
		ConnectionID: connectionID,
		Database:     conn.Database,
		SQLText:      sqlText,
		Success:      execErr == nil,
		ElapsedMS:    elapsed.Milliseconds(),
		RowCount:     rowCount,
		ErrorMessage: errMessage(execErr),
	})

	if execErr != nil {
		emit(errorFrame(sqlText, execErr))
		return nil
	}
	emit(Frame{Kind: FrameComplete})
	return nil
}

// applySearchPath sets the session search_path to the given comma-separated
// list of schema identifiers, each quoted via pgx.Identifier so a
// maliciously-named schema cannot inject SQL into the SET statement.
func applySearchPath(ctx context.Context, conn *pgx.Conn, searchPath string) error {
	var quoted []string
	for _, raw := range strings.Split(searchPath, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		quoted = append(quoted, pgx.Identifier{name}.Sanitize())
	}
	if len(quoted) == 0 {
		return nil
	}
	_, err := conn.Exec(ctx, "SET search_path TO "+strings.Join(quoted, ", "))
	return err
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runStatements executes every statement in sqlText, wrapping them in an
// explicit transaction only when the whole batch is transaction-safe and
// contains more than one statement (spec.md §4.5, Open Question decision
// in DESIGN.md).
func (b *Broker) runStatements(ctx context.Context, client *database.PooledClient, conn domain.Connection, sqlText string, analysis domain.SQLAnalysis, emit Emit) (*int64, error) {
	pgxConn := client.Conn()
	wrap := analysis.StatementCount > 1 && analysis.TransactionSafe

	var tx pgx.Tx
	var err error
	if wrap {
		tx, err = pgxConn.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
	}

	var total int64
	execErr := b.streamQuery(ctx, pgxConn, sqlText, emit, &total)
	if execErr != nil {
		if tx != nil {
			_ = tx.Rollback(ctx)
		}
		return nil, execErr
	}
	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
	}
	return &total, nil
}

// streamQuery runs sqlText as one multi-statement batch and streams rows
// for every resulting result set. pgx's simple protocol executes a
// semicolon-separated batch as Postgres itself would: statement by
// statement, in order.
func (b *Broker) streamQuery(ctx context.Context, conn *pgx.Conn, sqlText string, emit Emit, total *int64) error {
	rows, err := conn.Query(ctx, sqlText)
	if err != nil {
		return err
	}
	defer rows.Close()

	stmtIndex := 0
	for {
		fields := rows.FieldDescriptions()
		columns := resolveColumnMeta(ctx, conn, fields)

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make([]string, len(values))
			for i, v := range values {
				row[i] = formatCellValue(v)
			}
			emit(Frame{Kind: FrameRow, StatementIndex: stmtIndex, Columns: columns, Row: row})
			*total++
		}
		if err := rows.Err(); err != nil {
			return err
		}

		tag := rows.CommandTag()
		*total += tag.RowsAffected()

		if !rows.NextResultSet() {
			break
		}
		stmtIndex++
	}
	return nil
}

// resolveColumnMeta resolves each returned field's type name and, for
// fields attached to a real table, its table/schema/primary-key/nullable/
// has-default attributes (spec.md §4.5 step 9). A catalog lookup failure
// degrades gracefully: the column still gets a Name and Type, just without
// table-derived metadata.
func resolveColumnMeta(ctx context.Context, conn *pgx.Conn, fields []pgconn.FieldDescription) []ColumnMeta {
	tm := conn.TypeMap()
	metas := make([]ColumnMeta, len(fields))
	for i, f := range fields {
		meta := ColumnMeta{Name: string(f.Name)}
		if t, ok := tm.TypeForOID(f.DataTypeOID); ok {
			meta.Type = t.Name
		}
		if f.TableOID != 0 {
			if info, ok := lookupColumnCatalog(ctx, conn, f.TableOID, f.TableAttributeNumber); ok {
				meta.Table = info.table
				meta.Schema = info.schema
				meta.PrimaryKey = info.primaryKey
				meta.Nullable = info.nullable
				meta.HasDefault = info.hasDefault
			}
		}
		metas[i] = meta
	}
	return metas
}

type columnCatalogInfo struct {
	table      string
	schema     string
	primaryKey bool
	nullable   bool
	hasDefault bool
}

const columnCatalogQuery = `
SELECT c.relname, n.nspname, NOT a.attnotnull, a.atthasdef,
       EXISTS (
         SELECT 1 FROM pg_index i
         WHERE i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
       )
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE a.attrelid = $1 AND a.attnum = $2`

func lookupColumnCatalog(ctx context.Context, conn *pgx.Conn, tableOID uint32, attNum int16) (columnCatalogInfo, bool) {
	var info columnCatalogInfo
	err := conn.QueryRow(ctx, columnCatalogQuery, tableOID, attNum).
		Scan(&info.table, &info.schema, &info.nullable, &info.hasDefault, &info.primaryKey)
	if err != nil {
		return columnCatalogInfo{}, false
	}
	return info, true
}

// formatCellValue renders one row value the way the client displays it
// (spec.md §4.5 step 9): null becomes an empty string, timestamps become
// ISO-8601, structured values become compact JSON, and pgx's raw [16]byte
// or non-printable 16-byte representation of a uuid column is rendered in
// the usual hyphenated hex form.
func formatCellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return formatUUID(val[:])
	case []byte:
		if len(val) == 16 && !isPrintableASCII(val) {
			return formatUUID(val)
		}
		return string(val)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", val)
	default:
		if encoded, err := json.Marshal(val); err == nil {
			return string(encoded)
		}
		return fmt.Sprintf("%v", val)
	}
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func formatUUID(b []byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// errorFrame renders a failed query's error, translating a pg error's byte
// position into a line number and 2-line context snippet when present
// (spec.md §4.5 step 10).
func errorFrame(sqlText string, err error) Frame {
	frame := Frame{Kind: FrameError, Message: err.Error()}
	pgErr, ok := database.PgError(err)
	if !ok {
		return frame
	}
	message := pgErr.Message
	if pgErr.Position > 0 {
		line, text := lineAndTextAtPosition(sqlText, int(pgErr.Position))
		message = fmt.Sprintf("ERROR at Line %d: %s\nLINE %d: %s", line, pgErr.Message, line, text)
	}
	frame.Message = message
	frame.Detail = pgErr.Detail
	frame.Hint = pgErr.Hint
	frame.Position = pgErr.Position
	return frame
}

// lineAndTextAtPosition converts a 1-based byte offset into sqlText into a
// 1-based line number and that line's raw text.
func lineAndTextAtPosition(sqlText string, position int) (int, string) {
	if position < 1 {
		position = 1
	}
	if position > len(sqlText) {
		position = len(sqlText)
	}
	line := 1
	lineStart := 0
	for i := 0; i < position-1; i++ {
		if sqlText[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	lineEnd := strings.IndexByte(sqlText[lineStart:], '\n')
	if lineEnd < 0 {
		return line, sqlText[lineStart:]
	}
	return line, sqlText[lineStart : lineStart+lineEnd]
}

// CancelQuery cancels the statement running on the backend behind queryID
// (pg_cancel_backend; the backend process itself stays alive) on behalf of
// principal, who must either own the query or hold admin on its
// connection (spec.md §4.5 cancellation).
func (b *Broker) CancelQuery(ctx context.Context, principal *domain.Principal, queryID string) error {
	b.mu.RLock()
	aq, ok := b.active[queryID]
	b.mu.RUnlock()
	if !ok {
		return apierr.NotFound("query not found")
	}

	isOwner := strings.EqualFold(aq.RequesterEmail, principal.Email)
	if !isOwner {
		if err := b.iam.RequirePermission(principal, aq.ConnectionID, domain.PermissionAdmin); err != nil {
			return err
		}
	}

	conn, ok := b.store.ConnectionByID(aq.ConnectionID)
	if !ok {
		return apierr.NotFound("connection not found")
	}

	client, err := b.factory.Acquire(ctx, conn, principal.Email)
	if err != nil {
		return apierr.Unavailable("failed to acquire database connection: " + err.Error())
	}
	defer client.Release()

	_, err = client.Conn().Exec(ctx, "SELECT pg_cancel_backend($1)", aq.BackendPID)
	return err
}

// ActiveQueriesOn returns the in-flight queries against a connection,
// visible to C9 session admission for the active-sessions view.
func (b *Broker) ActiveQueriesOn(connectionID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ids []string
	for id, aq := range b.active {
		if aq.ConnectionID == connectionID {
			ids = append(ids, id)
		}
	}
	return ids
}
