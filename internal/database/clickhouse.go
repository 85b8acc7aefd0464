package database

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"
)

// ClickHouse mirrors audit records into an analytics store so dashboards
// can query query-volume and permission-denial trends without scanning the
// append-only audit log directly. The teacher's go.mod already depends on
// clickhouse-go/v2 without using it anywhere; this is its first caller.
type ClickHouse struct {
	Conn   clickhouse.Conn
	logger zerolog.Logger
}

// NewClickHouse opens a connection to addr and creates the audit mirror
// table if it does not already exist.
func NewClickHouse(ctx context.Context, addr, database, username, password string, logger zerolog.Logger) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, err
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS audit_events (
	timestamp    DateTime64(3),
	kind         String,
	email        String,
	connection_id String,
	database     String,
	sql_text     String,
	success      UInt8,
	elapsed_ms   Int64,
	row_count    Nullable(Int64),
	error_message String
) ENGINE = MergeTree()
ORDER BY (timestamp, email)`
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, err
	}

	logger.Info().Str("addr", addr).Msg("clickhouse audit mirror ready")
	return &ClickHouse{Conn: conn, logger: logger}, nil
}

// Close closes the underlying connection.
func (c *ClickHouse) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

// InsertAuditRecord mirrors one audit record into ClickHouse. Failures are
// logged and swallowed: the append-only sink is the audit system of
// record (spec.md §4.6); this mirror is best-effort.
func (c *ClickHouse) InsertAuditRecord(ctx context.Context, rec AuditRow) {
	err := c.Conn.Exec(ctx, `INSERT INTO audit_events
		(timestamp, kind, email, connection_id, database, sql_text, success, elapsed_ms, row_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Kind, rec.Email, rec.ConnectionID, rec.Database,
		rec.SQLText, rec.Success, rec.ElapsedMS, rec.RowCount, rec.ErrorMessage,
	)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to mirror audit record to clickhouse")
	}
}

// AuditRow is the flattened shape InsertAuditRecord writes; kept separate
// from domain.AuditRecord so this package has no dependency on domain.
type AuditRow struct {
	Timestamp    time.Time
	Kind         string
	Email        string
	ConnectionID string
	Database     string
	SQLText      string
	Success      bool
	ElapsedMS    int64
	RowCount     *int64
	ErrorMessage string
}
