package domain

import "time"

// AuditKind enumerates the four record kinds the audit sink accepts.
type AuditKind string

const (
	AuditKindLogin  AuditKind = "login"
	AuditKindLogout AuditKind = "logout"
	AuditKindSQL    AuditKind = "sql"
	AuditKindExport AuditKind = "export"
)

// AuditRecord is one append-only, line-oriented audit entry. Fields not
// relevant to a given Kind are left zero-valued.
type AuditRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Kind         AuditKind `json:"kind"`
	Email        string    `json:"email"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Database     string    `json:"database,omitempty"`
	SQLText      string    `json:"sql_text,omitempty"`
	Success      bool      `json:"success"`
	ElapsedMS    int64     `json:"elapsed_ms,omitempty"`
	RowCount     *int64    `json:"row_count,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// SQLAnalysis is the synchronous, uncached result of analyzing one SQL text:
// the permissions required to execute it, how many statements it contains,
// and whether the batch may be safely wrapped in BEGIN/COMMIT.
type SQLAnalysis struct {
	Permissions     PermissionSet
	StatementCount  int
	TransactionSafe bool
}
