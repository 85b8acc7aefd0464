package broker

import "time"

// State is the query lifecycle state machine spec.md §4.5/§9 describes:
// a query always reaches PidKnown before any row data streams, so a client
// watching the frame stream can always cancel it once the backend pid
// frame arrives.
type State string

const (
	StateCreated    State = "created"
	StateAuthorized State = "authorized"
	StatePidKnown   State = "pid_known"
	StateExecuting  State = "executing"
	StateCompleted  State = "completed"
	StateErrored    State = "errored"
	StateCancelled  State = "cancelled"
)

// activeQuery is one in-flight query tracked in the broker's process-wide
// table, keyed by QueryID.
type activeQuery struct {
	QueryID        string
	ConnectionID   string
	BackendPID     uint32
	RequesterEmail string
	State          State
	StartedAt      time.Time
}

// FrameKind tags the shape of one streamed frame.
type FrameKind string

const (
	FramePID      FrameKind = "pid"
	FrameRow      FrameKind = "row"
	FrameComplete FrameKind = "complete"
	FrameError    FrameKind = "error"
)

// ColumnMeta describes one returned column (spec.md §4.5 step 9): its type
// name resolved from the backend's type oid, and, for columns attached to a
// real table, the table/schema it belongs to and its catalog attributes.
// Table-derived fields are best-effort: a catalog lookup failure leaves them
// zero-valued rather than failing the query.
type ColumnMeta struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Table      string `json:"table,omitempty"`
	Schema     string `json:"schema,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Nullable   bool   `json:"nullable,omitempty"`
	HasDefault bool   `json:"has_default,omitempty"`
}

// Frame is one unit of the query result stream. Exactly one PID frame is
// sent first, then zero or more Row frames per statement, then exactly one
// of Complete or Error.
type Frame struct {
	Kind FrameKind `json:"kind"`

	QueryID    string `json:"query_id,omitempty"`
	BackendPID uint32 `json:"backend_pid,omitempty"`

	StatementIndex int          `json:"statement_index,omitempty"`
	Columns        []ColumnMeta `json:"columns,omitempty"`
	Row            []string     `json:"row,omitempty"`
	RowsAffected   int64        `json:"rows_affected,omitempty"`

	Message  string `json:"message,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Hint     string `json:"hint,omitempty"`
	Position int32  `json:"position,omitempty"`
}
