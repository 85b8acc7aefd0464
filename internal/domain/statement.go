package domain

// StatementKind is the closed set of statement shapes the analyzer reasons
// about. It is a tagged-variant encoding of what would otherwise be a
// dynamically-typed AST node tag: every Statement carries exactly one Kind,
// and analyzer walkers switch on it instead of type-asserting a parser node.
type StatementKind string

const (
	StmtSelect   StatementKind = "select"
	StmtShow     StatementKind = "show"
	StmtSet      StatementKind = "set"
	StmtTransaction StatementKind = "transaction"
	StmtVacuum   StatementKind = "vacuum"

	StmtExplain StatementKind = "explain"

	StmtCall StatementKind = "call"

	StmtInsert StatementKind = "insert"
	StmtUpdate StatementKind = "update"
	StmtDelete StatementKind = "delete"
	StmtCopy   StatementKind = "copy"

	StmtCreateTable       StatementKind = "create_table"
	StmtAlterTable        StatementKind = "alter_table"
	StmtDrop              StatementKind = "drop"
	StmtCreateView        StatementKind = "create_view"
	StmtCreateIndex       StatementKind = "create_index"
	StmtCreateFunction    StatementKind = "create_function"
	StmtTruncate          StatementKind = "truncate"
	StmtCreateSchema      StatementKind = "create_schema"
	StmtCreateSequence    StatementKind = "create_sequence"
	StmtAlterSequence     StatementKind = "alter_sequence"
	StmtCreateType        StatementKind = "create_type"
	StmtCreateExtension   StatementKind = "create_extension"
	StmtCreateTrigger     StatementKind = "create_trigger"
	StmtComment           StatementKind = "comment"
	StmtGrant             StatementKind = "grant"
	StmtRevoke            StatementKind = "revoke"
	StmtRefreshMatview    StatementKind = "refresh_matview"

	StmtCreateRole       StatementKind = "create_role"
	StmtAlterRole        StatementKind = "alter_role"
	StmtDropRole         StatementKind = "drop_role"
	StmtCreateDatabase   StatementKind = "create_database"
	StmtAlterDatabase    StatementKind = "alter_database"
	StmtDropDatabase     StatementKind = "drop_database"
	StmtCreateTablespace StatementKind = "create_tablespace"
	StmtDropTablespace   StatementKind = "drop_tablespace"
	StmtAlterSystem      StatementKind = "alter_system"
	StmtReindex          StatementKind = "reindex"
	StmtCluster          StatementKind = "cluster"
	StmtLoad             StatementKind = "load"
	StmtCheckpoint       StatementKind = "checkpoint"
	StmtSubscriptionDDL  StatementKind = "subscription_ddl"
	StmtPublicationDDL   StatementKind = "publication_ddl"
	StmtReassignOwned    StatementKind = "reassign_owned"
	StmtDropOwned        StatementKind = "drop_owned"
	StmtUnknown          StatementKind = "unknown"
)

// ObjectType names what a DROP statement targets; only "index" matters to
// the analyzer (CONCURRENTLY transaction-safety) but the full set is kept so
// callers inspecting Statement.ObjectType get a real answer.
type ObjectType string

const (
	ObjectTypeTable    ObjectType = "table"
	ObjectTypeIndex    ObjectType = "index"
	ObjectTypeView     ObjectType = "view"
	ObjectTypeSchema   ObjectType = "schema"
	ObjectTypeSequence ObjectType = "sequence"
	ObjectTypeType     ObjectType = "type"
	ObjectTypeFunction ObjectType = "function"
	ObjectTypeTrigger  ObjectType = "trigger"
	ObjectTypeOther    ObjectType = "other"
)

// Statement is one parsed top-level SQL statement.
type Statement struct {
	Kind        StatementKind
	ObjectType  ObjectType // populated for drop/alter where relevant
	Concurrent  bool       // CREATE INDEX CONCURRENTLY
	Expressions []Expr     // top-level expression trees to walk for function calls
	RawText     string     // the statement's own source text slice (for CONCURRENTLY text search on DROP)
}

// ExprKind tags an Expr the same way StatementKind tags a Statement: a
// closed variant set a walker pattern-matches on instead of asserting
// concrete parser node types.
type ExprKind string

const (
	ExprColumn    ExprKind = "column"
	ExprLiteral   ExprKind = "literal"
	ExprFuncCall  ExprKind = "func"
	ExprBinary    ExprKind = "binary"
	ExprUnary     ExprKind = "unary"
	ExprCase      ExprKind = "case"
	ExprTypeCast  ExprKind = "typecast"
	ExprNullTest  ExprKind = "nulltest"
	ExprArray     ExprKind = "array"
	ExprCoalesce  ExprKind = "coalesce"
	ExprSublink   ExprKind = "sublink" // subquery: analyzer does not recurse into it
)

// Expr is one node of a statement's expression tree.
type Expr struct {
	Kind     ExprKind
	FuncName string // qualified function name, populated when Kind == ExprFuncCall
	Children []Expr
}

// Walk visits e and every descendant reachable without crossing a Sublink
// boundary, invoking visit on each node. This mirrors §4.4's instruction to
// recurse into binary/unary/case/typecast/nulltest/array/coalesce/filter
// trees but never into subqueries.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	if e.Kind == ExprSublink {
		return
	}
	for _, c := range e.Children {
		Walk(c, visit)
	}
}
