// Package sqlengine is the SQL parser facade (C2) and permission analyzer
// (C5): it turns raw SQL text into domain.Statement values using the real
// PostgreSQL grammar, then maps those statements to the permission set and
// transaction-safety verdict the broker and IAM evaluator need.
//
// The pg_query_go dependency is kept behind this package on purpose: it is
// the one place in the tree that reaches into the parser's generated node
// types, so a shape mismatch in a future parser version stays contained
// here instead of spreading through the broker.
package sqlengine

import (
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"
	"github.com/pganalyze/pg_query_go/v6/pg_query"
	"github.com/pgconsole/gateway/internal/domain"
)

// ParseError wraps a pg_query parse failure. The analyzer treats any parse
// failure as "unknown, assume the worst" (fail closed, §4.4).
type ParseError struct {
	SQL string
	Err error
}

func (e *ParseError) Error() string {
	return "parse sql: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse splits sql into its top-level statements using the real Postgres
// grammar. A parse failure returns a *ParseError; callers must treat that
// as "could not determine intent" rather than silently skipping the text.
func Parse(sql string) ([]domain.Statement, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, nil
	}

	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, &ParseError{SQL: sql, Err: err}
	}

	stmts := make([]domain.Statement, 0, len(result.Stmts))
	for _, raw := range result.Stmts {
		if raw.Stmt == nil {
			continue
		}
		stmts = append(stmts, convertStatement(raw, sql))
	}
	return stmts, nil
}

func convertStatement(raw *pg_query.RawStmt, source string) domain.Statement {
	node := raw.Stmt
	text := sliceStatementText(raw, source)

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return domain.Statement{Kind: domain.StmtSelect, Expressions: selectExprs(n.SelectStmt), RawText: text}
	case *pg_query.Node_InsertStmt:
		return domain.Statement{Kind: domain.StmtInsert, Expressions: insertExprs(n.InsertStmt), RawText: text}
	case *pg_query.Node_UpdateStmt:
		return domain.Statement{Kind: domain.StmtUpdate, Expressions: updateExprs(n.UpdateStmt), RawText: text}
	case *pg_query.Node_DeleteStmt:
		return domain.Statement{Kind: domain.StmtDelete, Expressions: deleteExprs(n.DeleteStmt), RawText: text}
	case *pg_query.Node_CopyStmt:
		return domain.Statement{Kind: domain.StmtCopy, RawText: text}
	case *pg_query.Node_TruncateStmt:
		return domain.Statement{Kind: domain.StmtTruncate, RawText: text}
	case *pg_query.Node_ExplainStmt:
		return domain.Statement{Kind: domain.StmtExplain, RawText: text}
	case *pg_query.Node_CallStmt:
		return domain.Statement{Kind: domain.StmtCall, Expressions: callExprs(n.CallStmt), RawText: text}
	case *pg_query.Node_VariableSetStmt:
		return domain.Statement{Kind: domain.StmtSet, RawText: text}
	case *pg_query.Node_VariableShowStmt:
		return domain.Statement{Kind: domain.StmtShow, RawText: text}
	case *pg_query.Node_TransactionStmt:
		return domain.Statement{Kind: domain.StmtTransaction, RawText: text}
	case *pg_query.Node_VacuumStmt:
		return domain.Statement{Kind: domain.StmtVacuum, RawText: text}
	case *pg_query.Node_ClusterStmt:
		return domain.Statement{Kind: domain.StmtCluster, RawText: text}
	case *pg_query.Node_ReindexStmt:
		return domain.Statement{Kind: domain.StmtReindex, RawText: text}
	case *pg_query.Node_LoadStmt:
		return domain.Statement{Kind: domain.StmtLoad, RawText: text}
	case *pg_query.Node_CheckPointStmt:
		return domain.Statement{Kind: domain.StmtCheckpoint, RawText: text}
	case *pg_query.Node_RefreshMatViewStmt:
		return domain.Statement{Kind: domain.StmtRefreshMatview, RawText: text}
	case *pg_query.Node_GrantStmt:
		if n.GrantStmt.GetIsGrant() {
			return domain.Statement{Kind: domain.StmtGrant, RawText: text}
		}
		return domain.Statement{Kind: domain.StmtRevoke, RawText: text}
	case *pg_query.Node_CommentStmt:
		return domain.Statement{Kind: domain.StmtComment, RawText: text}
	case *pg_query.Node_ReassignOwnedStmt:
		return domain.Statement{Kind: domain.StmtReassignOwned, RawText: text}
	case *pg_query.Node_DropOwnedStmt:
		return domain.Statement{Kind: domain.StmtDropOwned, RawText: text}
	case *pg_query.Node_CreatedbStmt:
		return domain.Statement{Kind: domain.StmtCreateDatabase, RawText: text}
	case *pg_query.Node_AlterDatabaseStmt:
		return domain.Statement{Kind: domain.StmtAlterDatabase, RawText: text}
	case *pg_query.Node_DropdbStmt:
		return domain.Statement{Kind: domain.StmtDropDatabase, RawText: text}
	case *pg_query.Node_CreateTableSpaceStmt:
		return domain.Statement{Kind: domain.StmtCreateTablespace, RawText: text}
	case *pg_query.Node_DropTableSpaceStmt:
		return domain.Statement{Kind: domain.StmtDropTablespace, RawText: text}
	case *pg_query.Node_AlterSystemStmt:
		return domain.Statement{Kind: domain.StmtAlterSystem, RawText: text}
	case *pg_query.Node_CreateRoleStmt:
		return domain.Statement{Kind: domain.StmtCreateRole, RawText: text}
	case *pg_query.Node_AlterRoleStmt:
		return domain.Statement{Kind: domain.StmtAlterRole, RawText: text}
	case *pg_query.Node_DropRoleStmt:
		return domain.Statement{Kind: domain.StmtDropRole, RawText: text}
	case *pg_query.Node_CreateStmt:
		return domain.Statement{Kind: domain.StmtCreateTable, ObjectType: domain.ObjectTypeTable, RawText: text}
	case *pg_query.Node_AlterTableStmt:
		return domain.Statement{Kind: domain.StmtAlterTable, ObjectType: domain.ObjectTypeTable, RawText: text}
	case *pg_query.Node_ViewStmt:
		return domain.Statement{Kind: domain.StmtCreateView, ObjectType: domain.ObjectTypeView, RawText: text}
	case *pg_query.Node_IndexStmt:
		return domain.Statement{
			Kind:       domain.StmtCreateIndex,
			ObjectType: domain.ObjectTypeIndex,
			Concurrent: n.IndexStmt.GetConcurrent(),
			RawText:    text,
		}
	case *pg_query.Node_CreateFunctionStmt:
		return domain.Statement{Kind: domain.StmtCreateFunction, ObjectType: domain.ObjectTypeFunction, RawText: text}
	case *pg_query.Node_CreateTrigStmt:
		return domain.Statement{Kind: domain.StmtCreateTrigger, ObjectType: domain.ObjectTypeTrigger, RawText: text}
	case *pg_query.Node_CreateSchemaStmt:
		return domain.Statement{Kind: domain.StmtCreateSchema, ObjectType: domain.ObjectTypeSchema, RawText: text}
	case *pg_query.Node_CreateSeqStmt:
		return domain.Statement{Kind: domain.StmtCreateSequence, ObjectType: domain.ObjectTypeSequence, RawText: text}
	case *pg_query.Node_AlterSeqStmt:
		return domain.Statement{Kind: domain.StmtAlterSequence, ObjectType: domain.ObjectTypeSequence, RawText: text}
	case *pg_query.Node_CompositeTypeStmt, *pg_query.Node_CreateEnumStmt, *pg_query.Node_CreateDomainStmt:
		return domain.Statement{Kind: domain.StmtCreateType, ObjectType: domain.ObjectTypeType, RawText: text}
	case *pg_query.Node_CreateExtensionStmt:
		return domain.Statement{Kind: domain.StmtCreateExtension, RawText: text}
	case *pg_query.Node_CreateSubscriptionStmt, *pg_query.Node_AlterSubscriptionStmt, *pg_query.Node_DropSubscriptionStmt:
		return domain.Statement{Kind: domain.StmtSubscriptionDDL, RawText: text}
	case *pg_query.Node_CreatePublicationStmt, *pg_query.Node_AlterPublicationStmt:
		return domain.Statement{Kind: domain.StmtPublicationDDL, RawText: text}
	case *pg_query.Node_DropStmt:
		return convertDrop(n.DropStmt, text)
	default:
		return domain.Statement{Kind: domain.StmtUnknown, RawText: text}
	}
}

func convertDrop(d *pg_query.DropStmt, text string) domain.Statement {
	objType := domain.ObjectTypeOther
	switch d.GetRemoveType() {
	case pg_query.ObjectType_OBJECT_TABLE:
		objType = domain.ObjectTypeTable
	case pg_query.ObjectType_OBJECT_INDEX:
		objType = domain.ObjectTypeIndex
	case pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_MATVIEW:
		objType = domain.ObjectTypeView
	case pg_query.ObjectType_OBJECT_SCHEMA:
		objType = domain.ObjectTypeSchema
	case pg_query.ObjectType_OBJECT_SEQUENCE:
		objType = domain.ObjectTypeSequence
	case pg_query.ObjectType_OBJECT_TYPE:
		objType = domain.ObjectTypeType
	case pg_query.ObjectType_OBJECT_FUNCTION:
		objType = domain.ObjectTypeFunction
	case pg_query.ObjectType_OBJECT_TRIGGER:
		objType = domain.ObjectTypeTrigger
	}
	return domain.Statement{
		Kind:       domain.StmtDrop,
		ObjectType: objType,
		Concurrent: d.GetConcurrent(),
		RawText:    text,
	}
}

// sliceStatementText recovers the statement's own source slice using the
// RawStmt's byte offsets into the original source, since a parse result
// gives every statement in a multi-statement batch its own Node but only
// one shared source string.
func sliceStatementText(raw *pg_query.RawStmt, source string) string {
	start := int(raw.GetStmtLocation())
	length := int(raw.GetStmtLen())
	if start < 0 {
		return ""
	}
	end := len(source)
	if length > 0 && start+length <= len(source) {
		end = start + length
	}
	if start > len(source) {
		return ""
	}
	return strings.TrimSpace(source[start:end])
}
