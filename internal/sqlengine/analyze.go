package sqlengine

import (
	"regexp"
	"strings"

	"github.com/pgconsole/gateway/internal/domain"
)

// statementPermissions maps each statement kind to the permission it
// requires (spec.md §4.4's statement-to-permission table). StmtUnknown is
// handled separately: it always demands admin, fail-closed.
var statementPermissions = map[domain.StatementKind]domain.Permission{
	domain.StmtSelect:  domain.PermissionRead,
	domain.StmtShow:    domain.PermissionRead,
	domain.StmtExplain: domain.PermissionExplain,
	domain.StmtCall:    domain.PermissionExecute,

	domain.StmtInsert: domain.PermissionWrite,
	domain.StmtUpdate: domain.PermissionWrite,
	domain.StmtDelete: domain.PermissionWrite,
	domain.StmtCopy:   domain.PermissionWrite,

	domain.StmtSet:          domain.PermissionRead,
	domain.StmtTransaction:  domain.PermissionRead,
	domain.StmtCheckpoint:   domain.PermissionAdmin,
	domain.StmtLoad:         domain.PermissionAdmin,

	domain.StmtCreateTable:     domain.PermissionDDL,
	domain.StmtAlterTable:      domain.PermissionDDL,
	domain.StmtDrop:            domain.PermissionDDL,
	domain.StmtCreateView:      domain.PermissionDDL,
	domain.StmtCreateIndex:     domain.PermissionDDL,
	domain.StmtCreateFunction:  domain.PermissionDDL,
	domain.StmtTruncate:        domain.PermissionDDL,
	domain.StmtCreateSchema:    domain.PermissionDDL,
	domain.StmtCreateSequence:  domain.PermissionDDL,
	domain.StmtAlterSequence:   domain.PermissionDDL,
	domain.StmtCreateType:      domain.PermissionDDL,
	domain.StmtCreateExtension: domain.PermissionDDL,
	domain.StmtCreateTrigger:   domain.PermissionDDL,
	domain.StmtComment:         domain.PermissionDDL,
	domain.StmtRefreshMatview:  domain.PermissionDDL,
	domain.StmtSubscriptionDDL: domain.PermissionDDL,
	domain.StmtPublicationDDL:  domain.PermissionDDL,

	domain.StmtGrant:  domain.PermissionAdmin,
	domain.StmtRevoke: domain.PermissionAdmin,

	domain.StmtVacuum:          domain.PermissionAdmin,
	domain.StmtCluster:         domain.PermissionAdmin,
	domain.StmtReindex:         domain.PermissionAdmin,
	domain.StmtCreateRole:      domain.PermissionAdmin,
	domain.StmtAlterRole:       domain.PermissionAdmin,
	domain.StmtDropRole:        domain.PermissionAdmin,
	domain.StmtCreateDatabase:  domain.PermissionAdmin,
	domain.StmtAlterDatabase:   domain.PermissionAdmin,
	domain.StmtDropDatabase:    domain.PermissionAdmin,
	domain.StmtCreateTablespace: domain.PermissionAdmin,
	domain.StmtDropTablespace:  domain.PermissionAdmin,
	domain.StmtAlterSystem:     domain.PermissionAdmin,
	domain.StmtReassignOwned:   domain.PermissionAdmin,
	domain.StmtDropOwned:       domain.PermissionAdmin,
}

// adminFunctions is the catalog of function calls that require admin
// regardless of the statement kind they appear in (spec.md §4.4:
// `pg_cancel_backend`/`pg_terminate_backend` reached via a plain SELECT
// still demand admin, not just read).
var adminFunctions = map[string]struct{}{
	"pg_cancel_backend":    {},
	"pg_terminate_backend": {},
	"pg_reload_conf":       {},
	"pg_rotate_logfile":    {},
	"pg_promote":           {},
}

// transactionUnsafeKinds are statement kinds that Postgres refuses to run
// inside a transaction block; a batch containing one of these cannot be
// wrapped in an implicit BEGIN/COMMIT (spec.md §4.5).
var transactionUnsafeKinds = map[domain.StatementKind]struct{}{
	domain.StmtVacuum:           {},
	domain.StmtCluster:          {},
	domain.StmtReindex:          {},
	domain.StmtCreateDatabase:   {},
	domain.StmtAlterDatabase:    {},
	domain.StmtDropDatabase:     {},
	domain.StmtCreateTablespace: {},
	domain.StmtDropTablespace:   {},
	domain.StmtAlterSystem:      {},
	domain.StmtTransaction:      {},
	domain.StmtCheckpoint:       {},
}

var concurrentlyPattern = regexp.MustCompile(`(?i)\bconcurrently\b`)

// Analyze runs the full permission analysis over one SQL text: it parses
// every statement, determines the permission set required to run all of
// them, counts statements, and decides whether the batch may be wrapped in
// an explicit transaction. A parse failure fails closed: {admin},
// transactionSafe=false, so the caller must demand the broadest grant
// rather than guess at intent.
func Analyze(sql string) domain.SQLAnalysis {
	stmts, err := Parse(sql)
	if err != nil {
		return domain.SQLAnalysis{
			Permissions:     domain.NewPermissionSet(domain.PermissionAdmin),
			StatementCount:  0,
			TransactionSafe: false,
		}
	}
	if len(stmts) == 0 {
		return domain.SQLAnalysis{
			Permissions:     domain.NewPermissionSet(domain.PermissionRead),
			StatementCount:  0,
			TransactionSafe: true,
		}
	}

	perms := domain.PermissionSet{}
	safe := true
	for _, stmt := range stmts {
		perms = perms.Union(statementRequiredPermissions(stmt))
		if !statementIsTransactionSafe(stmt) {
			safe = false
		}
	}

	return domain.SQLAnalysis{
		Permissions:     perms,
		StatementCount:  len(stmts),
		TransactionSafe: safe,
	}
}

func statementRequiredPermissions(stmt domain.Statement) domain.PermissionSet {
	perms := domain.PermissionSet{}
	if p, ok := statementPermissions[stmt.Kind]; ok {
		perms.Add(p)
	} else {
		perms.Add(domain.PermissionAdmin)
	}

	for _, expr := range stmt.Expressions {
		domain.Walk(expr, func(e domain.Expr) {
			if e.Kind != domain.ExprFuncCall {
				return
			}
			if _, admin := adminFunctions[e.FuncName]; admin {
				perms.Add(domain.PermissionAdmin)
			} else {
				perms.Add(domain.PermissionRead)
			}
		})
	}

	return perms
}

func statementIsTransactionSafe(stmt domain.Statement) bool {
	if _, unsafe := transactionUnsafeKinds[stmt.Kind]; unsafe {
		return false
	}
	if stmt.Kind == domain.StmtCreateIndex && stmt.Concurrent {
		return false
	}
	if stmt.Kind == domain.StmtDrop && stmt.ObjectType == domain.ObjectTypeIndex {
		if stmt.Concurrent || concurrentlyPattern.MatchString(strings.ToUpper(stmt.RawText)) {
			return false
		}
	}
	return true
}
