package sqlengine

import (
	"strings"

	"github.com/pganalyze/pg_query_go/v6/pg_query"
	"github.com/pgconsole/gateway/internal/domain"
)

// selectExprs collects the top-level expression trees a SELECT can carry:
// its target list, WHERE clause, HAVING clause, and the join/function
// expressions hiding in its FROM clause (e.g. `FROM pg_terminate_backend(123)`).
func selectExprs(s *pg_query.SelectStmt) []domain.Expr {
	var out []domain.Expr
	out = append(out, nodeListToExprs(s.GetTargetList())...)
	out = append(out, nodeToExprSlice(s.GetWhereClause())...)
	out = append(out, nodeToExprSlice(s.GetHavingClause())...)
	out = append(out, nodeListToExprs(s.GetFromClause())...)
	if s.GetLarg() != nil {
		out = append(out, selectExprs(s.GetLarg())...)
	}
	if s.GetRarg() != nil {
		out = append(out, selectExprs(s.GetRarg())...)
	}
	return out
}

func insertExprs(s *pg_query.InsertStmt) []domain.Expr {
	var out []domain.Expr
	if sel, ok := s.GetSelectStmt().GetNode().(*pg_query.Node_SelectStmt); ok {
		out = append(out, selectExprs(sel.SelectStmt)...)
	}
	out = append(out, nodeListToExprs(s.GetOnConflictClause().GetTargetList())...)
	return out
}

func updateExprs(s *pg_query.UpdateStmt) []domain.Expr {
	var out []domain.Expr
	out = append(out, nodeListToExprs(s.GetTargetList())...)
	out = append(out, nodeToExprSlice(s.GetWhereClause())...)
	out = append(out, nodeListToExprs(s.GetFromClause())...)
	return out
}

func deleteExprs(s *pg_query.DeleteStmt) []domain.Expr {
	var out []domain.Expr
	out = append(out, nodeToExprSlice(s.GetWhereClause())...)
	out = append(out, nodeListToExprs(s.GetUsingClause())...)
	return out
}

func callExprs(s *pg_query.CallStmt) []domain.Expr {
	if fc, ok := s.GetFuncall().GetNode().(*pg_query.Node_FuncCall); ok {
		return []domain.Expr{funcCallToExpr(fc.FuncCall)}
	}
	return nil
}

func nodeListToExprs(nodes []*pg_query.Node) []domain.Expr {
	var out []domain.Expr
	for _, n := range nodes {
		out = append(out, nodeToExprSlice(n)...)
	}
	return out
}

func nodeToExprSlice(n *pg_query.Node) []domain.Expr {
	e, ok := nodeToExpr(n)
	if !ok {
		return nil
	}
	return []domain.Expr{e}
}

// nodeToExpr converts one parser node into a domain.Expr, recursing into
// the shapes the analyzer cares about (function calls and the expression
// kinds that can contain them) per spec.md §4.4. Node kinds the analyzer
// has no use for (plain column refs, constants, resolved targets without
// inner expressions) are skipped rather than represented.
func nodeToExpr(n *pg_query.Node) (domain.Expr, bool) {
	if n == nil {
		return domain.Expr{}, false
	}
	switch v := n.Node.(type) {
	case *pg_query.Node_FuncCall:
		return funcCallToExpr(v.FuncCall), true
	case *pg_query.Node_AExpr:
		return domain.Expr{Kind: domain.ExprBinary, Children: append(
			nodeToExprSlice(v.AExpr.GetLexpr()),
			nodeToExprSlice(v.AExpr.GetRexpr())...,
		)}, true
	case *pg_query.Node_BoolExpr:
		return domain.Expr{Kind: domain.ExprBinary, Children: nodeListToExprs(v.BoolExpr.GetArgs())}, true
	case *pg_query.Node_CaseExpr:
		var children []domain.Expr
		children = append(children, nodeToExprSlice(v.CaseExpr.GetArg())...)
		children = append(children, nodeToExprSlice(v.CaseExpr.GetDefresult())...)
		for _, w := range v.CaseExpr.GetArgs() {
			if caseWhen, ok := w.GetNode().(*pg_query.Node_CaseWhen); ok {
				children = append(children, nodeToExprSlice(caseWhen.CaseWhen.GetExpr())...)
				children = append(children, nodeToExprSlice(caseWhen.CaseWhen.GetResult())...)
			}
		}
		return domain.Expr{Kind: domain.ExprCase, Children: children}, true
	case *pg_query.Node_TypeCast:
		return domain.Expr{Kind: domain.ExprTypeCast, Children: nodeToExprSlice(v.TypeCast.GetArg())}, true
	case *pg_query.Node_NullTest:
		return domain.Expr{Kind: domain.ExprNullTest, Children: nodeToExprSlice(v.NullTest.GetArg())}, true
	case *pg_query.Node_AArrayExpr:
		return domain.Expr{Kind: domain.ExprArray, Children: nodeListToExprs(v.AArrayExpr.GetElements())}, true
	case *pg_query.Node_CoalesceExpr:
		return domain.Expr{Kind: domain.ExprCoalesce, Children: nodeListToExprs(v.CoalesceExpr.GetArgs())}, true
	case *pg_query.Node_SubLink:
		return domain.Expr{Kind: domain.ExprSublink}, true
	case *pg_query.Node_ResTarget:
		return nodeToExpr(v.ResTarget.GetVal())
	case *pg_query.Node_RangeFunction:
		var children []domain.Expr
		for _, fn := range v.RangeFunction.GetFunctions() {
			if lst, ok := fn.GetNode().(*pg_query.Node_List); ok {
				children = append(children, nodeListToExprs(lst.List.GetItems())...)
			}
		}
		return domain.Expr{Kind: domain.ExprFuncCall, Children: children}, true
	default:
		return domain.Expr{}, false
	}
}

func funcCallToExpr(fc *pg_query.FuncCall) domain.Expr {
	var parts []string
	for _, n := range fc.GetFuncname() {
		if s, ok := n.GetNode().(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.GetSval())
		}
	}
	return domain.Expr{
		Kind:     domain.ExprFuncCall,
		FuncName: strings.ToLower(strings.Join(parts, ".")),
		Children: nodeListToExprs(fc.GetArgs()),
	}
}
