package snippet

import "github.com/brane-run/brane/ast"

// shiftProgram shifts every range in prog by lineOffset, a leading traversal
// over the whole AST so later errors and WIR ranges refer to the user's full
// transcript rather than to the single entry just parsed (spec.md §4.6).
func shiftProgram(prog *ast.Program, lineOffset int) {
	if lineOffset == 0 {
		return
	}
	prog.Range = prog.Range.Shift(lineOffset)
	shiftStmts(prog.Stmts, lineOffset)
}

func shiftStmts(stmts []*ast.Stmt, lineOffset int) {
	for _, s := range stmts {
		shiftStmt(s, lineOffset)
	}
}

func shiftStmt(s *ast.Stmt, lineOffset int) {
	if s == nil {
		return
	}
	s.Range = s.Range.Shift(lineOffset)
	shiftType(s.Type, lineOffset)
	shiftExpr(s.Value, lineOffset)
	shiftExpr(s.Target, lineOffset)
	shiftExpr(s.Cond, lineOffset)
	shiftStmts(s.Then, lineOffset)
	shiftStmts(s.Else, lineOffset)
	shiftExpr(s.Iter, lineOffset)
	shiftStmts(s.Body, lineOffset)
	shiftExpr(s.X, lineOffset)
	shiftParams(s.Params, lineOffset)
	shiftType(s.ReturnType, lineOffset)
	shiftStmts(s.FuncBody, lineOffset)
	shiftParams(s.Fields, lineOffset)
	shiftStmts(s.Methods, lineOffset)
	for _, a := range s.AttrArgs {
		shiftExpr(a, lineOffset)
	}
	for i := range s.Attrs {
		s.Attrs[i].Range = s.Attrs[i].Range.Shift(lineOffset)
		for _, a := range s.Attrs[i].Args {
			shiftExpr(a, lineOffset)
		}
	}
}

func shiftExpr(e *ast.Expr, lineOffset int) {
	if e == nil {
		return
	}
	e.Range = e.Range.Shift(lineOffset)
	for _, el := range e.Elems {
		shiftExpr(el, lineOffset)
	}
	shiftExpr(e.Left, lineOffset)
	shiftExpr(e.Right, lineOffset)
	shiftExpr(e.X, lineOffset)
	for _, a := range e.Args {
		shiftExpr(a, lineOffset)
	}
	for i := range e.Branches {
		e.Branches[i].Range = e.Branches[i].Range.Shift(lineOffset)
		shiftStmts(e.Branches[i].Body, lineOffset)
	}
}

func shiftType(t *ast.TypeExpr, lineOffset int) {
	if t == nil {
		return
	}
	t.Range = t.Range.Shift(lineOffset)
	shiftType(t.Elem, lineOffset)
}

func shiftParams(params []ast.Param, lineOffset int) {
	for i := range params {
		params[i].Range = params[i].Range.Shift(lineOffset)
		shiftType(params[i].Type, lineOffset)
	}
}
