// Package attrs implements the three successive attribute rewrites that
// run on the typed AST before WIR lowering (spec.md §4.4): attribute fold,
// location scope, and metadata accumulation.
package attrs

import (
	"fmt"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/wir"
)

// Warning is a non-fatal finding from any of the three passes.
type Warning struct {
	Range wir.Range
	Msg   string
}

// Error is a fatal finding, currently only raised by the location-scope
// pass on an empty intersection.
type Error struct {
	Range wir.Range
	Msg   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Range, e.Msg) }

// Fold rewrites prog's statement lists in place: every StmtAttr attaches to
// the statement immediately following it, and every StmtBlockAttr attaches
// to every remaining statement of its enclosing block (recursing into
// nested blocks). The StmtAttr/StmtBlockAttr nodes themselves are removed,
// matching spec.md §3's invariant that "attribute statements are not
// semantic after pass 3".
func Fold(prog *ast.Program) []Warning {
	var warns []Warning
	prog.Stmts = foldBlock(prog.Stmts, nil, &warns)
	return warns
}

func foldBlock(stmts []*ast.Stmt, inherited []ast.Attribute, warns *[]Warning) []*ast.Stmt {
	blockAttrs := append([]ast.Attribute(nil), inherited...)
	var pending []ast.Attribute
	out := make([]*ast.Stmt, 0, len(stmts))
	for _, s := range stmts {
		if s.Kind == ast.StmtAttr {
			pending = append(pending, ast.Attribute{Key: s.AttrKey, Args: s.AttrArgs, Range: s.Range})
			continue
		}
		if s.Kind == ast.StmtBlockAttr {
			blockAttrs = append(blockAttrs, ast.Attribute{Key: s.AttrKey, Args: s.AttrArgs, Range: s.Range})
			continue
		}
		s.Attrs = append(append(append([]ast.Attribute(nil), blockAttrs...), pending...), s.Attrs...)
		pending = nil
		foldNested(s, blockAttrs, warns)
		out = append(out, s)
	}
	if len(pending) > 0 {
		for _, a := range pending {
			*warns = append(*warns, Warning{Range: a.Range, Msg: fmt.Sprintf("attribute %q has no following statement to attach to", a.Key)})
		}
	}
	return out
}

func foldNested(s *ast.Stmt, blockAttrs []ast.Attribute, warns *[]Warning) {
	switch s.Kind {
	case ast.StmtIf:
		s.Then = foldBlock(s.Then, blockAttrs, warns)
		if s.Else != nil {
			s.Else = foldBlock(s.Else, blockAttrs, warns)
		}
	case ast.StmtFor, ast.StmtWhile:
		s.Body = foldBlock(s.Body, blockAttrs, warns)
	case ast.StmtFunc:
		s.FuncBody = foldBlock(s.FuncBody, nil, warns) // a function body is its own enclosing block
	case ast.StmtClass:
		for _, m := range s.Methods {
			foldNested(m, nil, warns)
		}
	case ast.StmtLet, ast.StmtExpr:
		if s.Value != nil {
			foldExprBlocks(s.Value, warns)
		}
		if s.X != nil {
			foldExprBlocks(s.X, warns)
		}
	}
}

func foldExprBlocks(e *ast.Expr, warns *[]Warning) {
	if e == nil || e.Kind != ast.ExprParallel {
		return
	}
	for i := range e.Branches {
		e.Branches[i].Body = foldBlock(e.Branches[i].Body, nil, warns)
	}
}
