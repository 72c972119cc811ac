// Package typecheck implements Brane's bidirectional type checker
// (spec.md §4.3): it infers an ast.Expr's type bottom-up, checks it against
// a top-down expectation where one exists, and accepts implicit
// Int->Real / T->Any coercions rather than rejecting them (the coercions
// are not recorded in the Result).
package typecheck

import (
	"fmt"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/resolve"
	"github.com/brane-run/brane/wir"
)

// Error is a type mismatch, carrying both the expression's range and the
// expected/actual types (spec.md §4.3, "emits an error with both ranges and
// the inferred types").
type Error struct {
	Range    wir.Range
	Msg      string
	Expected wir.DataType
	Actual   wir.DataType
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Range, e.Msg) }

// Warning is a non-fatal finding: an unused merge strategy or an
// uncommitted IntermediateResult return (spec.md §4.3).
type Warning struct {
	Range wir.Range
	Msg   string
}

// Result is the checker's output: every expression's inferred type, plus
// any warnings.
type Result struct {
	Types    map[*ast.Expr]wir.DataType
	Warnings []Warning
}

// Checker type-checks one Program against the resolver's Result.
type Checker struct {
	sym   *wir.SymTable
	refs  map[*ast.Expr]resolve.Ref
	types map[*ast.Expr]wir.DataType
	warns []Warning
	errs  []error

	// funcReturn maps a func-scoped return statement to its enclosing
	// function's declared return type, so Return can be checked.
	funcReturn []wir.DataType
}

// New constructs a Checker over a resolver Result.
func New(res *resolve.Result) *Checker {
	return &Checker{
		sym:   &res.Sym,
		refs:  res.Refs,
		types: map[*ast.Expr]wir.DataType{},
	}
}

// Check type-checks prog, returning the inferred types/warnings and any
// errors.
func (c *Checker) Check(prog *ast.Program) (*Result, []error) {
	c.checkBlock(prog.Stmts, wir.AnyTy())
	return &Result{Types: c.types, Warnings: c.warns}, c.errs
}

func (c *Checker) errorf(r wir.Range, expected, actual wir.DataType, format string, args ...interface{}) {
	c.errs = append(c.errs, &Error{Range: r, Msg: fmt.Sprintf(format, args...), Expected: expected, Actual: actual})
}

func (c *Checker) warnf(r wir.Range, format string, args ...interface{}) {
	c.warns = append(c.warns, Warning{Range: r, Msg: fmt.Sprintf(format, args...)})
}

// checkBlock type-checks a statement sequence; enclosingReturn is the
// return type of the function body we're in (Any at the top level, so
// <main> may return a value of any type or none).
func (c *Checker) checkBlock(stmts []*ast.Stmt, enclosingReturn wir.DataType) {
	c.funcReturn = append(c.funcReturn, enclosingReturn)
	defer func() { c.funcReturn = c.funcReturn[:len(c.funcReturn)-1] }()
	for _, s := range stmts {
		c.checkStmt(s)
	}
}

func (c *Checker) currentReturn() wir.DataType {
	if len(c.funcReturn) == 0 {
		return wir.Void()
	}
	return c.funcReturn[len(c.funcReturn)-1]
}

func (c *Checker) checkStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtLet:
		actual := c.infer(s.Value)
		if s.Type != nil {
			want := typeOf(s.Type)
			if !actual.AssignableTo(want) {
				c.errorf(s.Range, want, actual, "cannot assign %s to variable of type %s", actual, want)
			}
		}
		if actual.Kind == wir.KindIntermediateResult {
			c.warnf(s.Range, "intermediate result %q bound without committing to a dataset", s.Name)
		}
	case ast.StmtAssign:
		want := c.infer(s.Target)
		actual := c.infer(s.Value)
		if !actual.AssignableTo(want) {
			c.errorf(s.Range, want, actual, "cannot assign %s to target of type %s", actual, want)
		}
	case ast.StmtIf:
		cond := c.infer(s.Cond)
		if cond.Kind != wir.KindBool {
			c.errorf(s.Cond.Range, wir.Bool(), cond, "if condition must be Bool, found %s", cond)
		}
		c.checkBlock(s.Then, c.currentReturn())
		if s.Else != nil {
			c.checkBlock(s.Else, c.currentReturn())
		}
	case ast.StmtFor:
		c.infer(s.Iter)
		c.checkBlock(s.Body, c.currentReturn())
	case ast.StmtWhile:
		cond := c.infer(s.Cond)
		if cond.Kind != wir.KindBool {
			c.errorf(s.Cond.Range, wir.Bool(), cond, "while condition must be Bool, found %s", cond)
		}
		c.checkBlock(s.Body, c.currentReturn())
	case ast.StmtReturn:
		want := c.currentReturn()
		if s.HasValue {
			actual := c.infer(s.X)
			if want.Kind != wir.KindAny && !actual.AssignableTo(want) {
				c.errorf(s.Range, want, actual, "return type mismatch: expected %s, found %s", want, actual)
			}
			if actual.Kind == wir.KindIntermediateResult {
				c.warnf(s.Range, "returning an intermediate result without committing it to a dataset")
			}
		} else if want.Kind != wir.KindVoid && want.Kind != wir.KindAny {
			c.errorf(s.Range, want, wir.Void(), "missing return value, expected %s", want)
		}
	case ast.StmtExpr:
		c.infer(s.X)
	case ast.StmtFunc:
		c.checkBlock(s.FuncBody, typeOf(s.ReturnType))
	case ast.StmtClass:
		for _, m := range s.Methods {
			c.checkStmt(m)
		}
	}
}

func (c *Checker) infer(e *ast.Expr) wir.DataType {
	if e == nil {
		return wir.Void()
	}
	if t, ok := c.types[e]; ok {
		return t
	}
	t := c.inferUncached(e)
	c.types[e] = t
	return t
}

func (c *Checker) inferUncached(e *ast.Expr) wir.DataType {
	switch e.Kind {
	case ast.ExprLiteral:
		return wir.DataType{Kind: e.LitKind}
	case ast.ExprIdent:
		ref, ok := c.refs[e]
		if !ok || ref.Kind != resolve.RefVar || ref.Index >= len(c.sym.Vars) {
			return wir.AnyTy()
		}
		return c.sym.Vars[ref.Index].Type
	case ast.ExprArray:
		elem := wir.AnyTy()
		for i, el := range e.Elems {
			t := c.infer(el)
			if i == 0 {
				elem = t
			} else if !t.Equal(elem) {
				elem = wir.AnyTy()
			}
		}
		return wir.Array(elem)
	case ast.ExprBinary:
		return c.inferBinary(e)
	case ast.ExprUnary:
		x := c.infer(e.X)
		switch e.Op {
		case wir.Not:
			if x.Kind != wir.KindBool {
				c.errorf(e.Range, wir.Bool(), x, "operator ! requires Bool, found %s", x)
			}
			return wir.Bool()
		case wir.Neg:
			if x.Kind != wir.KindInt && x.Kind != wir.KindReal {
				c.errorf(e.Range, wir.Int(), x, "unary - requires Int or Real, found %s", x)
			}
			return x
		}
		return wir.AnyTy()
	case ast.ExprProject:
		recv := c.infer(e.X)
		if recv.Kind != wir.KindClass {
			c.errorf(e.Range, wir.Class(""), recv, "cannot project field %q off non-class type %s", e.Field, recv)
			return wir.AnyTy()
		}
		for i, cls := range c.sym.Classes {
			if cls.Name == recv.ClassName {
				for _, f := range c.sym.Classes[i].Fields {
					if f.Name == e.Field {
						return f.Type
					}
				}
			}
		}
		c.errorf(e.Range, wir.Void(), recv, "class %s has no field %q", recv.ClassName, e.Field)
		return wir.AnyTy()
	case ast.ExprCall:
		return c.inferCall(e)
	case ast.ExprParallel:
		return c.inferParallel(e)
	default:
		return wir.AnyTy()
	}
}

func (c *Checker) inferBinary(e *ast.Expr) wir.DataType {
	l := c.infer(e.Left)
	r := c.infer(e.Right)
	switch e.Op {
	case wir.And, wir.Or:
		if l.Kind != wir.KindBool || r.Kind != wir.KindBool {
			c.errorf(e.Range, wir.Bool(), l, "operator %s requires Bool operands", e.Op)
		}
		return wir.Bool()
	case wir.Eq, wir.Neq, wir.Lt, wir.Lte, wir.Gt, wir.Gte:
		if !l.AssignableTo(r) && !r.AssignableTo(l) {
			c.errorf(e.Range, l, r, "operator %s requires comparable operands, found %s and %s", e.Op, l, r)
		}
		return wir.Bool()
	default: // + - * / %
		if l.Kind == wir.KindString && r.Kind == wir.KindString && e.Op == wir.Add {
			return wir.Str()
		}
		if (l.Kind != wir.KindInt && l.Kind != wir.KindReal) || (r.Kind != wir.KindInt && r.Kind != wir.KindReal) {
			c.errorf(e.Range, wir.Int(), l, "operator %s requires numeric operands, found %s and %s", e.Op, l, r)
			return wir.AnyTy()
		}
		if l.Kind == wir.KindReal || r.Kind == wir.KindReal {
			return wir.Real()
		}
		return wir.Int()
	}
}

func (c *Checker) inferCall(e *ast.Expr) wir.DataType {
	ref, ok := c.refs[e]
	if !ok {
		return wir.AnyTy()
	}
	var params []wir.Param
	var ret wir.DataType
	switch ref.Kind {
	case resolve.RefFunc:
		if ref.Index >= len(c.sym.Funcs) {
			return wir.AnyTy()
		}
		fd := c.sym.Funcs[ref.Index]
		params, ret = fd.Params, fd.ReturnType
	case resolve.RefTask:
		if ref.Index >= len(c.sym.Tasks) {
			return wir.AnyTy()
		}
		td := c.sym.Tasks[ref.Index]
		params, ret = td.Input, td.ReturnType
	default:
		return wir.AnyTy()
	}
	if len(e.Args) != len(params) {
		c.errs = append(c.errs, &Error{
			Range: e.Range,
			Msg:   fmt.Sprintf("%s expects %d argument(s), found %d", e.Callee, len(params), len(e.Args)),
		})
	}
	for i, a := range e.Args {
		actual := c.infer(a)
		if i >= len(params) {
			continue
		}
		if !actual.AssignableTo(params[i].Type) {
			c.errorf(a.Range, params[i].Type, actual, "argument %d to %s: expected %s, found %s", i+1, e.Callee, params[i].Type, actual)
		}
	}
	return ret
}

func (c *Checker) inferParallel(e *ast.Expr) wir.DataType {
	var branchTypes []wir.DataType
	for _, br := range e.Branches {
		var last wir.DataType = wir.Void()
		c.funcReturn = append(c.funcReturn, c.currentReturn())
		for _, s := range br.Body {
			c.checkStmt(s)
			if s.Kind == ast.StmtExpr {
				last = c.infer(s.X)
			} else if s.Kind == ast.StmtReturn && s.HasValue {
				last = c.infer(s.X)
			}
		}
		c.funcReturn = c.funcReturn[:len(c.funcReturn)-1]
		branchTypes = append(branchTypes, last)
	}
	if len(branchTypes) == 0 {
		if e.Strategy == wir.MergeSum || e.Strategy == wir.MergeProduct || e.Strategy == wir.MergeMax || e.Strategy == wir.MergeMin {
			c.errs = append(c.errs, &Error{Range: e.Range, Msg: fmt.Sprintf("parallel block has zero branches, invalid for merge strategy %s", e.Strategy)})
		}
		return wir.Void()
	}
	if e.Strategy.ArithmeticOnly() {
		for i, t := range branchTypes {
			if t.Kind != wir.KindInt && t.Kind != wir.KindReal {
				c.errorf(e.Branches[i].Range, wir.Int(), t, "merge strategy %s requires numeric branch values, found %s", e.Strategy, t)
			}
		}
		return branchTypes[0]
	}
	if e.Strategy == wir.MergeNone {
		if !e.HasStrategy {
			c.warnf(e.Range, "parallel block result is unused; merge strategy defaults to none")
		}
		return wir.Void()
	}
	return wir.Array(branchTypes[0])
}

func typeOf(t *ast.TypeExpr) wir.DataType {
	if t == nil {
		return wir.AnyTy()
	}
	switch t.Kind {
	case wir.KindArray:
		return wir.Array(typeOf(t.Elem))
	case wir.KindClass:
		return wir.Class(t.ClassName)
	default:
		return wir.DataType{Kind: t.Kind}
	}
}
