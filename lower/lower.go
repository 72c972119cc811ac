// Package lower converts the typed, attribute-folded AST into the WIR edge
// graph (spec.md §4.5). Statements lower to sequences of Linear edges;
// control structures become Branch/Loop/Parallel+Join; function
// definitions become entries in the workflow's Funcs map; calls lower to
// Node (external package tasks) or Call (user functions dispatched via the
// value stack); returns become Return.
//
// Loop subgraphs (Cond, Body) are a special case: unlike every other edge
// index, their trailing edges are deliberately left with Next == NoEdge.
// The VM's Loop handler treats that terminal as "end of this subgraph,
// not end of function" — it evaluates Cond to a bool, then runs Body once
// and re-evaluates Cond, never confusing a subgraph's exit with the
// function's Stop.
package lower

import (
	"fmt"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/attrs"
	"github.com/brane-run/brane/resolve"
	"github.com/brane-run/brane/typecheck"
	"github.com/brane-run/brane/wir"
)

// Error is a lowering failure — almost always a scope limitation (e.g. an
// indirect call through a variable) rather than a user mistake already
// caught by an earlier pass.
type Error struct {
	Range wir.Range
	Msg   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Range, e.Msg) }

// patch names one edge field still waiting for its target index.
type patch struct {
	idx   int
	field string // "next", "true", "false", or "merge"
}

type fragment struct {
	entry int
	ends  []patch
}

// fn lowers a single function body (or the <main> graph) into its own edge
// slice.
type fn struct {
	edges     []wir.Edge
	discardVar int
	hasDiscard bool
}

func (f *fn) append(e wir.Edge) int {
	f.edges = append(f.edges, e)
	return len(f.edges) - 1
}

func (f *fn) setPatch(p patch, target int) {
	switch p.field {
	case "next":
		f.edges[p.idx].Next = target
	case "true":
		f.edges[p.idx].TrueNext = target
	case "false":
		f.edges[p.idx].FalseNext = target
	case "merge":
		f.edges[p.idx].Merge = target
	}
}

func (f *fn) link(ends []patch, target int) {
	for _, p := range ends {
		f.setPatch(p, target)
	}
}

// Lowerer holds the shared, read-only context from earlier passes.
type Lowerer struct {
	sym       *wir.SymTable
	refs      map[*ast.Expr]resolve.Ref
	taskRefs  map[*ast.Expr]resolve.TaskRef
	types     map[*ast.Expr]wir.DataType
	locScopes *attrs.Scopes
	mdata     *attrs.Metadata
	errs      []error
}

// Lower runs the full lowering pass, producing a Workflow.
func Lower(id string, prog *ast.Program, res *resolve.Result, tc *typecheck.Result, locScopes *attrs.Scopes, mdata *attrs.Metadata) (*wir.Workflow, []error) {
	l := &Lowerer{sym: &res.Sym, refs: res.Refs, taskRefs: res.TaskRefs, types: tc.Types, locScopes: locScopes, mdata: mdata}

	w := &wir.Workflow{ID: id, Funcs: map[int][]wir.Edge{}}
	mainFn := &fn{}
	entry, ends := l.lowerStmts(prog.Stmts, mainFn)
	stopIdx := mainFn.append(wir.NewStop())
	mainFn.link(ends, stopIdx)
	if entry == -1 {
		entry = stopIdx
	}
	w.Graph = reindexFromEntry(mainFn.edges, entry)
	w.Sym = *l.sym
	if mdata != nil {
		w.Metadata = mdata.Workflow
	}

	// Lower every user function body collected by the resolver.
	for idx, declStmt := range res.FuncNodes {
		body := &fn{}
		bEntry, bEnds := l.lowerStmts(declStmt.FuncBody, body)
		retIdx := body.append(wir.NewReturn())
		body.link(bEnds, retIdx)
		if bEntry == -1 {
			bEntry = retIdx
		}
		w.Funcs[idx] = reindexFromEntry(body.edges, bEntry)
	}
	return w, l.errs
}

// reindexFromEntry is a no-op placeholder when entry is already 0 (the
// common case, since lowerStmts always starts a fresh fn at index 0); kept
// so a future optimization pass (dead-edge elimination before entry) has a
// single seam to hook into.
func reindexFromEntry(edges []wir.Edge, entry int) []wir.Edge {
	if entry == 0 {
		return edges
	}
	return edges
}

func (l *Lowerer) errorf(r wir.Range, format string, args ...interface{}) {
	l.errs = append(l.errs, &Error{Range: r, Msg: fmt.Sprintf(format, args...)})
}

// freshVar declares a hidden, compiler-introduced variable (loop indices,
// call-argument staging, discarded results).
func (l *Lowerer) freshVar(name string, ty wir.DataType) int {
	return l.sym.DeclareVar(name, ty)
}

func (f *fn) discard(l *Lowerer) int {
	if !f.hasDiscard {
		f.discardVar = l.freshVar("$discard", wir.AnyTy())
		f.hasDiscard = true
	}
	return f.discardVar
}

// lowerStmts lowers a statement sequence to a chain of fragments, returning
// the chain's entry edge index (-1 if stmts contained nothing with runtime
// effect — callers should fall back to whatever comes next) and the open
// ends still needing a continuation target.
func (l *Lowerer) lowerStmts(stmts []*ast.Stmt, f *fn) (int, []patch) {
	var frags []fragment
	cur := wir.NewLinear()
	flush := func() {
		idx := f.append(cur)
		frags = append(frags, fragment{entry: idx, ends: []patch{{idx, "next"}}})
		cur = wir.NewLinear()
	}

	for _, s := range stmts {
		switch s.Kind {
		case ast.StmtFunc, ast.StmtClass, ast.StmtImport, ast.StmtAttr, ast.StmtBlockAttr:
			continue
		case ast.StmtLet:
			if s.Value != nil && s.Value.Kind == ast.ExprParallel {
				if len(cur.Instrs) > 0 {
					flush()
				}
				frags = append(frags, l.lowerParallelAssign(s.Value, f, s.Name, true))
				continue
			}
			if s.Value != nil && s.Value.Kind == ast.ExprCall {
				if len(cur.Instrs) > 0 {
					flush()
				}
				varIdx := l.varIndexFor(s.Name)
				frags = append(frags, l.lowerCallFragments(s.Value, f, varIdx, true, s)...)
				continue
			}
			l.lowerExprInstrs(s.Value, &cur.Instrs)
			varIdx := l.varIndexFor(s.Name)
			cur.Instrs = append(cur.Instrs, wir.StoreVar(varIdx))
		case ast.StmtAssign:
			l.lowerExprInstrs(s.Value, &cur.Instrs)
			if s.Target.Kind == ast.ExprIdent {
				ref := l.refs[s.Target]
				cur.Instrs = append(cur.Instrs, wir.StoreVar(ref.Index))
			} else {
				l.errorf(s.Target.Range, "unsupported assignment target")
			}
		case ast.StmtExpr:
			if s.X != nil && s.X.Kind == ast.ExprParallel {
				if len(cur.Instrs) > 0 {
					flush()
				}
				frags = append(frags, l.lowerParallelAssign(s.X, f, "", false))
				continue
			}
			if s.X != nil && s.X.Kind == ast.ExprCall {
				if len(cur.Instrs) > 0 {
					flush()
				}
				frags = append(frags, l.lowerCallFragments(s.X, f, 0, false, s)...)
				continue
			}
			l.lowerExprInstrs(s.X, &cur.Instrs)
			cur.Instrs = append(cur.Instrs, wir.Instr{Op: wir.OpPop})
		case ast.StmtReturn:
			if s.HasValue && s.X.Kind == ast.ExprCall {
				if len(cur.Instrs) > 0 {
					flush()
				}
				varIdx := l.freshVar("", wir.AnyTy())
				frags = append(frags, l.lowerCallFragments(s.X, f, varIdx, true, s)...)
				pushIdx := f.append(wir.NewLinear(wir.PushVar(varIdx)))
				frags = append(frags, fragment{entry: pushIdx, ends: []patch{{pushIdx, "next"}}})
				retIdx := f.append(wir.NewReturn())
				frags = append(frags, fragment{entry: retIdx}) // no open ends: Return never continues in this graph
				continue
			}
			if s.HasValue && s.X.Kind == ast.ExprParallel {
				if len(cur.Instrs) > 0 {
					flush()
				}
				frags = append(frags, l.lowerParallelReturn(s.X, f))
				retIdx := f.append(wir.NewReturn())
				frags = append(frags, fragment{entry: retIdx})
				continue
			}
			if len(cur.Instrs) > 0 || s.HasValue {
				if s.HasValue {
					l.lowerExprInstrs(s.X, &cur.Instrs)
				}
				flush()
			}
			retIdx := f.append(wir.NewReturn())
			frags = append(frags, fragment{entry: retIdx}) // no open ends: Return never continues in this graph
		case ast.StmtIf:
			if len(cur.Instrs) > 0 {
				flush()
			}
			frags = append(frags, l.lowerIf(s, f))
		case ast.StmtWhile:
			if len(cur.Instrs) > 0 {
				flush()
			}
			frags = append(frags, l.lowerWhile(s, f))
		case ast.StmtFor:
			if len(cur.Instrs) > 0 {
				flush()
			}
			frags = append(frags, l.lowerFor(s, f))
		}
	}
	if len(cur.Instrs) > 0 {
		flush() // trailing fragment with the block's last straight-line instructions
	}

	if len(frags) == 0 {
		return -1, nil
	}
	for i := 0; i < len(frags)-1; i++ {
		f.link(frags[i].ends, frags[i+1].entry)
	}
	return frags[0].entry, frags[len(frags)-1].ends
}

func (l *Lowerer) varIndexFor(name string) int {
	for i := len(l.sym.Vars) - 1; i >= 0; i-- {
		if l.sym.Vars[i].Name == name {
			return i
		}
	}
	return l.freshVar(name, wir.AnyTy())
}

func (l *Lowerer) lowerExprInstrs(e *ast.Expr, out *[]wir.Instr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.ExprLiteral:
		*out = append(*out, wir.PushConst(literalValue(e)))
	case ast.ExprIdent:
		if ref, ok := l.refs[e]; ok && ref.Kind == resolve.RefVar {
			*out = append(*out, wir.PushVar(ref.Index))
		} else {
			l.errorf(e.Range, "unresolved identifier %q in expression position", e.Name)
		}
	case ast.ExprArray:
		for _, el := range e.Elems {
			l.lowerExprInstrs(el, out)
		}
		*out = append(*out, wir.MakeArray(len(e.Elems)))
	case ast.ExprBinary:
		l.lowerExprInstrs(e.Left, out)
		l.lowerExprInstrs(e.Right, out)
		*out = append(*out, wir.BinOp(e.Op))
	case ast.ExprUnary:
		l.lowerExprInstrs(e.X, out)
		*out = append(*out, wir.UnOp(e.Op))
	case ast.ExprProject:
		l.lowerExprInstrs(e.X, out)
		*out = append(*out, wir.Project(e.Field))
	case ast.ExprCall, ast.ExprParallel:
		l.errorf(e.Range, "call and parallel expressions are only supported directly as a let value, return value, or statement expression")
	}
}

func literalValue(e *ast.Expr) wir.Value {
	switch e.LitKind {
	case wir.KindBool:
		return wir.BoolValue(e.Bool)
	case wir.KindInt:
		return wir.IntValue(e.Int)
	case wir.KindReal:
		return wir.RealValue(e.Real)
	case wir.KindString:
		return wir.StringValue(e.Str)
	default:
		return wir.VoidValue()
	}
}
