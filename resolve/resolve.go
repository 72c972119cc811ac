// Package resolve implements the symbol resolver (spec.md §4.2): a single
// walk over the AST that builds nested symbol tables and resolves every
// identifier to a definition index.
package resolve

import (
	"fmt"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/wir"
)

// RefKind discriminates which definition table a Ref points into.
type RefKind int

const (
	RefVar RefKind = iota
	RefFunc
	RefClass
	RefTask
)

// Ref is the resolution target of one ast.Expr (an Ident or a Call's
// callee): which definition table, and the index within it.
type Ref struct {
	Kind  RefKind
	Index int
}

// PackageIndex resolves an `import` statement's package/version to the
// task and class definitions it provides (spec.md §4.2, "Imports inject
// task/class definitions from a PackageIndex collaborator").
type PackageIndex interface {
	Resolve(pkg string, version wir.Version) (tasks []wir.TaskDef, classes []wir.ClassDef, err error)
}

// Error is one resolution failure, carrying the use site's range
// (spec.md §4.2, "Failure modes: undeclared use, duplicate declaration,
// import of unknown package").
type Error struct {
	Range wir.Range
	Msg   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Range, e.Msg) }

// Result is the resolver's output: the populated symbol table and a map
// from every resolved AST expression node to its definition.
type Result struct {
	Sym  wir.SymTable
	Refs map[*ast.Expr]Ref
	// TaskRefs maps an ExprCall node resolved to an imported task to the
	// (package, task) pair the lowerer needs to build a Node edge.
	TaskRefs map[*ast.Expr]TaskRef
	// FuncNodes maps a FuncDef index back to the declaring StmtFunc node,
	// so the lowerer can compile each function body without re-deriving
	// the name-to-index correspondence.
	FuncNodes map[int]*ast.Stmt
	// TopVars, TopFuncs, and TopClasses are the top-level name bindings
	// produced by this resolve, including any seeded via NewSnippet. The
	// snippet compiler carries these forward so the next REPL entry can
	// reference names the previous one declared (spec.md §4.6).
	TopVars    map[string]int
	TopFuncs   map[string]int
	TopClasses map[string]int
}

// TaskRef names the imported package a resolved task call came from.
type TaskRef struct {
	Package string
	Index   int // index into Sym.Tasks
}

type scope struct {
	vars   map[string]int
	parent *scope
}

func newScope(parent *scope) *scope { return &scope{vars: map[string]int{}, parent: parent} }

func (s *scope) lookup(name string) (int, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if idx, ok := sc.vars[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

// Resolver walks one Program, accumulating a SymTable and ref map.
type Resolver struct {
	pkgs  PackageIndex
	sym   wir.SymTable
	refs  map[*ast.Expr]Ref
	tasks map[*ast.Expr]TaskRef
	funcs map[string]int // top-level + block-local function names -> FuncDef index
	cls   map[string]int // class names -> ClassDef index
	nodes map[int]*ast.Stmt
	// idxByStmt is the reverse of nodes, letting resolveStmt look up a
	// StmtFunc's own FuncDef index (top-level funcs are keyed by name in
	// funcs, but methods are not, so both need this reverse map).
	idxByStmt map[*ast.Stmt]int
	errs      []error

	// topVars seeds the top-level scope for NewSnippet; nil for New.
	topVars map[string]int
}

// New constructs a Resolver. pkgs may be nil if the program imports
// nothing.
func New(pkgs PackageIndex) *Resolver {
	return &Resolver{
		pkgs:  pkgs,
		refs:  map[*ast.Expr]Ref{},
		tasks: map[*ast.Expr]TaskRef{},
		funcs:     map[string]int{},
		cls:       map[string]int{},
		nodes:     map[int]*ast.Stmt{},
		idxByStmt: map[*ast.Stmt]int{},
	}
}

// NewSnippet constructs a Resolver seeded with a prior compile's symbol
// table and top-level name bindings, so a new REPL entry can reference
// variables, functions, and classes an earlier entry declared (spec.md
// §4.6, "Maintains across REPL calls... the accreted SymTable"). Passing
// nil maps is equivalent to New (a fresh top-level scope).
func NewSnippet(pkgs PackageIndex, sym wir.SymTable, topVars, topFuncs, topClasses map[string]int) *Resolver {
	r := New(pkgs)
	r.sym = sym
	if topFuncs != nil {
		for name, idx := range topFuncs {
			r.funcs[name] = idx
		}
	}
	if topClasses != nil {
		for name, idx := range topClasses {
			r.cls[name] = idx
		}
	}
	r.topVars = topVars
	return r
}

// Resolve walks prog and returns the Result plus any errors. Errors do not
// stop the walk; resolution continues best-effort so a single compile call
// can report every undeclared identifier at once.
func (r *Resolver) Resolve(prog *ast.Program) (*Result, []error) {
	top := newScope(nil)
	for name, idx := range r.topVars {
		top.vars[name] = idx
	}
	r.hoistDecls(prog.Stmts)
	r.resolveImports(prog.Stmts)
	// Top-level statements get their own scope, a child of top, the same
	// way resolveBlock scopes every other statement list; capturing that
	// child's vars (rather than top's, which resolveBlock never touches)
	// is what lets NewSnippet seed and recover top-level let bindings
	// across REPL entries.
	topStmts := newScope(top)
	for _, s := range prog.Stmts {
		r.resolveStmt(s, topStmts)
	}
	return &Result{
		Sym:        r.sym,
		Refs:       r.refs,
		TaskRefs:   r.tasks,
		FuncNodes:  r.nodes,
		TopVars:    mergeNameMap(r.topVars, topStmts.vars),
		TopFuncs:   r.funcs,
		TopClasses: r.cls,
	}, r.errs
}

func mergeNameMap(base, overlay map[string]int) map[string]int {
	out := make(map[string]int, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// hoistDecls pre-registers every func/class declaration in a statement
// list so forward and mutually-recursive references resolve, matching the
// source's block-scoped hoisting (spec.md §4.2, "Class/method scopes are
// nested inside class definitions").
func (r *Resolver) hoistDecls(stmts []*ast.Stmt) {
	for _, s := range stmts {
		switch s.Kind {
		case ast.StmtFunc:
			if _, dup := r.funcs[s.FuncName]; dup {
				r.errorAt(s.Range, "duplicate function declaration %q", s.FuncName)
				continue
			}
			idx := r.sym.DeclareFunc(s.FuncName, toParams(s.Params), typeOf(s.ReturnType))
			r.funcs[s.FuncName] = idx
			r.nodes[idx] = s
			r.idxByStmt[s] = idx
		case ast.StmtClass:
			if _, dup := r.cls[s.ClassName]; dup {
				r.errorAt(s.Range, "duplicate class declaration %q", s.ClassName)
				continue
			}
			idx := r.sym.DeclareClass(s.ClassName, toParams(s.Fields))
			r.cls[s.ClassName] = idx
			for _, m := range s.Methods {
				midx := r.sym.DeclareFunc(m.FuncName, toParams(m.Params), typeOf(m.ReturnType))
				r.sym.Classes[idx].Methods[m.FuncName] = midx
				r.nodes[midx] = m
				r.idxByStmt[m] = midx
			}
		}
	}
}

func (r *Resolver) resolveImports(stmts []*ast.Stmt) {
	for _, s := range stmts {
		if s.Kind != ast.StmtImport {
			continue
		}
		if r.pkgs == nil {
			r.errorAt(s.Range, "import of unknown package %q: no package index configured", s.Package)
			continue
		}
		version, err := wir.ParseVersion(s.Version)
		if err != nil {
			r.errorAt(s.Range, "invalid version %q for package %q", s.Version, s.Package)
			continue
		}
		tasks, classes, err := r.pkgs.Resolve(s.Package, version)
		if err != nil {
			r.errorAt(s.Range, "import of unknown package %q: %v", s.Package, err)
			continue
		}
		for _, t := range tasks {
			r.sym.DeclareTask(t)
		}
		for _, c := range classes {
			r.sym.Classes = append(r.sym.Classes, c)
		}
	}
}

func (r *Resolver) resolveBlock(stmts []*ast.Stmt, parent *scope) {
	sc := newScope(parent)
	for _, s := range stmts {
		r.resolveStmt(s, sc)
	}
}

func (r *Resolver) resolveStmt(s *ast.Stmt, sc *scope) {
	switch s.Kind {
	case ast.StmtLet:
		r.resolveExpr(s.Value, sc)
		idx := r.sym.DeclareVar(s.Name, typeOf(s.Type))
		sc.vars[s.Name] = idx
	case ast.StmtAssign:
		r.resolveExpr(s.Target, sc)
		r.resolveExpr(s.Value, sc)
	case ast.StmtIf:
		r.resolveExpr(s.Cond, sc)
		r.resolveBlock(s.Then, sc)
		if s.Else != nil {
			r.resolveBlock(s.Else, sc)
		}
	case ast.StmtFor:
		r.resolveExpr(s.Iter, sc)
		inner := newScope(sc)
		idx := r.sym.DeclareVar(s.Var, wir.AnyTy())
		inner.vars[s.Var] = idx
		for _, b := range s.Body {
			r.resolveStmt(b, inner)
		}
	case ast.StmtWhile:
		r.resolveExpr(s.Cond, sc)
		r.resolveBlock(s.Body, sc)
	case ast.StmtReturn:
		if s.HasValue {
			r.resolveExpr(s.X, sc)
		}
	case ast.StmtExpr:
		r.resolveExpr(s.X, sc)
	case ast.StmtFunc:
		inner := newScope(nil) // function bodies don't see the caller's locals
		paramVars := make([]int, len(s.Params))
		for i, param := range s.Params {
			idx := r.sym.DeclareVar(param.Name, typeOf(param.Type))
			inner.vars[param.Name] = idx
			paramVars[i] = idx
		}
		if funcID, ok := r.idxByStmt[s]; ok {
			r.sym.SetParamVars(funcID, paramVars)
		}
		r.resolveBlock(s.FuncBody, inner)
	case ast.StmtClass:
		for _, m := range s.Methods {
			r.resolveStmt(m, sc)
		}
	case ast.StmtImport, ast.StmtAttr, ast.StmtBlockAttr:
		// handled elsewhere / not semantic after folding
	}
}

func (r *Resolver) resolveExpr(e *ast.Expr, sc *scope) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.ExprIdent:
		if idx, ok := sc.lookup(e.Name); ok {
			r.refs[e] = Ref{Kind: RefVar, Index: idx}
			return
		}
		r.errorAt(e.Range, "undeclared identifier %q", e.Name)
	case ast.ExprLiteral:
		// nothing to resolve
	case ast.ExprArray:
		for _, el := range e.Elems {
			r.resolveExpr(el, sc)
		}
	case ast.ExprBinary:
		r.resolveExpr(e.Left, sc)
		r.resolveExpr(e.Right, sc)
	case ast.ExprUnary:
		r.resolveExpr(e.X, sc)
	case ast.ExprProject:
		r.resolveExpr(e.X, sc)
	case ast.ExprCall:
		r.resolveCall(e, sc)
	case ast.ExprParallel:
		for _, br := range e.Branches {
			inner := newScope(sc)
			for _, name := range e.Shared {
				if idx, ok := sc.lookup(name); ok {
					inner.vars[name] = idx
				} else {
					r.errorAt(e.Range, "parallel shared variable %q is not declared", name)
				}
			}
			for _, b := range br.Body {
				r.resolveStmt(b, inner)
			}
		}
	}
}

func (r *Resolver) resolveCall(e *ast.Expr, sc *scope) {
	if idx, ok := r.funcs[e.Callee]; ok {
		r.refs[e] = Ref{Kind: RefFunc, Index: idx}
	} else if taskIdx := r.findTask(e.Callee); taskIdx >= 0 {
		r.refs[e] = Ref{Kind: RefTask, Index: taskIdx}
		r.tasks[e] = TaskRef{Package: r.sym.Tasks[taskIdx].Package, Index: taskIdx}
	} else if idx, ok := sc.lookup(e.Callee); ok {
		// calling a function value stored in a variable
		r.refs[e] = Ref{Kind: RefVar, Index: idx}
	} else {
		r.errorAt(e.Range, "undeclared identifier %q", e.Callee)
	}
	for _, a := range e.Args {
		r.resolveExpr(a, sc)
	}
}

func (r *Resolver) findTask(name string) int {
	for i, t := range r.sym.Tasks {
		if t.Name == name {
			return i
		}
	}
	return -1
}

func (r *Resolver) errorAt(rng wir.Range, format string, args ...interface{}) {
	r.errs = append(r.errs, &Error{Range: rng, Msg: fmt.Sprintf(format, args...)})
}

func toParams(params []ast.Param) []wir.Param {
	out := make([]wir.Param, len(params))
	for i, p := range params {
		out[i] = wir.Param{Name: p.Name, Type: typeOf(p.Type)}
	}
	return out
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
