package lower

import (
	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/resolve"
	"github.com/brane-run/brane/wir"
)

func (l *Lowerer) lowerIf(s *ast.Stmt, f *fn) fragment {
	var condInstrs []wir.Instr
	l.lowerExprInstrs(s.Cond, &condInstrs)
	condIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: condInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	branchIdx := f.append(wir.NewBranch(wir.NoEdge, wir.NoEdge, wir.NoEdge))
	f.setPatch(patch{condIdx, "next"}, branchIdx)

	thenEntry, thenEnds := l.lowerStmts(s.Then, f)
	if thenEntry == -1 {
		// empty then-branch: synthesize a no-op edge so true_next is valid
		idx := f.append(wir.NewLinear())
		thenEntry = idx
		thenEnds = []patch{{idx, "next"}}
	}
	f.setPatch(patch{branchIdx, "true"}, thenEntry)

	var elseEnds []patch
	if s.Else != nil {
		elseEntry, ends := l.lowerStmts(s.Else, f)
		if elseEntry == -1 {
			idx := f.append(wir.NewLinear())
			elseEntry = idx
			ends = []patch{{idx, "next"}}
		}
		f.setPatch(patch{branchIdx, "false"}, elseEntry)
		elseEnds = ends
	}

	allEnds := append(append([]patch(nil), thenEnds...), elseEnds...)
	if s.Else == nil {
		// falling through the false arm is itself an open end of the if
		allEnds = append(allEnds, patch{branchIdx, "false"})
	}
	// The branch's own Merge field mirrors the shared continuation, once known.
	allEnds = append(allEnds, patch{branchIdx, "merge"})
	return fragment{entry: condIdx, ends: allEnds}
}

func (l *Lowerer) lowerWhile(s *ast.Stmt, f *fn) fragment {
	var condInstrs []wir.Instr
	l.lowerExprInstrs(s.Cond, &condInstrs)
	condEntry := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: condInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	bodyEntry, bodyEnds := l.lowerStmts(s.Body, f)
	if bodyEntry == -1 {
		bodyEntry = f.append(wir.NewLinear())
	} else {
		// body subgraph ends are deliberately left open (Next == NoEdge);
		// the VM re-evaluates Cond on reaching them, so nothing is linked.
		_ = bodyEnds
	}

	loopIdx := f.append(wir.NewLoop(condEntry, bodyEntry, wir.NoEdge))
	return fragment{entry: loopIdx, ends: []patch{{loopIdx, "next"}}}
}

// lowerFor desugars `for v in iter { body }` into an index-driven Loop over
// a hidden array variable (spec.md §3 lists no separate iterator value, so
// this is this implementation's chosen desugaring; see DESIGN.md).
func (l *Lowerer) lowerFor(s *ast.Stmt, f *fn) fragment {
	arrVar := l.freshVar("$for_arr", wir.Array(wir.AnyTy()))
	idxVar := l.freshVar("$for_idx", wir.Int())
	loopVar := l.varIndexFor(s.Var)

	var initInstrs []wir.Instr
	l.lowerExprInstrs(s.Iter, &initInstrs)
	initInstrs = append(initInstrs, wir.StoreVar(arrVar), wir.PushConst(wir.IntValue(0)), wir.StoreVar(idxVar))
	initIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: initInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	condInstrs := []wir.Instr{wir.PushVar(idxVar), wir.PushVar(arrVar), wir.LenInstr(), wir.BinOp(wir.Lt)}
	condEntry := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: condInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	bindInstrs := []wir.Instr{wir.PushVar(idxVar), wir.PushVar(arrVar), wir.IndexInstr(), wir.StoreVar(loopVar)}
	bindIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: bindInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	bodyEntry, bodyEnds := l.lowerStmts(s.Body, f)
	if bodyEntry == -1 {
		f.setPatch(patch{bindIdx, "next"}, -1) // left open deliberately below
	} else {
		f.setPatch(patch{bindIdx, "next"}, bodyEntry)
	}

	incrInstrs := []wir.Instr{wir.PushVar(idxVar), wir.PushConst(wir.IntValue(1)), wir.BinOp(wir.Add), wir.StoreVar(idxVar)}
	incrIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: incrInstrs, Next: wir.NoEdge, Merge: wir.NoEdge})
	if bodyEntry != -1 {
		f.link(bodyEnds, incrIdx)
	} else {
		f.setPatch(patch{bindIdx, "next"}, incrIdx)
	}
	// incrIdx.Next is deliberately left NoEdge: it is the body subgraph's
	// terminal, signalling the VM to loop back and re-evaluate condEntry.

	loopIdx := f.append(wir.NewLoop(condEntry, bindIdx, wir.NoEdge))
	f.setPatch(patch{initIdx, "next"}, loopIdx)
	return fragment{entry: initIdx, ends: []patch{{loopIdx, "next"}}}
}

// lowerParallelCore lowers the shared shape of a `parallel[...] {...}
// merge strategy` expression — every branch, the fork, and the join — and
// returns the Parallel and Join edge indices, leaving the joined value's
// consumer (store, pop, or a direct Return) to the caller.
func (l *Lowerer) lowerParallelCore(e *ast.Expr, f *fn) (parallelIdx, joinIdx int) {
	branchEntries := make([]int, 0, len(e.Branches))
	for _, br := range e.Branches {
		entry, ends := l.lowerStmts(br.Body, f) // branch subgraph ends deliberately left open
		if entry == -1 {
			entry = f.append(wir.NewLinear(wir.PushConst(wir.VoidValue())))
		} else {
			l.finishBranch(br, f, ends)
		}
		branchEntries = append(branchEntries, entry)
	}
	parallelIdx = f.append(wir.NewParallel(branchEntries, wir.NoEdge))
	joinIdx = f.append(wir.NewJoin(e.Strategy, wir.NoEdge))
	f.setPatch(patch{parallelIdx, "merge"}, joinIdx)
	return parallelIdx, joinIdx
}

// lowerParallelAssign lowers a `parallel[...] {...} merge strategy`
// expression used as a let value (hasStore) or a bare statement.
func (l *Lowerer) lowerParallelAssign(e *ast.Expr, f *fn, varName string, hasStore bool) fragment {
	parallelIdx, joinIdx := l.lowerParallelCore(e, f)

	if hasStore {
		varIdx := l.varIndexFor(varName)
		storeIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: []wir.Instr{wir.StoreVar(varIdx)}, Next: wir.NoEdge, Merge: wir.NoEdge})
		f.setPatch(patch{joinIdx, "next"}, storeIdx)
		return fragment{entry: parallelIdx, ends: []patch{{storeIdx, "next"}}}
	}
	popIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: []wir.Instr{{Op: wir.OpPop}}, Next: wir.NoEdge, Merge: wir.NoEdge})
	f.setPatch(patch{joinIdx, "next"}, popIdx)
	return fragment{entry: parallelIdx, ends: []patch{{popIdx, "next"}}}
}

// lowerParallelReturn lowers a `return parallel{...} merge strategy;`,
// leaving the joined value on the value stack for the Return edge that
// immediately follows to pop (vm's EdgeReturn semantics, spec.md §4.8).
func (l *Lowerer) lowerParallelReturn(e *ast.Expr, f *fn) fragment {
	parallelIdx, joinIdx := l.lowerParallelCore(e, f)
	return fragment{entry: parallelIdx, ends: []patch{{joinIdx, "next"}}}
}

// finishBranch makes a parallel branch's final fragment leave its result
// value on top of the value stack instead of falling off the end of its
// subgraph with nothing (the VM's Join handler reads one value per branch
// off that stack to combine per MergeStrategy, spec.md §4.8). A branch
// ending in a bare expression statement or a `let` binding contributes that
// value; any other ending (control flow, nothing) contributes Void.
func (l *Lowerer) finishBranch(br ast.ParallelBranch, f *fn, ends []patch) {
	last := br.Body[len(br.Body)-1]
	if len(ends) == 1 && ends[0].field == "next" {
		idx := ends[0].idx
		switch {
		case last.Kind == ast.StmtExpr && f.edges[idx].EdgeKind == wir.EdgeLinear && endsInPop(f.edges[idx].Instrs):
			f.edges[idx].Instrs = f.edges[idx].Instrs[:len(f.edges[idx].Instrs)-1]
			return
		case last.Kind == ast.StmtExpr && f.edges[idx].EdgeKind == wir.EdgeNode:
			pushIdx := f.append(wir.NewLinear(wir.PushVar(f.edges[idx].ResultVar)))
			f.edges[idx].Next = pushIdx
			return
		case last.Kind == ast.StmtLet:
			pushIdx := f.append(wir.NewLinear(wir.PushVar(l.varIndexFor(last.Name))))
			f.link(ends, pushIdx)
			return
		}
	}
	voidIdx := f.append(wir.NewLinear(wir.PushConst(wir.VoidValue())))
	f.link(ends, voidIdx)
}

func endsInPop(instrs []wir.Instr) bool {
	return len(instrs) > 0 && instrs[len(instrs)-1].Op == wir.OpPop
}

// lowerCallFragments lowers an ExprCall into either a Node (external task)
// or Call (user function) fragment sequence. stmt is the enclosing
// statement, used to look up its resolved location scope and tags.
func (l *Lowerer) lowerCallFragments(e *ast.Expr, f *fn, storeVar int, hasStore bool, stmt *ast.Stmt) []fragment {
	ref, ok := l.refs[e]
	if !ok {
		l.errorf(e.Range, "unresolved call to %q", e.Callee)
		return nil
	}
	switch ref.Kind {
	case resolve.RefTask:
		return l.lowerNodeCall(e, f, ref, storeVar, hasStore, stmt)
	case resolve.RefFunc:
		return l.lowerUserCall(e, f, ref, storeVar, hasStore)
	default:
		l.errorf(e.Range, "indirect calls through a variable are not supported")
		return nil
	}
}

func (l *Lowerer) lowerNodeCall(e *ast.Expr, f *fn, ref resolve.Ref, storeVar int, hasStore bool, stmt *ast.Stmt) []fragment {
	task := l.sym.Tasks[ref.Index]
	var frags []fragment
	inputs := make([]wir.NodeInput, 0, len(e.Args))
	for i, arg := range e.Args {
		if i >= len(task.Input) {
			break
		}
		varIdx, pre := l.ensureVar(arg, f)
		frags = append(frags, pre...)
		inputs = append(inputs, wir.NodeInput{Name: task.Input[i].Name, Var: varIdx})
	}
	resultVar := storeVar
	if !hasStore {
		resultVar = f.discard(l)
	}
	locs := l.allowedLocations(task, stmt)
	nodeIdx := f.append(wir.NewNode(task.Name, locs, inputs, resultVar))
	if l.mdata != nil {
		if md, ok := l.mdata.ByStmt[stmt]; ok {
			f.edges[nodeIdx].Metadata = md
		}
	}
	frags = append(frags, fragment{entry: nodeIdx, ends: []patch{{nodeIdx, "next"}}})
	return frags
}

// allowedLocations intersects a task's package-declared AllowedLocations
// with any call-site `#[on(...)]`/`#[loc(...)]` restriction in scope.
func (l *Lowerer) allowedLocations(task wir.TaskDef, stmt *ast.Stmt) []wir.Location {
	base := task.AllowedLocations
	if l.locScopes == nil {
		return append([]wir.Location(nil), base...)
	}
	restrict, ok := l.locScopes.ByStmt[stmt]
	if !ok {
		return append([]wir.Location(nil), base...)
	}
	if len(base) == 0 {
		return append([]wir.Location(nil), restrict...)
	}
	set := map[wir.Location]bool{}
	for _, loc := range restrict {
		set[loc] = true
	}
	var out []wir.Location
	for _, loc := range base {
		if set[loc] {
			out = append(out, loc)
		}
	}
	return out
}

func (l *Lowerer) lowerUserCall(e *ast.Expr, f *fn, ref resolve.Ref, storeVar int, hasStore bool) []fragment {
	var instrs []wir.Instr
	for _, arg := range e.Args {
		l.lowerExprInstrs(arg, &instrs)
	}
	instrs = append(instrs, wir.PushFunc(ref.Index), wir.PushArgc(len(e.Args)))
	argsIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: instrs, Next: wir.NoEdge, Merge: wir.NoEdge})

	callIdx := f.append(wir.NewCall(wir.NoEdge))
	f.setPatch(patch{argsIdx, "next"}, callIdx)

	frags := []fragment{{entry: argsIdx, ends: []patch{{callIdx, "next"}}}}
	if hasStore {
		storeIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: []wir.Instr{wir.StoreVar(storeVar)}, Next: wir.NoEdge, Merge: wir.NoEdge})
		f.setPatch(patch{callIdx, "next"}, storeIdx)
		frags[0].ends = []patch{{storeIdx, "next"}}
	} else {
		popIdx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: []wir.Instr{{Op: wir.OpPop}}, Next: wir.NoEdge, Merge: wir.NoEdge})
		f.setPatch(patch{callIdx, "next"}, popIdx)
		frags[0].ends = []patch{{popIdx, "next"}}
	}
	return frags
}

// ensureVar returns a variable definition index holding arg's value,
// evaluating arg into a fresh hidden variable when it is not already a
// plain variable reference. Returns any fragments that must run before the
// Node/Call edge that consumes the variable.
func (l *Lowerer) ensureVar(arg *ast.Expr, f *fn) (int, []fragment) {
	if arg.Kind == ast.ExprIdent {
		if ref, ok := l.refs[arg]; ok && ref.Kind == resolve.RefVar {
			return ref.Index, nil
		}
	}
	var instrs []wir.Instr
	l.lowerExprInstrs(arg, &instrs)
	hidden := l.freshVar("$arg", wir.AnyTy())
	instrs = append(instrs, wir.StoreVar(hidden))
	idx := f.append(wir.Edge{EdgeKind: wir.EdgeLinear, Instrs: instrs, Next: wir.NoEdge, Merge: wir.NoEdge})
	return hidden, []fragment{{entry: idx, ends: []patch{{idx, "next"}}}}
}
