package vm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brane-run/brane/wir"
)

// forkFrames deep-copies a frame stack for a Parallel branch: each frame's
// variable slots are copied so a branch's mutations never propagate back to
// its siblings or the parent (spec.md §4.8: "A forked framestack sees a
// snapshot of its parent's variables at the fork point; mutations do not
// propagate out").
func forkFrames(frames []wir.Frame) []wir.Frame {
	out := make([]wir.Frame, len(frames))
	for i, f := range frames {
		vars := make([]*wir.Value, len(f.Vars))
		for j, v := range f.Vars {
			if v != nil {
				cp := *v
				vars[j] = &cp
			}
		}
		out[i] = wir.Frame{Def: f.Def, Vars: vars, Ret: f.Ret}
	}
	return out
}

// execParallel forks a run per branch, executes them concurrently, and
// combines their results at the Join edge named by edge.Merge (spec.md
// §4.8). Branches communicate only through the merged value; no ordering
// across branches is guaranteed, so the Join is the one happens-before
// barrier (spec.md §4.8, "Ordering guarantees").
func (r *run) execParallel(ctx context.Context, funcID int, edge wir.Edge) (wir.Value, error) {
	join, err := r.vm.wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: edge.Merge})
	if err != nil {
		return wir.Value{}, err
	}
	if join.EdgeKind != wir.EdgeJoin {
		return wir.Value{}, fmt.Errorf("vm: Parallel merge %d is not a Join edge", edge.Merge)
	}

	n := len(edge.Branches)
	results := make([]wir.Value, n)
	branchErrs := make([]error, n)
	var order []int
	var orderMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range edge.Branches {
		i, entry := i, entry
		g.Go(func() error {
			child := &run{vm: r.vm, runID: r.runID, frames: forkFrames(r.frames)}
			val, returned, err := child.execFrom(gctx, funcID, entry)
			if err == nil && returned {
				err = fmt.Errorf("vm: Return inside a parallel branch")
			}
			if err == nil && !returned {
				// The branch subgraph ended at its dangling-NoEdge terminal
				// (lower/control.go's finishBranch arranges for the
				// branch's result to be the last value left on its own,
				// forked stack rather than something execFrom pops).
				if len(child.stack) == 0 {
					val = wir.VoidValue()
				} else {
					val = child.stack[len(child.stack)-1]
				}
			}
			orderMu.Lock()
			order = append(order, i)
			orderMu.Unlock()
			if err != nil {
				branchErrs[i] = err
				if join.Strategy == wir.MergeAll {
					// All aborts the whole Parallel on any single failure.
					return err
				}
				return nil
			}
			results[i] = val
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return wir.Value{}, err
	}
	return mergeBranchResults(join.Strategy, results, branchErrs, order)
}

func mergeBranchResults(strategy wir.MergeStrategy, results []wir.Value, errs []error, order []int) (wir.Value, error) {
	switch strategy {
	case wir.MergeNone:
		if err := firstErr(errs); err != nil {
			return wir.Value{}, err
		}
		return wir.VoidValue(), nil
	case wir.MergeAll:
		if err := firstErr(errs); err != nil {
			return wir.Value{}, err
		}
		elemTy := wir.AnyTy()
		if len(results) > 0 {
			elemTy = results[0].Type
		}
		return wir.Value{Type: wir.Array(elemTy), Payload: append([]wir.Value(nil), results...)}, nil
	case wir.MergeAny:
		for i, e := range errs {
			if e == nil {
				return results[i], nil
			}
		}
		return wir.Value{}, fmt.Errorf("vm: all parallel branches failed: %w", firstErr(errs))
	case wir.MergeFirst:
		if len(order) == 0 {
			return wir.Value{}, fmt.Errorf("vm: no parallel branch completed")
		}
		first := order[0]
		if errs[first] != nil {
			return wir.Value{}, errs[first]
		}
		return results[first], nil
	case wir.MergeSum, wir.MergeProduct, wir.MergeMax, wir.MergeMin:
		if err := firstErr(errs); err != nil {
			return wir.Value{}, err
		}
		return arithmeticMerge(strategy, results)
	default:
		return wir.Value{}, fmt.Errorf("vm: unknown merge strategy %v", strategy)
	}
}

// arithmeticMerge implements Sum/Product/Max/Min, which require Int or Real
// branch values (spec.md §8: "A Parallel with zero branches... errors under
// Sum/Product/Max/Min").
func arithmeticMerge(strategy wir.MergeStrategy, results []wir.Value) (wir.Value, error) {
	if len(results) == 0 {
		return wir.Value{}, fmt.Errorf("vm: %s merge over zero branches", strategy)
	}
	vals := make([]float64, len(results))
	isReal := false
	for i, v := range results {
		f, real, ok := numeric(v)
		if !ok {
			return wir.Value{}, fmt.Errorf("%w: %s merge requires numeric branch values", ErrTypeMismatch, strategy)
		}
		vals[i] = f
		isReal = isReal || real
	}
	acc := vals[0]
	for _, f := range vals[1:] {
		switch strategy {
		case wir.MergeSum:
			acc += f
		case wir.MergeProduct:
			acc *= f
		case wir.MergeMax:
			if f > acc {
				acc = f
			}
		case wir.MergeMin:
			if f < acc {
				acc = f
			}
		}
	}
	if isReal {
		return wir.RealValue(acc), nil
	}
	return wir.IntValue(int64(acc)), nil
}

func firstErr(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
