// Package vm is the distributed workflow interpreter (spec.md §4.8): a
// cooperative, single-threaded walk of a planned wir.Workflow's edge graph,
// with an outer scheduler permitting concurrent Parallel branches.
//
// Execution state is exactly what spec.md §3 describes: a frame stack (one
// wir.Frame per live function call) and a value stack shared by every
// Linear/Call/Return instruction. The interpreter never special-cases a
// function graph versus a Loop's Cond/Body subgraph: both are walked by the
// same execFrom loop, which follows each edge's "next" continuation until
// either a Return/Stop edge ends it explicitly, or a dangling NoEdge
// continuation is reached — the deliberate "end of subgraph, not end of
// function" terminal the lowerer leaves on Loop bodies and Parallel
// branches (see lower/lower.go's package doc comment).
package vm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// Options configures a VM beyond its required collaborators.
type Options struct {
	Job      JobClient
	Registry RegistryClient
	Emitter  emit.Emitter // defaults to emit.NullEmitter{} if nil
	Policies map[RPCKind]RetryPolicy // defaults to DefaultRetryPolicies()

	// GracePeriod is stored on the VM (10s when zero or negative), but Run
	// does not read it: once ctx is cancelled, in-flight Node launches and
	// retries see the cancelled ctx directly, with no grace period before
	// they are abandoned (spec.md §4.8, "Cancellation").
	GracePeriod time.Duration
}

// VM interprets one planned workflow. A VM is not reused across concurrent
// runs of the *same* workflow value — construct one per session (see
// session/), since Run mutates nothing on VM itself but a Parallel fork
// does mutate shared rng state.
type VM struct {
	wf       *wir.Workflow
	job      JobClient
	reg      RegistryClient
	emitter  emit.Emitter
	policies map[RPCKind]RetryPolicy
	grace    time.Duration
	rng      *rand.Rand
}

// New constructs a VM for wf. wf must have passed wir.Workflow.ValidateEdgeIndices
// and been planned (every Node edge's At field populated) before Run is called.
func New(wf *wir.Workflow, opts Options) *VM {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	policies := opts.Policies
	if policies == nil {
		policies = DefaultRetryPolicies()
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &VM{
		wf:       wf,
		job:      opts.Job,
		reg:      opts.Registry,
		emitter:  emitter,
		policies: policies,
		grace:    grace,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// run is one in-progress interpretation: its own value stack and frame
// stack. Parallel branches each get a fresh run forked from the parent's
// frames (spec.md §4.8, "fork a child frame-stack per branch").
type run struct {
	vm     *VM
	runID  string
	stack  []wir.Value
	frames []wir.Frame
}

// Run interprets wf's <main> graph to completion and returns its final
// value (spec.md §4.8, "Stop: ... the VM's final value is the top of the
// value stack (or Void)").
func (vm *VM) Run(ctx context.Context, runID string) (wir.Value, error) {
	r := &run{
		vm:    vm,
		runID: runID,
		frames: []wir.Frame{{
			Def:  wir.MainFunc,
			Vars: make([]*wir.Value, len(vm.wf.Sym.Vars)),
			Ret:  wir.Main(0),
		}},
	}
	vm.emitter.Emit(emit.Event{RunID: runID, Msg: "run_start"})
	val, returned, err := r.execFrom(ctx, wir.MainFunc, 0)
	if err != nil {
		vm.emitter.Emit(emit.Event{RunID: runID, Msg: "run_error", Meta: map[string]interface{}{"error": err.Error()}})
		return wir.Value{}, err
	}
	if returned {
		return wir.Value{}, fmt.Errorf("%w: <main> returned instead of stopping", ErrFellThrough)
	}
	if err := checkFinalFrames(r.frames); err != nil {
		return wir.Value{}, err
	}
	vm.emitter.Emit(emit.Event{RunID: runID, Msg: "run_complete"})
	return val, nil
}

func (r *run) push(v wir.Value) { r.stack = append(r.stack, v) }

func (r *run) pop() (wir.Value, error) {
	if len(r.stack) == 0 {
		return wir.Value{}, ErrStackUnderflow
	}
	v := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return v, nil
}

func (r *run) curFrame() *wir.Frame { return &r.frames[len(r.frames)-1] }

// checkFinalFrames validates spec.md §4.8's Stop invariant: exactly the
// initial <main> frame should remain once Stop is reached.
func checkFinalFrames(frames []wir.Frame) error {
	if len(frames) != 1 {
		return ErrFramesRemaining
	}
	return nil
}

// execFrom walks edges starting at entry within funcID, returning:
//   - (value, true, nil)  if a Return edge was reached (value is the popped
//     return value, or Void if the stack was empty);
//   - (value, false, nil) if a Stop edge was reached (only valid when
//     funcID == wir.MainFunc) — value is the VM's final result;
//   - (Value{}, false, nil) if the walk fell off a dangling NoEdge
//     continuation — the Loop-subgraph/Parallel-branch terminal convention,
//     meaning "this subgraph ended", not "the function ended";
//   - (Value{}, false, err) on any runtime failure.
func (r *run) execFrom(ctx context.Context, funcID, entry int) (wir.Value, bool, error) {
	idx := entry
	for idx != wir.NoEdge {
		if err := ctx.Err(); err != nil {
			return wir.Value{}, false, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		edge, err := r.vm.wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: idx})
		if err != nil {
			return wir.Value{}, false, err
		}
		switch edge.EdgeKind {
		case wir.EdgeLinear:
			if err := r.execInstrs(edge.Instrs); err != nil {
				return wir.Value{}, false, err
			}
			idx = edge.Next

		case wir.EdgeNode:
			val, err := r.execNode(ctx, edge)
			if err != nil {
				return wir.Value{}, false, err
			}
			r.curFrame().Vars[edge.ResultVar] = &val
			idx = edge.Next

		case wir.EdgeBranch:
			cond, err := r.pop()
			if err != nil {
				return wir.Value{}, false, err
			}
			b, ok := cond.Payload.(bool)
			if !ok {
				return wir.Value{}, false, fmt.Errorf("%w: Branch condition is not Bool", ErrTypeMismatch)
			}
			if b {
				idx = edge.TrueNext
			} else {
				idx = edge.FalseNext
			}

		case wir.EdgeParallel:
			val, err := r.execParallel(ctx, funcID, edge)
			if err != nil {
				return wir.Value{}, false, err
			}
			r.push(val)
			// Parallel itself has no "next": the continuation after the
			// fork is the Join edge's, which execParallel has already
			// validated exists at edge.Merge.
			join, err := r.vm.wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: edge.Merge})
			if err != nil {
				return wir.Value{}, false, err
			}
			idx = join.Next

		case wir.EdgeJoin:
			// Reached directly only if a Parallel's Merge pointed here and
			// nothing consumed it first; execParallel handles Join inline,
			// so this path exists only for malformed WIR.
			return wir.Value{}, false, fmt.Errorf("vm: Join edge %d reached outside Parallel dispatch", idx)

		case wir.EdgeLoop:
			for {
				if _, returned, err := r.execFrom(ctx, funcID, edge.Cond); err != nil {
					return wir.Value{}, false, err
				} else if returned {
					return wir.Value{}, false, fmt.Errorf("vm: Return inside Loop condition")
				}
				condVal, err := r.pop()
				if err != nil {
					return wir.Value{}, false, err
				}
				b, ok := condVal.Payload.(bool)
				if !ok {
					return wir.Value{}, false, fmt.Errorf("%w: Loop condition is not Bool", ErrTypeMismatch)
				}
				if !b {
					break
				}
				bodyVal, returned, err := r.execFrom(ctx, funcID, edge.Body)
				if err != nil {
					return wir.Value{}, false, err
				}
				if returned {
					return bodyVal, true, nil
				}
			}
			idx = edge.Next

		case wir.EdgeCall:
			val, err := r.execCall(ctx, edge)
			if err != nil {
				return wir.Value{}, false, err
			}
			r.push(val)
			idx = edge.Next

		case wir.EdgeReturn:
			if len(r.stack) == 0 {
				return wir.VoidValue(), true, nil
			}
			v, err := r.pop()
			return v, true, err

		case wir.EdgeStop:
			if len(r.stack) == 0 {
				return wir.VoidValue(), false, nil
			}
			v, err := r.pop()
			return v, false, err

		default:
			return wir.Value{}, false, fmt.Errorf("vm: unknown edge kind %v", edge.EdgeKind)
		}
	}
	return wir.Value{}, false, nil
}

// execCall implements the Call/Return pair (spec.md §4.8): pop argument
// count and callee, bind positional arguments into the callee's frame via
// its FuncDef.ParamVars, run the callee's graph to a Return, pop the frame.
func (r *run) execCall(ctx context.Context, edge wir.Edge) (wir.Value, error) {
	argcVal, err := r.pop()
	if err != nil {
		return wir.Value{}, err
	}
	argc, ok := argcVal.Payload.(int64)
	if !ok {
		return wir.Value{}, fmt.Errorf("%w: Call argument count is not Int", ErrTypeMismatch)
	}
	funcVal, err := r.pop()
	if err != nil {
		return wir.Value{}, err
	}
	funcID64, ok := funcVal.Payload.(int64)
	if !ok {
		return wir.Value{}, fmt.Errorf("%w: Call target is not a function id", ErrTypeMismatch)
	}
	funcID := int(funcID64)
	if funcID < 0 || funcID >= len(r.vm.wf.Sym.Funcs) {
		return wir.Value{}, fmt.Errorf("vm: call to unknown function %d", funcID)
	}

	args := make([]wir.Value, argc)
	for i := int(argc) - 1; i >= 0; i-- {
		v, err := r.pop()
		if err != nil {
			return wir.Value{}, err
		}
		args[i] = v
	}

	def := r.vm.wf.Sym.Funcs[funcID]
	vars := make([]*wir.Value, len(r.vm.wf.Sym.Vars))
	for i, paramVar := range def.ParamVars {
		if i >= len(args) {
			break
		}
		v := args[i]
		vars[paramVar] = &v
	}
	r.frames = append(r.frames, wir.Frame{Def: funcID, Vars: vars})
	val, returned, err := r.execFrom(ctx, funcID, 0)
	r.frames = r.frames[:len(r.frames)-1]
	if err != nil {
		return wir.Value{}, err
	}
	if !returned {
		return wir.Value{}, fmt.Errorf("%w: %q", ErrFellThrough, def.Name)
	}
	return val, nil
}
