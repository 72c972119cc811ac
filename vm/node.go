package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// execNode runs one Node edge to completion: stage every input at the
// planned location, launch the task there, and return its result value
// (spec.md §4.8, steps a-d). Location planning itself (edge.At) is the
// planner's job; execNode treats a Node edge whose At is nil as a defect in
// the planned WIR rather than retrying or guessing.
func (r *run) execNode(ctx context.Context, edge wir.Edge) (wir.Value, error) {
	if edge.At == nil {
		return wir.Value{}, fmt.Errorf("vm: Node %q has no planned location", edge.Task)
	}
	loc := *edge.At

	task, ok := findTask(r.vm.wf.Sym.Tasks, edge.Task)
	if !ok {
		return wir.Value{}, fmt.Errorf("vm: Node references unknown task %q", edge.Task)
	}

	inputs := make(map[string]wir.Value, len(edge.Input))
	for _, in := range edge.Input {
		v, err := r.readVar(in.Var)
		if err != nil {
			return wir.Value{}, err
		}
		if r.vm.reg != nil && (v.Type.Kind == wir.KindData || v.Type.Kind == wir.KindIntermediateResult) {
			staged, err := r.withRetry(ctx, RPCStage, func(ctx context.Context) (wir.Value, error) {
				return r.vm.reg.Stage(ctx, v, loc)
			})
			if err != nil {
				return wir.Value{}, err
			}
			v = staged
		}
		inputs[in.Name] = v
	}

	r.vm.emitter.Emit(emit.Event{
		RunID:  r.runID,
		NodeID: edge.Task,
		Msg:    "node_launch",
		Meta:   map[string]interface{}{"location": string(loc)},
	})
	launchedAt := time.Now()

	if r.vm.job == nil {
		return wir.Value{}, fmt.Errorf("vm: no JobClient configured to launch task %q", edge.Task)
	}
	result, err := r.withRetry(ctx, RPCLaunch, func(ctx context.Context) (wir.Value, error) {
		return r.vm.job.Launch(ctx, loc, task, inputs, edge.Metadata)
	})
	if err != nil {
		r.vm.emitter.Emit(emit.Event{RunID: r.runID, NodeID: edge.Task, Msg: "node_error", Meta: map[string]interface{}{"error": err.Error()}})
		return wir.Value{}, err
	}
	elapsed := time.Since(launchedAt)
	r.vm.emitter.Emit(emit.Event{RunID: r.runID, NodeID: edge.Task, Msg: "node_complete", Meta: map[string]interface{}{"duration_ms": float64(elapsed.Milliseconds())}})
	return result, nil
}

func findTask(tasks []wir.TaskDef, name string) (wir.TaskDef, bool) {
	for _, t := range tasks {
		if t.Name == name {
			return t, true
		}
	}
	return wir.TaskDef{}, false
}

// withRetry runs op under kind's RetryPolicy, retrying with exponential
// backoff while the policy's Retryable predicate accepts the error and
// attempts remain (spec.md §4.8, "Retries").
func (r *run) withRetry(ctx context.Context, kind RPCKind, op func(context.Context) (wir.Value, error)) (wir.Value, error) {
	policy, ok := r.vm.policies[kind]
	if !ok {
		policy = RetryPolicy{MaxAttempts: 1}
	}
	var lastErr error
	for attempt := 0; attempt < maxInt(policy.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			r.vm.emitter.Emit(emit.Event{RunID: r.runID, Msg: "rpc_retry", Meta: map[string]interface{}{"kind": kind.String(), "attempt": attempt}})
			delay := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, r.vm.rng)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return wir.Value{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
		}
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if policy.Retryable == nil || !policy.Retryable(err) {
			return wir.Value{}, err
		}
	}
	return wir.Value{}, fmt.Errorf("vm: %s exhausted %d attempts: %w", kind, policy.MaxAttempts, lastErr)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
