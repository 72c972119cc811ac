package vm

import (
	"context"

	"github.com/brane-run/brane/wir"
)

// JobClient launches a task's implementation at a location and awaits its
// result, on behalf of a Node edge (spec.md §4.8: "request the target's job
// service to launch task.implementation with the resolved inputs... await
// completion"). A concrete implementation talks to a worker's `job` gRPC
// service (SPEC_FULL.md §4.8); tests use an in-memory fake.
type JobClient interface {
	Launch(ctx context.Context, loc wir.Location, task wir.TaskDef, inputs map[string]wir.Value, meta wir.Metadata) (wir.Value, error)
}

// RegistryClient resolves and stages dataset/intermediate-result values at
// the location a Node edge is about to run, inserting transfers the planner
// didn't already bake into the WIR (spec.md §4.8: "resolve input datasets to
// the target location, inserting transfers specified by the planner"). A
// concrete implementation talks to `reg` over HTTP (SPEC_FULL.md §4.8,
// adapted from the teacher's graph/tool/http.go).
type RegistryClient interface {
	// Stage returns v with Origin set to loc, transferring the underlying
	// bytes there first if v does not already resolve at loc.
	Stage(ctx context.Context, v wir.Value, loc wir.Location) (wir.Value, error)
}
