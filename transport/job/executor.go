package job

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/brane-run/brane/wir"
)

// Executor runs one task.Implementation to completion and returns its
// captured result (spec.md §4.8, VM step (b)-(c)). Launch dispatches to the
// Executor matching task.Implementation.Kind.
type Executor interface {
	Run(ctx context.Context, task wir.TaskDef, inputs map[string]wir.Value) (wir.Value, error)
}

// Dispatcher routes a launch to the Executor registered for its
// implementation kind.
type Dispatcher struct {
	byKind map[wir.ImplKind]Executor
}

// NewDispatcher builds a Dispatcher. A nil entry for a kind means Launch
// rejects tasks of that kind with an explicit error rather than silently
// no-opping.
func NewDispatcher(container, inline, cwl Executor) *Dispatcher {
	d := &Dispatcher{byKind: map[wir.ImplKind]Executor{}}
	if container != nil {
		d.byKind[wir.ImplContainer] = container
	}
	if inline != nil {
		d.byKind[wir.ImplInlineDSL] = inline
	}
	if cwl != nil {
		d.byKind[wir.ImplCWL] = cwl
	}
	return d
}

func (d *Dispatcher) Run(ctx context.Context, task wir.TaskDef, inputs map[string]wir.Value) (wir.Value, error) {
	ex, ok := d.byKind[task.Implementation.Kind]
	if !ok {
		return wir.Value{}, fmt.Errorf("job: no executor registered for implementation kind %s", task.Implementation.Kind)
	}
	return ex.Run(ctx, task, inputs)
}

// ContainerExecutor runs a container implementation via the local docker
// CLI (os/exec is the only primitive the retrieval pack grounds a container
// runtime on; no Docker SDK client appears in any example repo's go.mod, so
// shelling out to `docker run` stands in for one, per DESIGN.md).
type ContainerExecutor struct {
	// WorkDir is where a CaptureMarkedFile implementation's marker file is
	// expected to appear after the container exits.
	WorkDir string
}

const markerFileName = "brane_result"

func (c *ContainerExecutor) Run(ctx context.Context, task wir.TaskDef, inputs map[string]wir.Value) (wir.Value, error) {
	impl := task.Implementation
	args := []string{"run", "--rm"}
	for k, v := range impl.Env {
		args = append(args, "-e", k+"="+v)
	}
	for name, v := range inputs {
		args = append(args, "-e", "BRANE_INPUT_"+strings.ToUpper(name)+"="+fmt.Sprint(v.Payload))
	}
	workDir := c.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if impl.Capture == wir.CaptureMarkedFile {
		args = append(args, "-v", workDir+":/brane-out")
	}
	args = append(args, impl.Image)
	if impl.Entrypoint != "" {
		args = append(args, impl.Entrypoint)
	}
	args = append(args, impl.Args...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	if err := cmd.Run(); err != nil {
		return wir.Value{}, fmt.Errorf("job: running container %s: %w: %s", impl.Image, err, stdout.String())
	}

	switch impl.Capture {
	case wir.CaptureStdout:
		return wir.Value{Type: task.ReturnType, Payload: strings.TrimRight(stdout.String(), "\n")}, nil
	case wir.CaptureMarkedFile:
		data, err := os.ReadFile(filepath.Join(workDir, markerFileName))
		if err != nil {
			return wir.Value{}, fmt.Errorf("job: reading marked result file: %w", err)
		}
		return wir.Value{Type: task.ReturnType, Payload: strings.TrimRight(string(data), "\n")}, nil
	default:
		return wir.Value{Type: task.ReturnType}, nil
	}
}

// UnsupportedExecutor reports every Run call as unimplemented. It seeds the
// InlineDSL and CWL slots of a Dispatcher until those implementation kinds
// have a grounded in-process runtime (see DESIGN.md).
type UnsupportedExecutor struct {
	Kind string
}

func (u UnsupportedExecutor) Run(_ context.Context, _ wir.TaskDef, _ map[string]wir.Value) (wir.Value, error) {
	return wir.Value{}, fmt.Errorf("job: %s implementation execution is not yet supported", u.Kind)
}
