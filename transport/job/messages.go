// Package job is a worker's `job` service (spec.md §6): task launch,
// status, and cancel, served over the same hand-rolled JSON-over-gRPC
// plumbing as transport/drv (SPEC_FULL.md §6: "worker job (gRPC):
// google.golang.org/grpc"). Launch is idempotent by (task_id, app_id)
// (spec.md §6): launching an already-running or already-completed task
// returns its existing outcome rather than starting a second execution.
package job

import "github.com/brane-run/brane/wir"

// LaunchRequest starts task.Implementation with the resolved inputs and
// call-site metadata (spec.md §4.8, VM step (b)). TaskID and AppID together
// identify the launch for idempotency purposes.
type LaunchRequest struct {
	TaskID string                `json:"task_id"`
	AppID  string                `json:"app_id"`
	Task   wir.TaskDef           `json:"task"`
	Inputs map[string]wir.Value  `json:"inputs"`
	Meta   wir.Metadata          `json:"meta"`
}

// LaunchResponse carries the task's return value once Launch has completed
// synchronously, or acknowledges a still-running execution that the caller
// should poll via Status.
type LaunchResponse struct {
	Done   bool      `json:"done"`
	Value  wir.Value `json:"value,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// StatusRequest polls an in-flight or completed launch.
type StatusRequest struct {
	TaskID string `json:"task_id"`
	AppID  string `json:"app_id"`
}

// RunState enumerates a launch's lifecycle.
type RunState int

const (
	StateUnknown RunState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StatusResponse reports a launch's current lifecycle state and, once
// terminal, its outcome.
type StatusResponse struct {
	State RunState  `json:"state"`
	Value wir.Value `json:"value,omitempty"`
	Error string    `json:"error,omitempty"`
}

// CancelRequest requests cooperative cancellation of an in-flight launch
// (spec.md §4.8, "Cancellation is cooperative").
type CancelRequest struct {
	TaskID string `json:"task_id"`
	AppID  string `json:"app_id"`
}

// CancelResponse acknowledges a cancel request; Cancelled is false if the
// launch had already reached a terminal state.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}
