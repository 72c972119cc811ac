package vm

import "errors"

// Sentinel errors the interpreter returns for conditions spec.md §4.8
// classifies as fatal (never retried) versus programming bugs in the
// compiled WIR rather than the running workflow.
var (
	// ErrFramesRemaining means a Stop edge ran with callee frames still on
	// the frame stack: "if any frames remain, it is a bug" (spec.md §4.8).
	ErrFramesRemaining = errors.New("vm: Stop reached with frames still on the call stack")

	// ErrStackUnderflow means a Linear/Branch/Call instruction popped from
	// an empty value stack, which only happens if an earlier pass let
	// through a program the type checker should have rejected.
	ErrStackUnderflow = errors.New("vm: value stack underflow")

	// ErrTypeMismatch means a runtime value's Payload didn't have the Go
	// type an opcode or edge kind required ("defensive runtime type errors
	// are fatal", spec.md §4.8).
	ErrTypeMismatch = errors.New("vm: runtime type mismatch")

	// ErrFellThrough means a user function's graph ran off a dangling edge
	// without reaching Return — a lowering bug, not a runtime failure.
	ErrFellThrough = errors.New("vm: function graph ended without Return")

	// ErrCancelled is returned by in-flight Node/transfer operations once
	// the session's context is cancelled (spec.md §4.8, "Cancellation").
	ErrCancelled = errors.New("vm: session cancelled")
)

// RemoteError wraps a failure from a JobClient or RegistryClient call,
// carrying whether the retry policy should consider it transient (spec.md
// §4.8: "Transient remote failures... are retried... Checker denials, type
// errors, and missing-dataset errors are fatal and not retried").
type RemoteError struct {
	Op        string // "launch", "stage", or "collect"
	Retryable bool
	Err       error
}

func (e *RemoteError) Error() string { return "vm: " + e.Op + ": " + e.Err.Error() }
func (e *RemoteError) Unwrap() error { return e.Err }
