package drv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/planner"
	"github.com/brane-run/brane/resolve"
	"github.com/brane-run/brane/session"
	"github.com/brane-run/brane/snippet"
	"github.com/brane-run/brane/transport/job"
	"github.com/brane-run/brane/vm"
	"github.com/brane-run/brane/wir"
)

// Server is the production DriverServer: it mints sessions, dry-run plans
// a workflow for Check, and plans-then-runs a workflow for Execute,
// streaming the VM's emitted events back to the caller as ExecuteChunks
// (spec.md §6, §4.8).
type Server struct {
	Sessions  *session.Registry
	Planner   *planner.Planner
	JobDialer *job.Dialer
	Registry  vm.RegistryClient

	// Dialect, Packages, and Universe seed every new session's
	// snippet.CompileState (spec.md §4.6).
	Dialect  lexer.Dialect
	Packages resolve.PackageIndex
	Universe []wir.Location
}

// NewServer builds a Server. jobDialer and reg are the collaborators every
// planned workflow's VM run needs (spec.md §4.8); jobDialer is shared
// across sessions, while each Execute call wraps it in a session-scoped
// job.Client so launch retries hash to a stable (task_id, app_id) pair.
func NewServer(sessions *session.Registry, p *planner.Planner, jobDialer *job.Dialer, reg vm.RegistryClient, packages resolve.PackageIndex, universe []wir.Location) *Server {
	return &Server{
		Sessions:  sessions,
		Planner:   p,
		JobDialer: jobDialer,
		Registry:  reg,
		Dialect:   lexer.DialectBraneScript,
		Packages:  packages,
		Universe:  universe,
	}
}

func (s *Server) CreateSession(ctx context.Context, _ *CreateSessionRequest) (*CreateSessionResponse, error) {
	id := uuid.NewString()
	s.Sessions.Create(id, &snippet.CompileState{
		Dialect:  s.Dialect,
		Packages: s.Packages,
		Universe: s.Universe,
	})
	return &CreateSessionResponse{UUID: id}, nil
}

// Check dry-run plans req's workflow and reports whether every Node edge's
// candidate locations were authorized, without running it (spec.md §6:
// "Check(workflow_json) -> {verdict, who?, reasons[], profile?}").
func (s *Server) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	var wf wir.Workflow
	if err := json.Unmarshal(req.WorkflowJSON, &wf); err != nil {
		return nil, fmt.Errorf("drv: decoding workflow: %w", err)
	}

	if _, err := s.Planner.Plan(ctx, &wf, ""); err != nil {
		var denied *planner.CheckerDenied
		if errors.As(err, &denied) {
			return &CheckResponse{Verdict: false, Who: string(denied.Domain), Reasons: denied.Reasons}, nil
		}
		return nil, fmt.Errorf("drv: check: %w", err)
	}
	return &CheckResponse{Verdict: true}, nil
}

// Execute plans req's workflow, runs it on a fresh VM bound to the
// session named by req.UUID, and streams every emitted event plus the
// final return value to the caller (spec.md §4.8).
func (s *Server) Execute(req *ExecuteRequest, stream ExecuteServer) error {
	sess, ok := s.Sessions.Get(req.UUID)
	if !ok {
		return stream.Send(&ExecuteChunk{Close: true, Error: "drv: unknown session " + req.UUID})
	}

	var wf wir.Workflow
	if err := json.Unmarshal(req.WorkflowJSON, &wf); err != nil {
		return stream.Send(&ExecuteChunk{Close: true, Error: "drv: decoding workflow: " + err.Error()})
	}

	ctx := stream.Context()
	planned, err := s.Planner.Plan(ctx, &wf, req.UUID)
	if err != nil {
		var denied *planner.CheckerDenied
		if errors.As(err, &denied) {
			return stream.Send(&ExecuteChunk{Close: true, Error: fmt.Sprintf("denied by %s: %v", denied.Domain, denied.Reasons)})
		}
		return stream.Send(&ExecuteChunk{Close: true, Error: "drv: planning: " + err.Error()})
	}

	emitter := &streamEmitter{stream: stream}
	jobClient := &job.Client{Dialer: s.JobDialer, AppID: req.UUID}
	v := vm.New(planned, vm.Options{Job: jobClient, Registry: s.Registry, Emitter: emitter})
	sess.SetVM(planned, v)

	result, err := v.Run(ctx, req.UUID)
	if err != nil {
		return stream.Send(&ExecuteChunk{Close: true, Error: err.Error()})
	}
	value, err := json.Marshal(result)
	if err != nil {
		return stream.Send(&ExecuteChunk{Close: true, Error: "drv: encoding result: " + err.Error()})
	}
	return stream.Send(&ExecuteChunk{Close: true, Value: value})
}

// streamEmitter adapts the VM's emit.Emitter collaborator to Execute's
// response stream: every event becomes one non-final ExecuteChunk carrying
// a human-readable Debug line (spec.md §6's stream elements are cosmetic
// beyond Close/Value; Debug is where run-progress visibility lives).
type streamEmitter struct {
	stream ExecuteServer
}

func (e *streamEmitter) Emit(event emit.Event) {
	_ = e.stream.Send(&ExecuteChunk{Debug: formatEvent(event)})
}

func (e *streamEmitter) EmitBatch(_ context.Context, events []emit.Event) error {
	for _, ev := range events {
		e.Emit(ev)
	}
	return nil
}

// Flush has nothing pending: every event is sent as it is emitted.
func (e *streamEmitter) Flush(_ context.Context) error {
	return nil
}

func formatEvent(event emit.Event) string {
	if event.NodeID != "" {
		return fmt.Sprintf("%s: %s", event.NodeID, event.Msg)
	}
	return event.Msg
}
