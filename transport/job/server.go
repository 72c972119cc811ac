package job

import (
	"context"
	"sync"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// run tracks one launch's lifecycle, keyed by (task_id, app_id).
type run struct {
	mu     sync.Mutex
	state  RunState
	value  wir.Value
	errMsg string
	cancel context.CancelFunc
}

type runKey struct {
	taskID string
	appID  string
}

// Server is the production JobServer: it dispatches launches to an
// Executor and tracks their outcome for Status/Cancel polling, keyed by
// (task_id, app_id) for Launch's idempotency contract (spec.md §6).
type Server struct {
	Dispatcher *Dispatcher
	Emitter    emit.Emitter

	mu   sync.Mutex
	runs map[runKey]*run
}

// NewServer builds a Server dispatching launches through d.
func NewServer(d *Dispatcher, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	return &Server{Dispatcher: d, Emitter: emitter, runs: map[runKey]*run{}}
}

func (s *Server) Launch(ctx context.Context, req *LaunchRequest) (*LaunchResponse, error) {
	key := runKey{taskID: req.TaskID, appID: req.AppID}

	s.mu.Lock()
	if existing, ok := s.runs[key]; ok {
		s.mu.Unlock()
		return existing.launchResponse(), nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{state: StateRunning, cancel: cancel}
	s.runs[key] = r
	s.mu.Unlock()

	s.Emitter.Emit(emit.Event{Msg: "job_launch", Meta: map[string]interface{}{
		"task_id": req.TaskID, "app_id": req.AppID, "task": req.Task.Name,
	}})

	value, err := s.Dispatcher.Run(runCtx, req.Task, req.Inputs)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = StateFailed
		r.errMsg = err.Error()
		s.Emitter.Emit(emit.Event{Msg: "job_error", Meta: map[string]interface{}{"task_id": req.TaskID, "error": err.Error()}})
		return &LaunchResponse{Done: true, Error: err.Error()}, nil
	}
	r.state = StateSucceeded
	r.value = value
	s.Emitter.Emit(emit.Event{Msg: "job_complete", Meta: map[string]interface{}{"task_id": req.TaskID}})
	return &LaunchResponse{Done: true, Value: value}, nil
}

func (r *run) launchResponse() *LaunchResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRunning:
		return &LaunchResponse{Done: false}
	case StateFailed:
		return &LaunchResponse{Done: true, Error: r.errMsg}
	default:
		return &LaunchResponse{Done: true, Value: r.value}
	}
}

func (s *Server) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	s.mu.Lock()
	r, ok := s.runs[runKey{taskID: req.TaskID, appID: req.AppID}]
	s.mu.Unlock()
	if !ok {
		return &StatusResponse{State: StateUnknown}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return &StatusResponse{State: r.state, Value: r.value, Error: r.errMsg}, nil
}

func (s *Server) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	s.mu.Lock()
	r, ok := s.runs[runKey{taskID: req.TaskID, appID: req.AppID}]
	s.mu.Unlock()
	if !ok {
		return &CancelResponse{Cancelled: false}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return &CancelResponse{Cancelled: false}, nil
	}
	r.cancel()
	r.state = StateCancelled
	return &CancelResponse{Cancelled: true}, nil
}
