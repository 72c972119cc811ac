package job

import (
	"context"
	"testing"

	"github.com/brane-run/brane/wir"
)

type echoExecutor struct{ calls int }

func (e *echoExecutor) Run(_ context.Context, task wir.TaskDef, inputs map[string]wir.Value) (wir.Value, error) {
	e.calls++
	return wir.StringValue("ok:" + task.Name), nil
}

func TestLaunch_IsIdempotentByTaskAndApp(t *testing.T) {
	exec := &echoExecutor{}
	d := NewDispatcher(exec, nil, nil)
	s := NewServer(d, nil)

	task := wir.TaskDef{Name: "greet", Implementation: wir.Implementation{Kind: wir.ImplContainer}}
	req := &LaunchRequest{TaskID: "t1", AppID: "a1", Task: task}

	first, err := s.Launch(context.Background(), req)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !first.Done || first.Value.Payload != "ok:greet" {
		t.Fatalf("unexpected first launch response: %+v", first)
	}

	second, err := s.Launch(context.Background(), req)
	if err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	if second.Value.Payload != "ok:greet" {
		t.Fatalf("expected the cached result, got %+v", second)
	}
	if exec.calls != 1 {
		t.Fatalf("expected exactly one executor invocation, got %d", exec.calls)
	}
}

func TestStatus_UnknownRunReportsUnknownState(t *testing.T) {
	s := NewServer(NewDispatcher(&echoExecutor{}, nil, nil), nil)
	resp, err := s.Status(context.Background(), &StatusRequest{TaskID: "missing", AppID: "a1"})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.State != StateUnknown {
		t.Fatalf("expected StateUnknown, got %v", resp.State)
	}
}

func TestLaunch_RejectsUnregisteredKind(t *testing.T) {
	s := NewServer(NewDispatcher(nil, nil, nil), nil)
	task := wir.TaskDef{Name: "inline-task", Implementation: wir.Implementation{Kind: wir.ImplInlineDSL}}
	resp, err := s.Launch(context.Background(), &LaunchRequest{TaskID: "t2", AppID: "a1", Task: task})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("expected an error for an unregistered implementation kind")
	}
}

func TestCancel_MarksRunningLaunchCancelled(t *testing.T) {
	s := NewServer(NewDispatcher(&echoExecutor{}, nil, nil), nil)
	s.mu.Lock()
	s.runs[runKey{taskID: "t3", appID: "a1"}] = &run{state: StateRunning, cancel: func() {}}
	s.mu.Unlock()

	resp, err := s.Cancel(context.Background(), &CancelRequest{TaskID: "t3", AppID: "a1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !resp.Cancelled {
		t.Fatalf("expected Cancelled=true for a running launch")
	}

	status, err := s.Status(context.Background(), &StatusRequest{TaskID: "t3", AppID: "a1"})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != StateCancelled {
		t.Fatalf("expected StateCancelled, got %v", status.State)
	}
}
