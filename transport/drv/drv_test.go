package drv

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/planner"
	"github.com/brane-run/brane/session"
	"github.com/brane-run/brane/wir"
)

type fakeLocations map[string][]wir.Location

func (f fakeLocations) Locations(_ context.Context, dataset string) ([]wir.Location, error) {
	return f[dataset], nil
}

type fakeChecker struct{}

func (fakeChecker) Check(_ context.Context, _ wir.Location, _ *checker.CheckerWorkflow) (checker.CheckReply, error) {
	return checker.CheckReply{Verdict: true}, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Stage(_ context.Context, v wir.Value, loc wir.Location) (wir.Value, error) {
	return v.Resolve(loc, v.Payload), nil
}

func dialServer(t *testing.T, impl DriverServer) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	srv.RegisterService(&ServiceDesc, impl)
	go srv.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, func() { conn.Close(); srv.Stop() }
}

func TestCreateSessionAndCheck(t *testing.T) {
	reg := session.NewRegistry(time.Hour, time.Hour)
	defer reg.Close()

	s := NewServer(reg, planner.New(fakeLocations{}, fakeChecker{}), nil, fakeRegistry{}, nil, nil)
	conn, closeFn := dialServer(t, s)
	defer closeFn()

	ctx := context.Background()
	var createResp CreateSessionResponse
	if err := conn.Invoke(ctx, "/"+serviceName+"/CreateSession", &CreateSessionRequest{}, &createResp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if createResp.UUID == "" {
		t.Fatalf("expected a non-empty session uuid")
	}
	if _, ok := reg.Get(createResp.UUID); !ok {
		t.Fatalf("session %q was not registered", createResp.UUID)
	}

	wf := wir.NewWorkflow("empty")
	wfJSON, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("marshal workflow: %v", err)
	}

	var checkResp CheckResponse
	if err := conn.Invoke(ctx, "/"+serviceName+"/Check", &CheckRequest{WorkflowJSON: wfJSON}, &checkResp); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !checkResp.Verdict {
		t.Fatalf("expected an empty workflow to be approved, got %+v", checkResp)
	}
}

func TestExecute_EmptyWorkflowClosesWithValue(t *testing.T) {
	reg := session.NewRegistry(time.Hour, time.Hour)
	defer reg.Close()

	s := NewServer(reg, planner.New(fakeLocations{}, fakeChecker{}), nil, fakeRegistry{}, nil, nil)
	conn, closeFn := dialServer(t, s)
	defer closeFn()

	ctx := context.Background()
	var createResp CreateSessionResponse
	if err := conn.Invoke(ctx, "/"+serviceName+"/CreateSession", &CreateSessionRequest{}, &createResp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	wf := wir.NewWorkflow("empty")
	wfJSON, _ := json.Marshal(wf)

	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/Execute")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := stream.SendMsg(&ExecuteRequest{UUID: createResp.UUID, WorkflowJSON: wfJSON}); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	var lastChunk ExecuteChunk
	sawFinal := false
	for {
		var chunk ExecuteChunk
		if err := stream.RecvMsg(&chunk); err != nil {
			break
		}
		lastChunk = chunk
		if chunk.Close {
			sawFinal = true
			break
		}
	}
	if !sawFinal {
		t.Fatalf("expected a final chunk with Close=true")
	}
	if lastChunk.Error != "" {
		t.Fatalf("unexpected error chunk: %+v", lastChunk)
	}
	if len(lastChunk.Value) == 0 {
		t.Fatalf("expected the final chunk to carry the run's value: %+v", lastChunk)
	}
}
