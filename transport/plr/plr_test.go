package plr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/planner"
	"github.com/brane-run/brane/wir"
)

type fakeLocations map[string][]wir.Location

func (f fakeLocations) Locations(_ context.Context, dataset string) ([]wir.Location, error) {
	return f[dataset], nil
}

type fakeChecker struct {
	deny map[wir.Location][]string
}

func (f *fakeChecker) Check(_ context.Context, domain wir.Location, _ *checker.CheckerWorkflow) (checker.CheckReply, error) {
	if reasons, denied := f.deny[domain]; denied {
		return checker.CheckReply{Verdict: false, Reasons: reasons}, nil
	}
	return checker.CheckReply{Verdict: true}, nil
}

func buildWorkflow() *wir.Workflow {
	sym := wir.SymTable{}
	resultVar := sym.DeclareVar("result", wir.Str())
	sym.DeclareTask(wir.TaskDef{
		Name:             "greet",
		Package:          "greeters",
		ReturnType:       wir.Str(),
		AllowedLocations: []wir.Location{"site-b", "site-a"},
	})
	nodeEdge := wir.NewNode("greet", []wir.Location{"site-b", "site-a"}, nil, resultVar)
	nodeEdge.Next = 1
	return &wir.Workflow{ID: "hello", Sym: sym, Graph: []wir.Edge{nodeEdge, wir.NewStop()}, Funcs: map[int][]wir.Edge{}}
}

func postPlan(t *testing.T, s *Server, req PlanRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/plan", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httpReq)
	return rec
}

func TestPlan_Success(t *testing.T) {
	p := planner.New(fakeLocations{}, &fakeChecker{})
	s := NewServer(p, nil)

	rec := postPlan(t, s, PlanRequest{AppID: "app-1", Workflow: buildWorkflow()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp PlanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Plan == nil || len(resp.Plan.Graph) != 2 {
		t.Fatalf("plan = %+v", resp.Plan)
	}
}

func TestPlan_Denied(t *testing.T) {
	ck := &fakeChecker{deny: map[wir.Location][]string{
		"site-a": {"site-a policy forbids greet"},
		"site-b": {"site-b policy forbids greet"},
	}}
	p := planner.New(fakeLocations{}, ck)
	s := NewServer(p, nil)

	rec := postPlan(t, s, PlanRequest{AppID: "app-1", Workflow: buildWorkflow()})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp DeniedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reasons) == 0 {
		t.Fatalf("expected reasons, got %+v", resp)
	}
}

func TestPlan_MissingWorkflow(t *testing.T) {
	p := planner.New(fakeLocations{}, &fakeChecker{})
	s := NewServer(p, nil)

	rec := postPlan(t, s, PlanRequest{AppID: "app-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}
