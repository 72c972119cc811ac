package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/wir"
)

type fakeLocations map[string][]wir.Location

func (f fakeLocations) Locations(_ context.Context, dataset string) ([]wir.Location, error) {
	return f[dataset], nil
}

// fakeChecker approves everything except domains listed in deny, which it
// denies with the given reasons.
type fakeChecker struct {
	deny map[wir.Location][]string
	calls int
}

func (f *fakeChecker) Check(_ context.Context, domain wir.Location, _ *checker.CheckerWorkflow) (checker.CheckReply, error) {
	f.calls++
	if reasons, denied := f.deny[domain]; denied {
		return checker.CheckReply{Verdict: false, Reasons: reasons}, nil
	}
	return checker.CheckReply{Verdict: true}, nil
}

func buildHelloWorkflowForPlanning() *wir.Workflow {
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
	stopEdge := wir.NewStop()
	return &wir.Workflow{ID: "hello", Sym: sym, Graph: []wir.Edge{nodeEdge, stopEdge}, Funcs: map[int][]wir.Edge{}}
}

func TestPlanner_PicksAlphabeticallyFirstCandidate(t *testing.T) {
	wf := buildHelloWorkflowForPlanning()
	ck := &fakeChecker{}
	p := New(fakeLocations{}, ck)

	planned, err := p.Plan(context.Background(), wf, "app-1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := planned.Graph[0]
	if got.At == nil || *got.At != "site-a" {
		t.Fatalf("expected site-a (alphabetically first), got %v", got.At)
	}
	if ck.calls != 1 {
		t.Fatalf("expected 1 checker call, got %d", ck.calls)
	}
	// The input workflow itself must be untouched.
	if wf.Graph[0].At != nil {
		t.Fatalf("Plan must not mutate its input workflow")
	}
}

func TestPlanner_FallsBackToNextCandidateOnDeny(t *testing.T) {
	wf := buildHelloWorkflowForPlanning()
	ck := &fakeChecker{deny: map[wir.Location][]string{"site-a": {"site-a policy forbids greet"}}}
	p := New(fakeLocations{}, ck)

	planned, err := p.Plan(context.Background(), wf, "app-1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := planned.Graph[0]
	if got.At == nil || *got.At != "site-b" {
		t.Fatalf("expected fallback to site-b, got %v", got.At)
	}
}

func buildTransferWorkflow() *wir.Workflow {
	sym := wir.SymTable{}
	dVar := sym.DeclareVar("d", wir.Data())
	resultVar := sym.DeclareVar("result", wir.Str())
	sym.DeclareTask(wir.TaskDef{
		Name:             "consume",
		Package:          "consumers",
		Input:            []wir.Param{{Name: "d", Type: wir.Data()}},
		ReturnType:       wir.Str(),
		AllowedLocations: []wir.Location{"site-b"},
	})
	initEdge := wir.NewLinear(wir.PushConst(wir.DataRef("D")), wir.StoreVar(dVar))
	initEdge.Next = 1
	nodeEdge := wir.NewNode("consume", []wir.Location{"site-b"}, []wir.NodeInput{{Name: "d", Var: dVar}}, resultVar)
	nodeEdge.Next = 2
	stopEdge := wir.NewStop()
	return &wir.Workflow{ID: "transfer", Sym: sym, Graph: []wir.Edge{initEdge, nodeEdge, stopEdge}, Funcs: map[int][]wir.Edge{}}
}

func TestPlanner_DeniedTransfer(t *testing.T) {
	wf := buildTransferWorkflow()
	ck := &fakeChecker{deny: map[wir.Location][]string{"site-a": {"D is not shareable"}}}
	p := New(fakeLocations{"D": []wir.Location{"site-a"}}, ck)

	_, err := p.Plan(context.Background(), wf, "app-1")
	var denied *CheckerDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected *CheckerDenied, got %v", err)
	}
	if denied.Domain != "site-a" {
		t.Fatalf("expected domain site-a, got %v", denied.Domain)
	}
	if len(denied.Reasons) != 1 || denied.Reasons[0] != "D is not shareable" {
		t.Fatalf("unexpected reasons %v", denied.Reasons)
	}
}

func TestPlanner_TransferApprovedRecordsTransfer(t *testing.T) {
	wf := buildTransferWorkflow()
	ck := &fakeChecker{}
	p := New(fakeLocations{"D": []wir.Location{"site-a"}}, ck)

	planned, err := p.Plan(context.Background(), wf, "app-1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	node := planned.Graph[1]
	if node.At == nil || *node.At != "site-b" {
		t.Fatalf("expected node planned at site-b, got %v", node.At)
	}
	if len(node.Transfers) != 1 || node.Transfers[0].From != "site-a" || node.Transfers[0].To != "site-b" || node.Transfers[0].Dataset != "D" {
		t.Fatalf("unexpected transfers %+v", node.Transfers)
	}
	// Both the task site (site-b) and the transfer source (site-a) must
	// have been consulted.
	if ck.calls != 2 {
		t.Fatalf("expected 2 checker calls, got %d", ck.calls)
	}
}
