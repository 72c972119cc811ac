package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/brane-run/brane/wir"
)

// fakeJob launches every task locally by calling a registered Go function,
// standing in for the real gRPC job service in tests (spec.md §8's
// scenarios only require "a task runs and produces a value", not the wire
// protocol).
type fakeJob struct {
	impls map[string]func(map[string]wir.Value) (wir.Value, error)
	calls int
}

func (f *fakeJob) Launch(_ context.Context, _ wir.Location, task wir.TaskDef, inputs map[string]wir.Value, _ wir.Metadata) (wir.Value, error) {
	f.calls++
	impl, ok := f.impls[task.Name]
	if !ok {
		return wir.Value{}, errors.New("no fake implementation for " + task.Name)
	}
	return impl(inputs)
}

type fakeRegistry struct{}

func (fakeRegistry) Stage(_ context.Context, v wir.Value, loc wir.Location) (wir.Value, error) {
	return v.Resolve(loc, v.Payload), nil
}

// buildHelloWorkflow constructs, by hand, the WIR for a single Node call
// whose result becomes the workflow's final value: a greet(name) task run
// at one location, then Stop (spec.md §8, "hello-world" scenario).
func buildHelloWorkflow() *wir.Workflow {
	sym := wir.SymTable{}
	nameVar := sym.DeclareVar("name", wir.Str())
	resultVar := sym.DeclareVar("result", wir.Str())
	taskIdx := sym.DeclareTask(wir.TaskDef{
		Name:             "greet",
		Package:          "greeters",
		Input:            []wir.Param{{Name: "name", Type: wir.Str()}},
		ReturnType:       wir.Str(),
		AllowedLocations: []wir.Location{"site-a"},
	})
	_ = taskIdx

	initEdge := wir.NewLinear(wir.PushConst(wir.StringValue("world")), wir.StoreVar(nameVar))
	loc := wir.Location("site-a")
	nodeEdge := wir.NewNode("greet", []wir.Location{loc}, []wir.NodeInput{{Name: "name", Var: nameVar}}, resultVar)
	nodeEdge.At = &loc
	stopEdge := wir.NewLinear(wir.PushVar(resultVar))
	haltEdge := wir.NewStop()

	initEdge.Next = 1
	nodeEdge.Next = 2
	stopEdge.Next = 3

	return &wir.Workflow{
		ID:    "hello",
		Sym:   sym,
		Graph: []wir.Edge{initEdge, nodeEdge, stopEdge, haltEdge},
		Funcs: map[int][]wir.Edge{},
	}
}

func TestVM_HelloWorld(t *testing.T) {
	wf := buildHelloWorkflow()
	job := &fakeJob{impls: map[string]func(map[string]wir.Value) (wir.Value, error){
		"greet": func(in map[string]wir.Value) (wir.Value, error) {
			name, _ := in["name"].Payload.(string)
			return wir.StringValue("hello " + name), nil
		},
	}}
	machine := New(wf, Options{Job: job, Registry: fakeRegistry{}})

	got, err := machine.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Payload != "hello world" {
		t.Fatalf("got %v, want %q", got.Payload, "hello world")
	}
	if job.calls != 1 {
		t.Fatalf("expected 1 launch, got %d", job.calls)
	}
}

// buildParallelSumWorkflow constructs a Parallel of two Node calls to the
// same task with different inputs, joined with MergeSum (spec.md §8,
// "parallel-sum" scenario).
func buildParallelSumWorkflow() *wir.Workflow {
	sym := wir.SymTable{}
	aVar := sym.DeclareVar("a", wir.Int())
	bVar := sym.DeclareVar("b", wir.Int())
	rAVar := sym.DeclareVar("ra", wir.Int())
	rBVar := sym.DeclareVar("rb", wir.Int())
	sym.DeclareTask(wir.TaskDef{
		Name:             "double",
		Package:          "math",
		Input:            []wir.Param{{Name: "x", Type: wir.Int()}},
		ReturnType:       wir.Int(),
		AllowedLocations: []wir.Location{"site-a"},
	})

	loc := wir.Location("site-a")

	initEdge := wir.NewLinear(
		wir.PushConst(wir.IntValue(3)), wir.StoreVar(aVar),
		wir.PushConst(wir.IntValue(4)), wir.StoreVar(bVar),
	)

	branchANode := wir.NewNode("double", []wir.Location{loc}, []wir.NodeInput{{Name: "x", Var: aVar}}, rAVar)
	branchANode.At = &loc
	pushA := wir.NewLinear(wir.PushVar(rAVar))

	branchBNode := wir.NewNode("double", []wir.Location{loc}, []wir.NodeInput{{Name: "x", Var: bVar}}, rBVar)
	branchBNode.At = &loc
	pushB := wir.NewLinear(wir.PushVar(rBVar))

	// Edge layout: 0 init, 1 branchANode, 2 pushA, 3 branchBNode, 4 pushB,
	// 5 parallel, 6 join, 7 stop.
	initEdge.Next = 5
	branchANode.Next = 2
	pushA.Next = wir.NoEdge // branch subgraph terminal
	branchBNode.Next = 4
	pushB.Next = wir.NoEdge // branch subgraph terminal

	parallelEdge := wir.NewParallel([]int{1, 3}, 6)
	joinEdge := wir.NewJoin(wir.MergeSum, 7)
	stopEdge := wir.NewStop()

	return &wir.Workflow{
		ID:  "parallel-sum",
		Sym: sym,
		Graph: []wir.Edge{
			initEdge,     // 0
			branchANode,  // 1
			pushA,        // 2
			branchBNode,  // 3
			pushB,        // 4
			parallelEdge, // 5
			joinEdge,     // 6
			stopEdge,     // 7
		},
		Funcs: map[int][]wir.Edge{},
	}
}

func TestVM_ParallelSum(t *testing.T) {
	wf := buildParallelSumWorkflow()
	job := &fakeJob{impls: map[string]func(map[string]wir.Value) (wir.Value, error){
		"double": func(in map[string]wir.Value) (wir.Value, error) {
			x, _ := in["x"].Payload.(int64)
			return wir.IntValue(x * 2), nil
		},
	}}
	machine := New(wf, Options{Job: job, Registry: fakeRegistry{}})

	got, err := machine.Run(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// double(3) + double(4) = 6 + 8 = 14.
	if got.Payload != int64(14) {
		t.Fatalf("got %v, want 14", got.Payload)
	}
	if job.calls != 2 {
		t.Fatalf("expected 2 launches, got %d", job.calls)
	}
}

func TestCheckFinalFrames(t *testing.T) {
	if err := checkFinalFrames([]wir.Frame{{}}); err != nil {
		t.Fatalf("single remaining frame should be valid, got %v", err)
	}
	if err := checkFinalFrames([]wir.Frame{{}, {}}); !errors.Is(err, ErrFramesRemaining) {
		t.Fatalf("expected ErrFramesRemaining, got %v", err)
	}
}

func TestVM_CallReturn(t *testing.T) {
	sym := wir.SymTable{}
	argVar := sym.DeclareVar("n", wir.Int())
	sym.DeclareFunc("double", []wir.Param{{Name: "n", Type: wir.Int()}}, wir.Int())
	sym.SetParamVars(0, []int{argVar})

	// Function 0 body: push n*2, Return.
	bodyCompute := wir.NewLinear(wir.PushVar(argVar), wir.PushConst(wir.IntValue(2)), wir.BinOp(wir.Mul))
	bodyCompute.Next = 1
	bodyReturn := wir.NewReturn()

	// Main graph: push literal 5, PushFunc(0), PushArgc(1), Call, Stop.
	setupArgs := wir.NewLinear(wir.PushConst(wir.IntValue(5)), wir.PushFunc(0), wir.PushArgc(1))
	setupArgs.Next = 1
	callEdge := wir.NewCall(2)
	stopEdge := wir.NewStop()

	wf := &wir.Workflow{
		ID:    "call-return",
		Sym:   sym,
		Graph: []wir.Edge{setupArgs, callEdge, stopEdge},
		Funcs: map[int][]wir.Edge{0: {bodyCompute, bodyReturn}},
	}

	machine := New(wf, Options{})
	got, err := machine.Run(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Payload != int64(10) {
		t.Fatalf("got %v, want 10", got.Payload)
	}
}
