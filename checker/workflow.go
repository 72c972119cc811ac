// Package checker implements the policy-checker protocol (spec.md §4.9): a
// lossy, deterministic projection of a planned wir.Workflow into a
// policy-relevant "checker workflow", a JWT-authenticated HTTP request/reply
// envelope for submitting it, and a chi-based server a domain runs to
// evaluate it.
package checker

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/brane-run/brane/wir"
)

// NodeKind discriminates the CheckerWorkflow sum type (spec.md §4.9, "The
// checker workflow structure").
type NodeKind int

const (
	NodeTask NodeKind = iota
	NodeLinear
	NodeBranch
	NodeParallel
	NodeLoop
	NodeCall
	NodeNext
	NodeStop
)

func (k NodeKind) String() string {
	switch k {
	case NodeTask:
		return "Task"
	case NodeLinear:
		return "Linear"
	case NodeBranch:
		return "Branch"
	case NodeParallel:
		return "Parallel"
	case NodeLoop:
		return "Loop"
	case NodeCall:
		return "Call"
	case NodeNext:
		return "Next"
	case NodeStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// TaskInput names one input the checker can see: the parameter name and,
// when the value is a Data/IntermediateResult reference, the location it
// currently resides at (spec.md §4.9: "inputs (list of {name,
// origin-location?})").
type TaskInput struct {
	Name   string      `json:"name"`
	Origin wir.Location `json:"origin,omitempty"`
}

// TaskNode is the policy-relevant projection of one Node edge (spec.md
// §4.9): identity, provenance, and the metadata tags the checker validates
// signatures against. Pure-compute detail (the task's instruction stream,
// unrelated Linear edges) is elided entirely.
type TaskNode struct {
	Name            string       `json:"name"`
	Package         string       `json:"package"`
	Version         string       `json:"version"`
	ContainerDigest string       `json:"container_digest,omitempty"`
	Inputs          []TaskInput  `json:"inputs"`
	HasOutput       bool         `json:"has_output"`
	PlannedLocation wir.Location `json:"planned_location"`
	Tags            []wir.Tag    `json:"tags,omitempty"`
}

// CheckerNode is the tagged-union element of a checker workflow (spec.md
// §4.9). Only the field named by Kind is populated.
type CheckerNode struct {
	Kind NodeKind `json:"kind"`

	Task *TaskNode `json:"task,omitempty"`

	// Linear/Branch/Parallel/Loop carry their continuation(s) inline as
	// nested nodes rather than indices, since the checker workflow is a
	// standalone document with no shared edge array to index into.
	Next     *CheckerNode   `json:"next,omitempty"`
	TrueNext *CheckerNode   `json:"true_next,omitempty"`
	FalseNext *CheckerNode  `json:"false_next,omitempty"`
	Branches []*CheckerNode `json:"branches,omitempty"`
	Merge    string         `json:"merge_strategy,omitempty"`
	Cond     *CheckerNode   `json:"cond,omitempty"`
	Body     *CheckerNode   `json:"body,omitempty"`

	// Call references a shared sub-graph by handle, so recursive or
	// repeated function calls are representable without infinite
	// unrolling (spec.md §4.9: "Call references a sub-graph by shared
	// handle so recursion and re-use are representable").
	CallHandle string `json:"call_handle,omitempty"`
}

// CheckerWorkflow is the full request payload: the root node plus every
// Call handle's shared sub-graph, keyed so a recursive function is
// represented once regardless of how many times it is called.
type CheckerWorkflow struct {
	Root     *CheckerNode            `json:"root"`
	Handles  map[string]*CheckerNode `json:"handles,omitempty"`
	User     string                  `json:"user,omitempty"`
	WorkflowTags []wir.Tag           `json:"workflow_tags,omitempty"`
}

// Project builds the checker workflow for the sub-graph beginning at entry
// within funcID, projecting every Node edge reachable from it into a
// TaskNode and eliding pure-compute Linear instructions down to a bare
// continuation marker. Project is deterministic: identical WIR (same edge
// graph, same Sym) yields a byte-identical CheckerWorkflow once marshalled
// with CanonicalJSON (spec.md §4.9, "so checkers can hash-cache verdicts").
func Project(wf *wir.Workflow, funcID, entry int) (*CheckerWorkflow, error) {
	p := &projector{wf: wf, handles: map[string]*CheckerNode{}, visiting: map[wir.ProgramCounter]string{}}
	root, err := p.node(funcID, entry)
	if err != nil {
		return nil, err
	}
	cw := &CheckerWorkflow{Root: root, Handles: p.handles, User: wf.User, WorkflowTags: wf.Metadata.Tags}
	return cw, nil
}

type projector struct {
	wf *wir.Workflow
	// handles collects the shared sub-graph of every function projected
	// through ProjectFunc, keyed by the handle its caller passes in.
	handles map[string]*CheckerNode
	// visiting is allocated by Project and ProjectFunc, but node() never
	// reads or writes it.
	visiting map[wir.ProgramCounter]string
}

func (p *projector) node(funcID, idx int) (*CheckerNode, error) {
	if idx == wir.NoEdge {
		return &CheckerNode{Kind: NodeNext}, nil
	}
	edge, err := p.wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: idx})
	if err != nil {
		return nil, err
	}
	switch edge.EdgeKind {
	case wir.EdgeNode:
		task, ok := findTask(p.wf.Sym.Tasks, edge.Task)
		if !ok {
			return nil, fmt.Errorf("checker: Node references unknown task %q", edge.Task)
		}
		inputs := make([]TaskInput, len(edge.Input))
		for i, in := range edge.Input {
			inputs[i] = TaskInput{Name: in.Name}
		}
		loc := wir.Location("")
		if edge.At != nil {
			loc = *edge.At
		}
		next, err := p.node(funcID, edge.Next)
		if err != nil {
			return nil, err
		}
		return &CheckerNode{Kind: NodeTask, Task: &TaskNode{
			Name:            task.Name,
			Package:         task.Package,
			Version:         task.Version.String(),
			ContainerDigest: task.ContainerDigest,
			Inputs:          inputs,
			HasOutput:       task.ReturnType.Kind != wir.KindVoid,
			PlannedLocation: loc,
			Tags:            edge.Metadata.Tags,
		}, Next: next}, nil

	case wir.EdgeLinear, wir.EdgeJoin:
		// Pure-compute detail is policy-irrelevant; a Linear edge
		// projects to a bare continuation.
		return p.node(funcID, edge.Next)

	case wir.EdgeStop, wir.EdgeReturn:
		return &CheckerNode{Kind: NodeStop}, nil

	case wir.EdgeBranch:
		t, err := p.node(funcID, edge.TrueNext)
		if err != nil {
			return nil, err
		}
		f, err := p.node(funcID, edge.FalseNext)
		if err != nil {
			return nil, err
		}
		return &CheckerNode{Kind: NodeBranch, TrueNext: t, FalseNext: f}, nil

	case wir.EdgeParallel:
		branches := make([]*CheckerNode, len(edge.Branches))
		for i, b := range edge.Branches {
			n, err := p.node(funcID, b)
			if err != nil {
				return nil, err
			}
			branches[i] = n
		}
		join, err := p.wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: edge.Merge})
		if err != nil {
			return nil, err
		}
		next, err := p.node(funcID, join.Next)
		if err != nil {
			return nil, err
		}
		return &CheckerNode{Kind: NodeParallel, Branches: branches, Merge: join.Strategy.String(), Next: next}, nil

	case wir.EdgeLoop:
		cond, err := p.node(funcID, edge.Cond)
		if err != nil {
			return nil, err
		}
		body, err := p.node(funcID, edge.Body)
		if err != nil {
			return nil, err
		}
		next, err := p.node(funcID, edge.Next)
		if err != nil {
			return nil, err
		}
		return &CheckerNode{Kind: NodeLoop, Cond: cond, Body: body, Next: next}, nil

	case wir.EdgeCall:
		// The callee graph is unknown from the Call edge alone (funcID
		// is pushed dynamically by a preceding Linear edge); a callee's
		// body is projected only through a separate ProjectFunc call,
		// which the planner does not make. Here we only emit the continuation
		// after the call returns plus a placeholder handle name keyed by
		// edge position, resolved by the caller.
		next, err := p.node(funcID, edge.Next)
		if err != nil {
			return nil, err
		}
		return &CheckerNode{Kind: NodeCall, CallHandle: fmt.Sprintf("call@%d:%d", funcID, idx), Next: next}, nil

	default:
		return nil, fmt.Errorf("checker: unknown edge kind %v", edge.EdgeKind)
	}
}

// ProjectNode builds a checker workflow for exactly one Node edge, isolated
// from whatever follows it: the root is that edge's TaskNode with a bare
// Next marker, not the rest of the program's continuation. The planner uses
// this per Node edge it plans, rather than Project's whole-continuation
// projection, so a workflow of N nodes produces N independent, minimal
// checker requests instead of one that re-describes every downstream node
// N times over.
func ProjectNode(wf *wir.Workflow, funcID, idx int) (*CheckerWorkflow, error) {
	edge, err := wf.EdgeAt(wir.ProgramCounter{FuncID: funcID, Edge: idx})
	if err != nil {
		return nil, err
	}
	if edge.EdgeKind != wir.EdgeNode {
		return nil, fmt.Errorf("checker: ProjectNode: edge %d is not a Node edge", idx)
	}
	task, ok := findTask(wf.Sym.Tasks, edge.Task)
	if !ok {
		return nil, fmt.Errorf("checker: Node references unknown task %q", edge.Task)
	}
	inputs := make([]TaskInput, len(edge.Input))
	for i, in := range edge.Input {
		inputs[i] = TaskInput{Name: in.Name}
	}
	loc := wir.Location("")
	if edge.At != nil {
		loc = *edge.At
	}
	root := &CheckerNode{Kind: NodeTask, Task: &TaskNode{
		Name:            task.Name,
		Package:         task.Package,
		Version:         task.Version.String(),
		ContainerDigest: task.ContainerDigest,
		Inputs:          inputs,
		HasOutput:       task.ReturnType.Kind != wir.KindVoid,
		PlannedLocation: loc,
		Tags:            edge.Metadata.Tags,
	}, Next: &CheckerNode{Kind: NodeNext}}
	return &CheckerWorkflow{Root: root, User: wf.User, WorkflowTags: wf.Metadata.Tags}, nil
}

// ProjectTransfer builds the minimal checker workflow representing a
// planned dataset transfer out of its source domain (SPEC_FULL.md §4.7,
// "a transfer is itself subject to its own policy check"). It uses the
// synthetic task name transferTaskPrefix+dataset so PolicySet (policy.go)
// can recognize and evaluate it with dataset-sharing rules instead of
// task rules.
func ProjectTransfer(dataset string, from, to wir.Location) *CheckerWorkflow {
	root := &CheckerNode{Kind: NodeTask, Task: &TaskNode{
		Name:            transferTaskPrefix + dataset,
		Inputs:          []TaskInput{{Name: dataset, Origin: from}},
		PlannedLocation: to,
	}, Next: &CheckerNode{Kind: NodeNext}}
	return &CheckerWorkflow{Root: root}
}

// ProjectFunc projects function funcID's whole body and registers it under
// handle in cw.Handles, so a Call edge's statically-known target is
// represented once regardless of recursion depth.
func (cw *CheckerWorkflow) ProjectFunc(wf *wir.Workflow, funcID int, handle string) error {
	if cw.Handles == nil {
		cw.Handles = map[string]*CheckerNode{}
	}
	if _, ok := cw.Handles[handle]; ok {
		return nil
	}
	p := &projector{wf: wf, handles: cw.Handles, visiting: map[wir.ProgramCounter]string{}}
	n, err := p.node(funcID, 0)
	if err != nil {
		return err
	}
	cw.Handles[handle] = n
	return nil
}

func findTask(tasks []wir.TaskDef, name string) (wir.TaskDef, bool) {
	for _, t := range tasks {
		if t.Name == name {
			return t, true
		}
	}
	return wir.TaskDef{}, false
}

// CanonicalJSON marshals cw with sorted map keys and Go's stable struct
// field order, giving identical WIR byte-identical output (spec.md §4.9).
// encoding/json already sorts map[string]V keys and preserves struct field
// order, so this is a thin, explicitly-named wrapper rather than a bespoke
// encoder.
func (cw *CheckerWorkflow) CanonicalJSON() ([]byte, error) {
	return json.Marshal(cw)
}

// Hash returns the SHA-256 digest of cw's canonical JSON, used as the
// memoisation key for per-session verdict caching (spec.md §4.7, "The
// planner memoises per-session candidate verdicts").
func (cw *CheckerWorkflow) Hash() (string, error) {
	b, err := cw.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum), nil
}
