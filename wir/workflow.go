package wir

import "fmt"

// ClassDef is a resolved class definition: its fields and the definition
// index of each method's FuncDef.
type ClassDef struct {
	Name    string  `json:"name"`
	Fields  []Param `json:"fields"`
	Methods map[string]int `json:"methods"` // method name -> FuncDef index
}

// FuncDef is a resolved function definition's signature; its body lives in
// Workflow.Funcs keyed by the same definition index.
type FuncDef struct {
	Name       string   `json:"name"`
	Params     []Param  `json:"params"`
	ReturnType DataType `json:"return_type"`

	// ParamVars is the frame-variable index each parameter is bound to,
	// in declaration order. The VM's Call handler uses it to bind popped
	// call arguments into the callee's frame before running its graph.
	ParamVars []int `json:"param_vars,omitempty"`
}

// VarDef is a resolved variable (or parameter) declaration.
type VarDef struct {
	Name string   `json:"name"`
	Type DataType `json:"type"`
}

// SymTable is the flat, index-addressed symbol table shared by a compiled
// Workflow (spec.md §3, "Symbol tables"; spec.md §9, "Cyclic graphs via
// arena + index"). Definition indices are contiguous and never reused
// within a program (spec.md §3 invariants).
type SymTable struct {
	Classes []ClassDef `json:"classes,omitempty"`
	Funcs   []FuncDef  `json:"funcs,omitempty"`
	Vars    []VarDef   `json:"vars,omitempty"`
	Tasks   []TaskDef  `json:"tasks,omitempty"`
}

// DeclareVar appends a new variable definition and returns its definition
// index.
func (s *SymTable) DeclareVar(name string, ty DataType) int {
	s.Vars = append(s.Vars, VarDef{Name: name, Type: ty})
	return len(s.Vars) - 1
}

// DeclareFunc appends a new function signature and returns its definition
// index.
func (s *SymTable) DeclareFunc(name string, params []Param, ret DataType) int {
	s.Funcs = append(s.Funcs, FuncDef{Name: name, Params: params, ReturnType: ret})
	return len(s.Funcs) - 1
}

// SetParamVars records the frame-variable index each of funcID's
// parameters was declared to, in order. Called once the function body's
// scope has assigned those variables (spec.md §3, "Frame"); the VM's Call
// handler needs this mapping to bind arguments into the callee's frame.
func (s *SymTable) SetParamVars(funcID int, vars []int) {
	s.Funcs[funcID].ParamVars = vars
}

// DeclareClass appends a new class definition and returns its definition
// index.
func (s *SymTable) DeclareClass(name string, fields []Param) int {
	s.Classes = append(s.Classes, ClassDef{Name: name, Fields: fields, Methods: map[string]int{}})
	return len(s.Classes) - 1
}

// DeclareTask appends a task definition (injected by the resolver from a
// PackageIndex import) and returns its definition index.
func (s *SymTable) DeclareTask(t TaskDef) int {
	s.Tasks = append(s.Tasks, t)
	return len(s.Tasks) - 1
}

// Frame is a record on the VM's frame stack: the definition index of the
// function being executed, its frame-local variable slots (nil entry means
// declared but not yet assigned), and the ProgramCounter to resume at on
// Return (spec.md §3, "Frame").
type Frame struct {
	Def  int            `json:"def"`
	Vars []*Value       `json:"vars"`
	Ret  ProgramCounter `json:"ret"`
}

// Workflow is the compiled, edge-graph intermediate representation
// (spec.md §3, "WIR Workflow").
type Workflow struct {
	ID   string `json:"id"`
	Sym  SymTable `json:"sym"`
	// Graph is the main edge sequence (the <main> function body).
	Graph []Edge `json:"graph"`
	// Funcs maps a function definition index to its edge sequence.
	Funcs map[int][]Edge `json:"funcs,omitempty"`

	User     string            `json:"user,omitempty"`
	Metadata WorkflowMetadata  `json:"metadata,omitempty"`
}

// NewWorkflow creates an empty workflow whose <main> graph is a single Stop
// edge (spec.md §8, "Empty program compiles to a WIR whose <main> graph is
// a single Stop").
func NewWorkflow(id string) *Workflow {
	return &Workflow{
		ID:    id,
		Graph: []Edge{NewStop()},
		Funcs: map[int][]Edge{},
	}
}

// FuncGraph returns the edge sequence for funcID (MainFunc for <main>).
func (w *Workflow) FuncGraph(funcID int) ([]Edge, bool) {
	if funcID == MainFunc {
		return w.Graph, true
	}
	g, ok := w.Funcs[funcID]
	return g, ok
}

// EdgeAt resolves a ProgramCounter to its Edge.
func (w *Workflow) EdgeAt(pc ProgramCounter) (Edge, error) {
	g, ok := w.FuncGraph(pc.FuncID)
	if !ok {
		return Edge{}, fmt.Errorf("wir: unknown function %d", pc.FuncID)
	}
	if pc.Edge < 0 || pc.Edge >= len(g) {
		return Edge{}, fmt.Errorf("wir: edge index %d out of range for function %d (len=%d)", pc.Edge, pc.FuncID, len(g))
	}
	return g[pc.Edge], nil
}

// ValidateEdgeIndices checks the WIR invariant from spec.md §3: every
// edge's next/true_next/false_next/merge/branches/cond/body is either a
// valid index in the same function graph, or the out-of-range terminal
// sentinel (NoEdge/negative). It is exercised by spec.md §8's testable
// property #3.
func (w *Workflow) ValidateEdgeIndices() error {
	check := func(funcID int, g []Edge) error {
		for i, e := range g {
			for _, succ := range e.Successors() {
				if succ < 0 || succ >= len(g) {
					return fmt.Errorf("wir: function %d edge %d: successor %d out of range (len=%d)", funcID, i, succ, len(g))
				}
			}
			if (e.EdgeKind == EdgeBranch || e.EdgeKind == EdgeParallel) && e.Merge != NoEdge {
				if e.Merge < 0 || e.Merge >= len(g) {
					return fmt.Errorf("wir: function %d edge %d: merge %d out of range (len=%d)", funcID, i, e.Merge, len(g))
				}
			}
			if e.EdgeKind == EdgeLoop {
				if e.Body < 0 || e.Body >= len(g) {
					return fmt.Errorf("wir: function %d edge %d: loop body %d out of range (len=%d)", funcID, i, e.Body, len(g))
				}
			}
		}
		return nil
	}
	if err := check(MainFunc, w.Graph); err != nil {
		return err
	}
	for id, g := range w.Funcs {
		if err := check(id, g); err != nil {
			return err
		}
	}
	return nil
}
