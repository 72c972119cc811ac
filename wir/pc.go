package wir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MainFunc is the distinguished function id for a workflow's entry graph
// (spec.md §3, "Program counter").
const MainFunc = -1

// ProgramCounter is a (function-id, edge-index) pair identifying the next
// edge to execute. FuncID is MainFunc for the <main> graph, or a
// non-negative index into Workflow.Funcs otherwise. Ordering is total only
// within the same function (spec.md §3).
type ProgramCounter struct {
	FuncID int `json:"func"`
	Edge   int `json:"edge"`
}

// Main builds the program counter for edge index idx in the <main> graph.
func Main(idx int) ProgramCounter { return ProgramCounter{FuncID: MainFunc, Edge: idx} }

// InFunc builds the program counter for edge index idx in function funcID.
func InFunc(funcID, idx int) ProgramCounter { return ProgramCounter{FuncID: funcID, Edge: idx} }

// IsMain reports whether pc addresses the <main> graph.
func (pc ProgramCounter) IsMain() bool { return pc.FuncID == MainFunc }

// String renders pc as "<main>:N" or "N:M", matching the wire format in
// spec.md §6.
func (pc ProgramCounter) String() string {
	if pc.IsMain() {
		return fmt.Sprintf("<main>:%d", pc.Edge)
	}
	return fmt.Sprintf("%d:%d", pc.FuncID, pc.Edge)
}

// ParseProgramCounter parses the "<main>:N" / "N:M" wire format produced by
// String, round-tripping exactly (spec.md §8, "ProgramCounter::from_str ∘
// to_string = id").
func ParseProgramCounter(s string) (ProgramCounter, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ProgramCounter{}, fmt.Errorf("wir: malformed program counter %q", s)
	}
	edge, err := strconv.Atoi(parts[1])
	if err != nil {
		return ProgramCounter{}, fmt.Errorf("wir: malformed program counter %q: %w", s, err)
	}
	if parts[0] == "<main>" {
		return Main(edge), nil
	}
	funcID, err := strconv.Atoi(parts[0])
	if err != nil {
		return ProgramCounter{}, fmt.Errorf("wir: malformed program counter %q: %w", s, err)
	}
	return InFunc(funcID, edge), nil
}

// MarshalJSON encodes pc as the two-element tuple described in spec.md §6:
// ["<main>", N] or [funcID, N].
func (pc ProgramCounter) MarshalJSON() ([]byte, error) {
	var funcField interface{}
	if pc.IsMain() {
		funcField = "<main>"
	} else {
		funcField = pc.FuncID
	}
	return json.Marshal([2]interface{}{funcField, pc.Edge})
}

// UnmarshalJSON decodes the tuple form produced by MarshalJSON.
func (pc *ProgramCounter) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("wir: decoding program counter: %w", err)
	}
	var asString string
	if err := json.Unmarshal(raw[0], &asString); err == nil {
		if asString != "<main>" {
			return fmt.Errorf("wir: unexpected function id string %q", asString)
		}
		pc.FuncID = MainFunc
	} else {
		var asInt int
		if err := json.Unmarshal(raw[0], &asInt); err != nil {
			return fmt.Errorf("wir: function id is neither \"<main>\" nor an integer: %w", err)
		}
		pc.FuncID = asInt
	}
	return json.Unmarshal(raw[1], &pc.Edge)
}
