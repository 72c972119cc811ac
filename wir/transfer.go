package wir

// Transfer is a planned dataset/intermediate-result movement the planner
// inserts ahead of a Node edge when none of the task's candidate locations
// already holds an input locally (spec.md §4.7, "insert a planned transfer
// for the missing inputs"; spec.md §8 property 4, "every input dataset of
// Node is... the sink of a transfer edge preceding Node"). A transfer is
// itself subject to its own policy check at From, using the same checker
// protocol as a Node (spec.md §4.9).
type Transfer struct {
	// Var is the frame-variable slot holding the Data/IntermediateResult
	// reference being moved.
	Var int `json:"var"`
	// Dataset is the reference name, used to address the checker workflow
	// and the registry's transfer API.
	Dataset string `json:"dataset"`
	From    Location `json:"from"`
	To      Location `json:"to"`
}
