package drv

// CreateSessionRequest is empty: a new session belongs to whichever caller
// dials CreateSession (spec.md §6: "CreateSession() -> {uuid}").
type CreateSessionRequest struct{}

// CreateSessionResponse carries the freshly minted session id.
type CreateSessionResponse struct {
	UUID string `json:"uuid"`
}

// CheckRequest carries a compiled workflow's wire-format JSON, already
// produced by a client-side compiler.Compile or snippet.Compile call
// (spec.md §6, "Workflow wire format: JSON serialization of the WIR").
type CheckRequest struct {
	WorkflowJSON []byte `json:"workflow_json"`
}

// CheckResponse is the dry-run authorization verdict (spec.md §6:
// "Check(workflow_json) -> {verdict, who?, reasons[], profile?}"). Who
// names the denying domain when Verdict is false; Profile is reserved for
// a future resource-estimate extension and is always omitted today.
type CheckResponse struct {
	Verdict bool     `json:"verdict"`
	Who     string   `json:"who,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
	Profile []byte   `json:"profile,omitempty"`
}

// ExecuteRequest runs a compiled workflow in the session named by UUID,
// which CreateSession must already have minted; an unknown UUID ends the
// stream with an error chunk.
type ExecuteRequest struct {
	UUID         string `json:"uuid"`
	WorkflowJSON []byte `json:"workflow_json"`
}

// ExecuteChunk is one frame of Execute's response stream (spec.md §6:
// "Execute(uuid, workflow_json) -> stream of {close, debug?, stdout?,
// stderr?, value?}"). Close marks the final chunk; Value carries the
// run's returned wir.Value as JSON once Close is true.
type ExecuteChunk struct {
	Close  bool   `json:"close"`
	Debug  string `json:"debug,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Value  []byte `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}
