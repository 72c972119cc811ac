package wir

// Tag is one `owner.tag` metadata annotation attached to a Node edge by the
// metadata pass (spec.md §4.4), carrying the checker-protocol signature
// fields described in spec.md §4.9.
type Tag struct {
	Owner          string `json:"owner"`
	Tag            string `json:"tag"`
	Signature      string `json:"signature,omitempty"`
	SignatureValid *bool  `json:"signature_valid,omitempty"`
}

// Metadata is the set of tags attached to a Node edge, plus the
// checker-filled signature-validity slot shared by the whole annotation.
type Metadata struct {
	Tags []Tag `json:"tags,omitempty"`
}

// WorkflowMetadata holds workflow-level tags (`wf_tag`/`wf_metadata`
// attributes) and the checker's signature-validity verdict for the whole
// workflow (spec.md §3 invariants: "metadata.signature_valid starts None
// and is filled by the checker").
type WorkflowMetadata struct {
	Tags           []Tag `json:"tags,omitempty"`
	SignatureValid *bool `json:"signature_valid,omitempty"`
}
