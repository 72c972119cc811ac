package wir

// ImplKind discriminates a TaskDef's implementation (spec.md §3, "Task
// definition").
type ImplKind int

const (
	ImplContainer ImplKind = iota
	ImplInlineDSL
	ImplCWL
)

func (k ImplKind) String() string {
	switch k {
	case ImplContainer:
		return "container"
	case ImplInlineDSL:
		return "inline"
	case ImplCWL:
		return "cwl"
	default:
		return "unknown"
	}
}

// CaptureMode selects how a container implementation's result is captured.
type CaptureMode int

const (
	CaptureStdout CaptureMode = iota
	CaptureMarkedFile
	CaptureNone
)

// Implementation is the tagged-union payload of a TaskDef, one variant per
// ImplKind.
type Implementation struct {
	Kind ImplKind `json:"kind"`

	// Container fields.
	Image      string      `json:"image,omitempty"`
	Entrypoint string      `json:"entrypoint,omitempty"`
	Args       []string    `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Capture    CaptureMode `json:"capture,omitempty"`

	// InlineDSL fields.
	Source string `json:"source,omitempty"`

	// CWL fields.
	CWLDocument string `json:"cwl_document,omitempty"`
}

// Param is one named, typed task input parameter.
type Param struct {
	Name string   `json:"name"`
	Type DataType `json:"type"`
}

// TaskDef is the compiled description of a callable task (spec.md §3,
// "Task definition").
type TaskDef struct {
	Name                 string         `json:"name"`
	Package              string         `json:"package"`
	Version              Version        `json:"version"`
	Input                []Param        `json:"input"`
	ReturnType           DataType       `json:"return_type"`
	ContainerDigest      string         `json:"container_digest,omitempty"`
	RequiredCapabilities []string       `json:"required_capabilities,omitempty"`
	Implementation       Implementation `json:"implementation"`

	// AllowedLocations restricts where the task may be planned, as declared
	// by the package (not the same as an `on`-attribute restriction, which
	// is call-site scoped; the planner intersects both — spec.md §4.7).
	AllowedLocations []Location `json:"allowed_locations,omitempty"`
}
