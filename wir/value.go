package wir

// Value is a runtime datum flowing through the VM's value stack and stored
// in frame variables. Values come in shallow (unresolved data references)
// and full (resolved) variants; both carry their DataType (spec.md §3,
// "Value").
//
// A shallow Value holding KindData or KindIntermediateResult carries only a
// Ref (the dataset/result name); Resolve fills in Payload once the VM has
// staged the underlying bytes or dereferenced the literal.
type Value struct {
	Type DataType `json:"type"`

	// Ref names a Data or IntermediateResult reference. Empty for scalar
	// and array values.
	Ref string `json:"ref,omitempty"`

	// Origin is the location a Data/IntermediateResult reference currently
	// resolves at, once known. Empty in a shallow Value.
	Origin Location `json:"origin,omitempty"`

	// Payload holds the resolved scalar/array/class value. Nil in a
	// shallow Value referencing Data/IntermediateResult; always set for
	// Bool/Int/Real/String/Array/Class literals.
	Payload interface{} `json:"payload,omitempty"`
}

// IsShallow reports whether v is a Data/IntermediateResult reference that
// has not yet been resolved to a concrete location and payload.
func (v Value) IsShallow() bool {
	return (v.Type.Kind == KindData || v.Type.Kind == KindIntermediateResult) && v.Origin == ""
}

// Resolve returns a copy of v with Origin and Payload filled in. It is an
// error (caller's responsibility) to resolve a value that is not a
// Data/IntermediateResult reference.
func (v Value) Resolve(origin Location, payload interface{}) Value {
	resolved := v
	resolved.Origin = origin
	resolved.Payload = payload
	return resolved
}

// VoidValue is the canonical value of an expression with no result.
func VoidValue() Value { return Value{Type: Void()} }

// BoolValue, IntValue, RealValue, StringValue construct full scalar values.
func BoolValue(b bool) Value     { return Value{Type: Bool(), Payload: b} }
func IntValue(i int64) Value     { return Value{Type: Int(), Payload: i} }
func RealValue(f float64) Value  { return Value{Type: Real(), Payload: f} }
func StringValue(s string) Value { return Value{Type: Str(), Payload: s} }

// DataRef constructs a shallow Value referencing a persistent dataset by
// name.
func DataRef(name string) Value { return Value{Type: Data(), Ref: name} }

// IntermediateRef constructs a shallow Value referencing a session-scoped
// intermediate result by name.
func IntermediateRef(name string) Value { return Value{Type: IR(), Ref: name} }
