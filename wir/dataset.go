package wir

import "time"

// LayoutKind discriminates a Dataset's on-disk shape.
type LayoutKind int

const (
	LayoutFile LayoutKind = iota
	LayoutDirectory
)

// Layout describes where on disk a dataset's payload lives, relative to its
// location's data root (spec.md §3, "Dataset descriptor"; spec.md §6,
// "Persisted state").
type Layout struct {
	Kind LayoutKind `json:"kind"`
	Path string     `json:"path"`
}

// Dataset is the descriptor for a named, persistent or intermediate data
// reference (spec.md §3, "Dataset descriptor"). Availability is a set of
// locations; the same Name may exist at multiple sites with independent
// Layouts (captured by Locations mapping to per-location layout metadata in
// the registry store, not duplicated here).
type Dataset struct {
	Name        string     `json:"name"`
	Owners      []string   `json:"owners,omitempty"`
	Description string     `json:"description,omitempty"`
	Created     time.Time  `json:"created"`
	Locations   []Location `json:"locations"`
	Layout      Layout     `json:"layout"`
}

// HasLocation reports whether the dataset is available at loc.
func (d Dataset) HasLocation(loc Location) bool {
	for _, l := range d.Locations {
		if l == loc {
			return true
		}
	}
	return false
}
