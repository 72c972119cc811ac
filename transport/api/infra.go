package api

import (
	"sort"
	"sync"

	"github.com/brane-run/brane/wir"
)

// Registration is one location's registered addresses, served at
// `GET /infra/registries/{loc}` and `GET /infra/capabilities/{loc}`
// (SPEC_FULL.md §4.7).
type Registration struct {
	Location        wir.Location `json:"location"`
	RegistryAddress string       `json:"registry_address"`
	CheckerAddress  string       `json:"checker_address"`
	JobAddress      string       `json:"job_address"`
}

// InfraStore is the central registry of known locations, keyed by location
// identifier and guarded by a single RWMutex (spec.md §5: "location cache:
// single sync.RWMutex-guarded map").
type InfraStore struct {
	mu   sync.RWMutex
	locs map[wir.Location]Registration
}

// NewInfraStore constructs an empty InfraStore.
func NewInfraStore() *InfraStore {
	return &InfraStore{locs: map[wir.Location]Registration{}}
}

// Register adds or replaces a location's registration.
func (s *InfraStore) Register(r Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locs[r.Location] = r
}

// Get looks up a single location's registration.
func (s *InfraStore) Get(loc wir.Location) (Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.locs[loc]
	return r, ok
}

// List returns every registered location, ordered by identifier.
func (s *InfraStore) List() []Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Registration, 0, len(s.locs))
	for _, r := range s.locs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// DatasetStore is the central dataset catalog: name -> known locations and
// metadata, backing `GET /data/info` and `GET /data/info/{name}` (spec.md
// §4.10).
type DatasetStore struct {
	mu   sync.RWMutex
	byName map[string]wir.Dataset
}

// NewDatasetStore constructs an empty DatasetStore.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{byName: map[string]wir.Dataset{}}
}

// Put records or replaces a dataset's catalog entry.
func (s *DatasetStore) Put(d wir.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[d.Name] = d
}

// Get looks up a dataset by name.
func (s *DatasetStore) Get(name string) (wir.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byName[name]
	return d, ok
}

// AddLocation records loc as an additional location for an existing
// dataset, e.g. after a transfer completes (spec.md §4.10).
func (s *DatasetStore) AddLocation(name string, loc wir.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byName[name]
	if !ok {
		return
	}
	for _, existing := range d.Locations {
		if existing == loc {
			return
		}
	}
	d.Locations = append(d.Locations, loc)
	s.byName[name] = d
}
