package api

import (
	"fmt"
	"sort"
	"sync"

	"github.com/brane-run/brane/wir"
)

// PackageEntry is one published version of a package: the task and class
// definitions an `import pkg@version` statement injects into a program
// (spec.md §4.2, §3 "Task definition").
type PackageEntry struct {
	Name    string        `json:"name"`
	Version wir.Version   `json:"version"`
	Tasks   []wir.TaskDef `json:"tasks"`
	Classes []wir.ClassDef `json:"classes"`
}

// PackageStore is the central package index: an in-memory map of published
// package versions, guarded by a single RWMutex (spec.md §4.2, "Imports
// inject task/class definitions from a PackageIndex collaborator").
// PackageStore implements resolve.PackageIndex directly, so the same store
// instance backs both the `GET /packages/{name}/{version}` HTTP surface and
// the compiler's in-process Resolve collaborator.
type PackageStore struct {
	mu       sync.RWMutex
	versions map[string][]PackageEntry // name -> versions, ascending
}

// NewPackageStore constructs an empty PackageStore.
func NewPackageStore() *PackageStore {
	return &PackageStore{versions: map[string][]PackageEntry{}}
}

// Publish records a new version of a package. Re-publishing an existing
// (name, version) pair overwrites it.
func (s *PackageStore) Publish(e PackageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.versions[e.Name]
	for i, existing := range list {
		if existing.Version.Compare(e.Version) == 0 {
			list[i] = e
			return
		}
	}
	list = append(list, e)
	sort.Slice(list, func(i, j int) bool { return list[i].Version.Compare(list[j].Version) < 0 })
	s.versions[e.Name] = list
}

// lookup finds pkg@version, resolving the Latest sentinel to the
// highest concrete version published.
func (s *PackageStore) lookup(pkg string, version wir.Version) (PackageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[pkg]
	if len(list) == 0 {
		return PackageEntry{}, false
	}
	if version.Latest {
		return list[len(list)-1], true
	}
	for _, e := range list {
		if e.Version.Compare(version) == 0 {
			return e, true
		}
	}
	return PackageEntry{}, false
}

// Resolve implements resolve.PackageIndex.
func (s *PackageStore) Resolve(pkg string, version wir.Version) ([]wir.TaskDef, []wir.ClassDef, error) {
	e, ok := s.lookup(pkg, version)
	if !ok {
		return nil, nil, fmt.Errorf("api: unknown package %s@%s", pkg, version)
	}
	return e.Tasks, e.Classes, nil
}
