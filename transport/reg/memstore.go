package reg

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/brane-run/brane/wir"
)

// MemStore is an in-memory Store, used by tests and by a node running
// without a configured data root. A persistence-backed Store would instead
// read/write under the worker's data directory (spec.md §6, "Persisted
// state": one subdirectory per dataset, containing data.yml and payload).
type MemStore struct {
	mu    sync.RWMutex
	meta  map[string]wir.Dataset
	bytes map[string][]byte
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{meta: map[string]wir.Dataset{}, bytes: map[string][]byte{}}
}

// Seed registers a dataset with its payload, for tests and fixture setup.
func (m *MemStore) Seed(d wir.Dataset, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[d.Name] = d
	m.bytes[d.Name] = payload
}

func (m *MemStore) Info(name string) (wir.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.meta[name]
	return d, ok
}

func (m *MemStore) Open(name string) (io.ReadCloser, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.meta[name]
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(m.bytes[name])), d.Layout.Kind == wir.LayoutDirectory, nil
}

func (m *MemStore) Put(name string, kind wir.LayoutKind, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reg: reading payload for %q: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[name] = wir.Dataset{Name: name, Created: time.Now(), Layout: wir.Layout{Kind: kind}}
	m.bytes[name] = data
	return nil
}
