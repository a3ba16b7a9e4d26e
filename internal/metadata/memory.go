package metadata

import (
	"context"
	"sync"
)

// MemoryStore keeps projections in a map. Used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Projection
	upserts []string
	err     error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Projection{}}
}

// FailWith makes every following Upsert return err. Nil clears it.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Upsert(_ context.Context, p Projection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, p.Key)
	if m.err != nil {
		return m.err
	}
	m.records[p.Key] = p
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Projection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[key]
	if !ok {
		return Projection{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// Upserts returns the keys of every attempted upsert, in call order.
func (m *MemoryStore) Upserts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.upserts...)
}

func (m *MemoryStore) Close() error { return nil }
