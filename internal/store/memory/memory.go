// Package memory is the in-process store adapter, used in development and
// tests. CAS semantics match the redis/pg adapters.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/crossjohn/internal/store"
)

type KV struct {
	mu   sync.Mutex
	recs map[store.Key]*store.Record
}

func New() *KV {
	return &KV{recs: make(map[store.Key]*store.Record)}
}

func clone(r *store.Record) *store.Record {
	cp := *r
	cp.Value = append([]byte(nil), r.Value...)
	return &cp
}

func (m *KV) CreateOrGet(_ context.Context, key store.Key, initial []byte) (bool, *store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[key]; ok {
		return false, clone(rec), nil
	}
	rec := &store.Record{
		Key:       key,
		Value:     append([]byte(nil), initial...),
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	m.recs[key] = rec
	return true, clone(rec), nil
}

func (m *KV) Get(_ context.Context, key store.Key) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(rec), nil
}

func (m *KV) UpdateIfMatch(_ context.Context, key store.Key, mutate store.Mutator) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	// The lock makes the read-mutate-write atomic here; ErrConcurrency is
	// still possible in the networked adapters.
	next, err := mutate(append([]byte(nil), rec.Value...))
	if err != nil {
		return nil, err
	}
	rec.Value = next
	rec.Version++
	return clone(rec), nil
}

func (m *KV) Delete(_ context.Context, key store.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[key]; !ok {
		return store.ErrNotFound
	}
	delete(m.recs, key)
	return nil
}

func (m *KV) Ping(context.Context) error { return nil }
func (m *KV) Close() error               { return nil }
