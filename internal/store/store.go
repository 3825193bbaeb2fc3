// Package store defines the key-value contract the broker consumes for
// persisting sessions, accounts and credential mappings.
//
// Records are opaque bytes keyed by a (partition, row) pair with a version
// used for optimistic concurrency. The broker never assumes multi-key
// transactions: cross-entity consistency is achieved by write ordering and
// by tolerating partially applied states as retriable.
//
// Adapters:
//   - memory (dev/tests)
//   - redis  (go-redis, WATCH-based compare-and-swap)
//   - pg     (pgx, version-column compare-and-swap)
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConcurrency: the record changed between read and write. The caller
	// re-reads and decides; the write was not applied.
	ErrConcurrency = errors.New("store: concurrency conflict")
)

// Key addresses one record.
type Key struct {
	Partition string
	Row       string
}

func (k Key) String() string { return k.Partition + "/" + k.Row }

// Record is one stored entity. Version increases by one on every applied
// update; Value is opaque to the store.
type Record struct {
	Key       Key
	Value     []byte
	Version   int64
	CreatedAt time.Time
}

// Mutator transforms the current value into the next one. Returning an
// error aborts the update without writing; the error is returned verbatim
// so callers can use their own sentinels through UpdateIfMatch.
type Mutator func(current []byte) ([]byte, error)

// KV is the backing store contract.
type KV interface {
	// CreateOrGet returns the existing record for key, or atomically
	// creates it with the initial value. isNew reports which happened.
	CreateOrGet(ctx context.Context, key Key, initial []byte) (isNew bool, rec *Record, err error)

	// Get reads one record. Returns ErrNotFound when absent.
	Get(ctx context.Context, key Key) (*Record, error)

	// UpdateIfMatch applies mutate under a compare-and-swap on the record
	// version: the write happens only if no concurrent writer got in
	// between. Returns ErrNotFound, ErrConcurrency, or the mutator's error.
	UpdateIfMatch(ctx context.Context, key Key, mutate Mutator) (*Record, error)

	// Delete removes one record. Returns ErrNotFound when absent.
	Delete(ctx context.Context, key Key) error

	Ping(ctx context.Context) error
	Close() error
}
