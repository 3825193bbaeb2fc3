// Package pg is the Postgres store adapter (pgx). One table keyed by
// (partition, row) with a version column; UpdateIfMatch is an UPDATE
// guarded by WHERE version = $expected.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/crossjohn/internal/store"
)

type KV struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*KV, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &KV{pool: pool}, nil
}

// NewWithPool wraps an existing pool (tests, shared wiring).
func NewWithPool(pool *pgxpool.Pool) *KV { return &KV{pool: pool} }

const uniqueViolation = "23505"

func (k *KV) CreateOrGet(ctx context.Context, key store.Key, initial []byte) (bool, *store.Record, error) {
	now := time.Now().UTC()
	_, err := k.pool.Exec(ctx,
		`INSERT INTO broker_record (partition, row_key, value, version, created_at)
		 VALUES ($1, $2, $3, 1, $4)`,
		key.Partition, key.Row, initial, now)
	if err == nil {
		return true, &store.Record{Key: key, Value: initial, Version: 1, CreatedAt: now}, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false, nil, err
	}
	rec, err := k.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	return false, rec, nil
}

func (k *KV) Get(ctx context.Context, key store.Key) (*store.Record, error) {
	rec := &store.Record{Key: key}
	err := k.pool.QueryRow(ctx,
		`SELECT value, version, created_at FROM broker_record WHERE partition=$1 AND row_key=$2`,
		key.Partition, key.Row).Scan(&rec.Value, &rec.Version, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (k *KV) UpdateIfMatch(ctx context.Context, key store.Key, mutate store.Mutator) (*store.Record, error) {
	rec, err := k.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	next, err := mutate(rec.Value)
	if err != nil {
		return nil, err
	}
	tag, err := k.pool.Exec(ctx,
		`UPDATE broker_record SET value=$1, version=version+1
		 WHERE partition=$2 AND row_key=$3 AND version=$4`,
		next, key.Partition, key.Row, rec.Version)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Row gone or version moved under us; tell them apart for the caller.
		if _, gerr := k.Get(ctx, key); errors.Is(gerr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrConcurrency
	}
	return &store.Record{Key: key, Value: next, Version: rec.Version + 1, CreatedAt: rec.CreatedAt}, nil
}

func (k *KV) Delete(ctx context.Context, key store.Key) error {
	tag, err := k.pool.Exec(ctx,
		`DELETE FROM broker_record WHERE partition=$1 AND row_key=$2`,
		key.Partition, key.Row)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (k *KV) Ping(ctx context.Context) error { return k.pool.Ping(ctx) }

func (k *KV) Close() error {
	k.pool.Close()
	return nil
}
