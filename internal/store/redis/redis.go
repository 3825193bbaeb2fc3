// Package redis is the Redis store adapter. Optimistic concurrency is
// implemented with WATCH/MULTI: a concurrent write between read and EXEC
// aborts the transaction and surfaces as store.ErrConcurrency.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/crossjohn/internal/store"
)

type KV struct {
	c      *rdb.Client
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func New(opts Options) *KV {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "crossjohn"
	}
	return &KV{
		c:      rdb.NewClient(&rdb.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}),
		prefix: prefix,
	}
}

// envelope is the stored wire shape: version travels with the value so the
// CAS in UpdateIfMatch can bump it atomically.
type envelope struct {
	Version   int64     `json:"v"`
	CreatedAt time.Time `json:"c"`
	Value     []byte    `json:"d"`
}

func (k *KV) key(key store.Key) string {
	return k.prefix + ":" + key.Partition + ":" + key.Row
}

func decode(key store.Key, raw []byte) (*store.Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &store.Record{Key: key, Value: env.Value, Version: env.Version, CreatedAt: env.CreatedAt}, nil
}

func (k *KV) CreateOrGet(ctx context.Context, key store.Key, initial []byte) (bool, *store.Record, error) {
	env := envelope{Version: 1, CreatedAt: time.Now().UTC(), Value: initial}
	raw, err := json.Marshal(env)
	if err != nil {
		return false, nil, err
	}
	ok, err := k.c.SetNX(ctx, k.key(key), raw, 0).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, &store.Record{Key: key, Value: initial, Version: 1, CreatedAt: env.CreatedAt}, nil
	}
	rec, err := k.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	return false, rec, nil
}

func (k *KV) Get(ctx context.Context, key store.Key) (*store.Record, error) {
	raw, err := k.c.Get(ctx, k.key(key)).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(key, raw)
}

func (k *KV) UpdateIfMatch(ctx context.Context, key store.Key, mutate store.Mutator) (*store.Record, error) {
	rkey := k.key(key)
	var out *store.Record

	err := k.c.Watch(ctx, func(tx *rdb.Tx) error {
		raw, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, rdb.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decode(key, raw)
		if err != nil {
			return err
		}
		next, err := mutate(rec.Value)
		if err != nil {
			return err
		}
		env := envelope{Version: rec.Version + 1, CreatedAt: rec.CreatedAt, Value: next}
		encoded, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
			pipe.Set(ctx, rkey, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = &store.Record{Key: key, Value: next, Version: env.Version, CreatedAt: env.CreatedAt}
		return nil
	}, rkey)

	if errors.Is(err, rdb.TxFailedErr) {
		return nil, store.ErrConcurrency
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (k *KV) Delete(ctx context.Context, key store.Key) error {
	n, err := k.c.Del(ctx, k.key(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (k *KV) Ping(ctx context.Context) error { return k.c.Ping(ctx).Err() }
func (k *KV) Close() error                   { return k.c.Close() }
