// Package rate limita los endpoints que tocan credenciales: fixed window
// por key (la IP del cliente). El contador vive en redis cuando el broker
// corre con más de una réplica, así el límite es global.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result es la decisión para un hit.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

// Limiter decide si un hit de key entra en la ventana actual.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits con INCR sobre una key que embebe el inicio de
// la ventana: expira sola y todas las réplicas comparten el mismo bucket.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) bucket(key string, start time.Time) string {
	return fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	start := now.Truncate(l.window)
	bucket := l.bucket(key, start)

	hits, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return Result{}, err
	}
	if hits == 1 {
		// Primer hit del bucket: fija la expiración una sola vez.
		_ = l.client.Expire(ctx, bucket, l.window).Err()
	}

	ttl := start.Add(l.window).Sub(now)
	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   max(l.max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
