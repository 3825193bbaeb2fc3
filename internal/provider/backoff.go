package provider

import (
	"context"
	"time"
)

// RetryTransport runs fn with bounded exponential backoff. Only transient
// transport failures should be retried: fn returns (retriable=false) for
// protocol-level rejections (bad code, bad signature), which are never
// retried. Respects ctx cancellation between attempts.
func RetryTransport(ctx context.Context, attempts int, base time.Duration, fn func() (retriable bool, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	var err error
	var retriable bool
	delay := base
	for i := 0; i < attempts; i++ {
		retriable, err = fn()
		if err == nil || !retriable {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
