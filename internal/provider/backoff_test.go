package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryTransport_NonRetriableStopsImmediately(t *testing.T) {
	calls := 0
	rejection := errors.New("invalid_grant")
	err := RetryTransport(context.Background(), 5, time.Millisecond, func() (bool, error) {
		calls++
		return false, rejection
	})
	if !errors.Is(err, rejection) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryTransport_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryTransport(context.Background(), 5, time.Millisecond, func() (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("connection refused")
		}
		return false, nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryTransport_ExhaustsAttempts(t *testing.T) {
	calls := 0
	transport := errors.New("timeout")
	err := RetryTransport(context.Background(), 3, time.Millisecond, func() (bool, error) {
		calls++
		return true, transport
	})
	if !errors.Is(err, transport) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryTransport_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryTransport(ctx, 3, time.Minute, func() (bool, error) {
		return true, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
