package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d denied", i+1)
		}
		if res.Remaining != int64(2-i) {
			t.Fatalf("hit %d remaining=%d", i+1, res.Remaining)
		}
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("fourth hit: %+v", res)
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("retry after: %v", res.RetryAfter)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Hour)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("first a denied")
	}
	if res, _ := l.Allow(ctx, "a"); res.Allowed {
		t.Fatal("second a allowed")
	}
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Fatal("b shares a's window")
	}
}
