package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dropDatabas3/crossjohn/internal/provider"
)

type stubProvider struct{ method string }

func (s *stubProvider) Method() string { return s.method }

func TestGet_UnknownMethod(t *testing.T) {
	r := New(nil)
	_, err := r.Get(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("want ErrUnknownMethod, got %v", err)
	}
}

func TestGet_ConstructsOnceUnderConcurrency(t *testing.T) {
	var calls int32
	ready := make(chan struct{})
	r := New(map[string]Factory{
		"google": func(context.Context) (provider.Provider, error) {
			atomic.AddInt32(&calls, 1)
			<-ready // hold every queued caller in the same flight
			return &stubProvider{method: "google"}, nil
		},
	})

	const n = 16
	var wg sync.WaitGroup
	results := make([]provider.Provider, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Get(context.Background(), "google")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = p
		}()
	}
	close(ready)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("factory called %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("callers got different instances")
		}
	}
}

func TestGet_FailureNotCached(t *testing.T) {
	var calls int32
	r := New(map[string]Factory{
		"flaky": func(context.Context) (provider.Provider, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, fmt.Errorf("discovery down")
			}
			return &stubProvider{method: "flaky"}, nil
		},
	})
	ctx := context.Background()

	_, err := r.Get(ctx, "flaky")
	var ce *ConstructionError
	if !errors.As(err, &ce) || ce.Method != "flaky" {
		t.Fatalf("want ConstructionError for flaky, got %v", err)
	}

	// The failure healed upstream; the next Get retries and succeeds.
	p, err := r.Get(ctx, "flaky")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if p.Method() != "flaky" {
		t.Fatalf("method: %q", p.Method())
	}
	if calls != 2 {
		t.Fatalf("factory calls: %d", calls)
	}
}

func TestGet_MethodIsolation(t *testing.T) {
	r := New(map[string]Factory{
		"ok": func(context.Context) (provider.Provider, error) {
			return &stubProvider{method: "ok"}, nil
		},
		"broken": func(context.Context) (provider.Provider, error) {
			return nil, fmt.Errorf("missing certificate")
		},
	})
	ctx := context.Background()

	if _, err := r.Get(ctx, "broken"); err == nil {
		t.Fatal("broken method constructed")
	}
	if _, err := r.Get(ctx, "ok"); err != nil {
		t.Fatalf("healthy method affected: %v", err)
	}
}

func TestEvict_ForcesRebuild(t *testing.T) {
	var calls int32
	r := New(map[string]Factory{
		"m": func(context.Context) (provider.Provider, error) {
			atomic.AddInt32(&calls, 1)
			return &stubProvider{method: "m"}, nil
		},
	})
	ctx := context.Background()

	if _, err := r.Get(ctx, "m"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(ctx, "m"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("cached Get rebuilt: calls=%d", calls)
	}

	r.Evict("m")
	if _, err := r.Get(ctx, "m"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("evicted Get did not rebuild: calls=%d", calls)
	}
}

func TestMethodsAndKnown(t *testing.T) {
	r := New(map[string]Factory{
		"a": func(context.Context) (provider.Provider, error) { return &stubProvider{method: "a"}, nil },
		"b": func(context.Context) (provider.Provider, error) { return &stubProvider{method: "b"}, nil },
	})
	if len(r.Methods()) != 2 {
		t.Fatalf("Methods: %v", r.Methods())
	}
	if !r.Known("a") || r.Known("z") {
		t.Fatal("Known mismatch")
	}
}
