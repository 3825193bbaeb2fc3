// Package registry owns the lifecycle of credential providers: lazy
// construction on first use, deduplicated under concurrency, cached only on
// success. One misconfigured method never affects another.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/crossjohn/internal/metrics"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
)

// ErrUnknownMethod: the method name is not configured at all. Distinct from
// a configured method whose construction fails.
var ErrUnknownMethod = errors.New("registry: unknown credential method")

// ConstructionError wraps a provider factory failure. Construction errors
// are not cached: the next request retries, so a transient failure (issuer
// discovery down) heals without restarting the broker.
type ConstructionError struct {
	Method string
	Err    error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("registry: construct provider %q: %v", e.Method, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Factory builds one provider. Called at most once per concurrent wave of
// requests for the same method.
type Factory func(ctx context.Context) (provider.Provider, error)

// Registry resolves method names to constructed providers.
type Registry struct {
	factories map[string]Factory

	mu    sync.RWMutex
	ready map[string]provider.Provider

	group singleflight.Group
}

func New(factories map[string]Factory) *Registry {
	return &Registry{
		factories: factories,
		ready:     make(map[string]provider.Provider, len(factories)),
	}
}

// Methods returns the configured method names, constructed or not.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.factories))
	for m := range r.factories {
		out = append(out, m)
	}
	return out
}

// Known reports whether the method is configured.
func (r *Registry) Known(method string) bool {
	_, ok := r.factories[method]
	return ok
}

// Get returns the provider for method, constructing it on first use.
// Concurrent callers for the same method share a single construction; a
// successful result is cached for the registry's lifetime, a failed one is
// not.
func (r *Registry) Get(ctx context.Context, method string) (provider.Provider, error) {
	r.mu.RLock()
	p, ok := r.ready[method]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	factory, ok := r.factories[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	v, err, _ := r.group.Do(method, func() (any, error) {
		// Re-check under the flight: a previous winner may have populated
		// the cache while we queued.
		r.mu.RLock()
		cached, ok := r.ready[method]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		built, err := factory(ctx)
		if err != nil {
			metrics.ProviderConstructions.WithLabelValues(method, "error").Inc()
			logger.From(ctx).With(
				logger.Layer("registry"),
				logger.Provider(method),
			).Warn("provider construction failed", logger.Err(err))
			return nil, &ConstructionError{Method: method, Err: err}
		}

		r.mu.Lock()
		r.ready[method] = built
		r.mu.Unlock()
		metrics.ProviderConstructions.WithLabelValues(method, "ok").Inc()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(provider.Provider), nil
}

// Evict drops a constructed provider so the next Get rebuilds it. Used when
// the operator rotates a method's configuration at runtime.
func (r *Registry) Evict(method string) {
	r.mu.Lock()
	delete(r.ready, method)
	r.mu.Unlock()
}
