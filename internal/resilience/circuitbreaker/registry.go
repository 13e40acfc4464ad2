package circuitbreaker

import (
	"context"
	"sync"
)

// Registry is the process-wide table of circuit breakers, keyed by resource
// name. It is explicitly constructed at process start and injected into the
// call sites that need protection; breakers are created lazily on first use
// and live for the registry's lifetime.
//
// Breakers for different names are fully independent: an open github-api
// circuit never affects the claude-api circuit.
type Registry struct {
	opts []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry. The given options are applied to
// every breaker the registry creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named resource, creating it with the
// given policy on first use. The policy supplied at creation wins; later
// calls with a different policy reuse the existing breaker unchanged.
func (r *Registry) Get(name string, policy Policy) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, policy, r.opts...)
	r.breakers[name] = b
	return b
}

// Lookup returns the breaker for the named resource without creating one.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Execute runs the operation through the named breaker, creating the
// breaker on first use.
func (r *Registry) Execute(ctx context.Context, name string, policy Policy, op Operation) error {
	return r.Get(name, policy).Execute(ctx, op)
}

// ExecuteValue runs a value-returning operation through the named breaker
// in the given registry.
func ExecuteValue[T any](ctx context.Context, r *Registry, name string, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, name, policy, func(ctx context.Context) error {
		v, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Snapshot returns current statistics for every registered breaker.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Stats()
	}
	return out
}

// AnyOpen reports whether any registered breaker is currently open.
func (r *Registry) AnyOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		if b.State() == StateOpen {
			return true
		}
	}
	return false
}

// Reset returns every registered breaker to the closed state.
// Intended for tests.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
