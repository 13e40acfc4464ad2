// Package health provides a registry of named asynchronous probes and an
// aggregate status derivation over their results.
//
// Probes run concurrently, each bounded by its own timeout. A probe that
// times out, returns an error, or panics is recorded as unhealthy; it never
// aborts the rest of the batch and never crashes the aggregate check.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is a single component's (or the system's) health classification.
type Status int

const (
	// StatusHealthy means the component is fully operational.
	StatusHealthy Status = iota

	// StatusDegraded means the component works but with reduced capacity
	// or elevated risk. A warning state, not a failure.
	StatusDegraded

	// StatusUnhealthy means the component is not operational.
	StatusUnhealthy
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Check is what a probe reports about its component.
type Check struct {
	Status  Status
	Message string
}

// Probe inspects one component. It must respect the context deadline; a
// probe that overruns it is reported as unhealthy with a timeout message.
type Probe func(ctx context.Context) Check

// Result is one probe's outcome as recorded by CheckAll.
type Result struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"-"`
	Critical  bool          `json:"critical"`
}

// DurationMS returns the probe duration in milliseconds for export surfaces.
func (r Result) DurationMS() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

type registration struct {
	name     string
	probe    Probe
	timeout  time.Duration
	critical bool
}

// DefaultProbeTimeout bounds probes registered without an explicit timeout.
const DefaultProbeTimeout = 5 * time.Second

// Registry holds named probes and runs them concurrently on demand. It is
// constructed once at process start and injected wherever health status is
// served or scheduled.
type Registry struct {
	mu     sync.RWMutex
	probes []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores a named probe. Critical probes drag the overall status
// to unhealthy when they fail; non-critical ones only degrade it.
// Registering an existing name replaces the previous probe.
func (r *Registry) Register(name string, probe Probe, timeout time.Duration, critical bool) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.probes {
		if reg.name == name {
			r.probes[i] = registration{name, probe, timeout, critical}
			return
		}
	}
	r.probes = append(r.probes, registration{name, probe, timeout, critical})
}

// Names returns the registered probe names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.probes))
	for i, reg := range r.probes {
		names[i] = reg.name
	}
	return names
}

// CheckAll runs every registered probe concurrently, each under its own
// timeout, and returns the results sorted by component name. The returned
// error is always nil today; the signature leaves room for an aggregate
// deadline on ctx.
func (r *Registry) CheckAll(ctx context.Context) ([]Result, error) {
	r.mu.RLock()
	probes := make([]registration, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	results := make([]Result, len(probes))
	g, ctx := errgroup.WithContext(ctx)
	for i, reg := range probes {
		i, reg := i, reg
		g.Go(func() error {
			results[i] = runProbe(ctx, reg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Component < results[j].Component
	})
	return results, nil
}

// runProbe executes one probe under its timeout, converting overruns and
// panics into unhealthy results.
func runProbe(ctx context.Context, reg registration) Result {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	done := make(chan Check, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Check{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("probe panicked: %v", rec),
				}
			}
		}()
		done <- reg.probe(probeCtx)
	}()

	var check Check
	select {
	case check = <-done:
	case <-probeCtx.Done():
		check = Check{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("health check timed out after %s", reg.timeout),
		}
	}

	return Result{
		Component: reg.name,
		Status:    check.Status,
		Message:   check.Message,
		CheckedAt: time.Now().UTC(),
		Duration:  time.Since(start),
		Critical:  reg.critical,
	}
}

// Overall derives a single status from a batch of results: unhealthy if any
// critical probe is unhealthy, degraded if any probe at all is degraded or
// unhealthy, healthy otherwise.
func Overall(results []Result) Status {
	overall := StatusHealthy
	for _, res := range results {
		if res.Critical && res.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if res.Status != StatusHealthy {
			overall = StatusDegraded
		}
	}
	return overall
}
