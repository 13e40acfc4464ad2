// Package circuitbreaker provides a per-resource circuit breaker state
// machine that short-circuits calls when a downstream resource is failing.
// Breakers are keyed by resource name and created lazily through a Registry.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repopulse/internal/apierr"
	"repopulse/internal/observability/metrics"
)

// State represents the current state of a circuit breaker.
type State int

const (
	// StateClosed is the normal operating state: calls pass through and
	// consecutive failures are counted.
	StateClosed State = iota

	// StateOpen rejects calls immediately until the open timeout elapses.
	StateOpen

	// StateHalfOpen cautiously admits probe calls to test recovery.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Policy holds the configuration for a circuit breaker. Policies are
// immutable value objects shared by every breaker protecting the same
// class of resource.
type Policy struct {
	// FailureThreshold is the number of consecutive failures required to
	// open the circuit. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes required in
	// half-open state to close the circuit. Default: 2.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before admitting a
	// recovery probe. Default: 60 seconds.
	OpenTimeout time.Duration
}

// withDefaults fills in zero fields with the default policy values.
func (p Policy) withDefaults() Policy {
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 5
	}
	if p.SuccessThreshold <= 0 {
		p.SuccessThreshold = 2
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = 60 * time.Second
	}
	return p
}

// DefaultPolicy returns the default circuit breaker policy.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// GitHubAPIPolicy returns a policy optimized for GitHub API calls.
func GitHubAPIPolicy() Policy {
	return Policy{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// AIAPIPolicy returns a policy optimized for AI inference calls.
// Trips faster than the default because each failed call is expensive.
func AIAPIPolicy() Policy {
	return Policy{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// ErrOpen is the sentinel matched by errors.Is for any rejection caused
// by an open circuit.
var ErrOpen = errors.New("circuit breaker open")

// OpenError reports that a call was rejected because the named circuit is
// open and its timeout has not elapsed. The underlying operation was never
// invoked, which distinguishes "downstream is down" from "this call failed".
type OpenError struct {
	// Name is the circuit that rejected the call.
	Name string

	// ConsecutiveFailures is the failure count at rejection time.
	ConsecutiveFailures int

	// RetryAfter is the remaining time until a recovery probe is admitted.
	// Zero when the circuit is half-open with a probe already in flight.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open: retry after %s", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit breaker %q is open: recovery probe in flight", e.Name)
}

// Is matches OpenError against the ErrOpen sentinel.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Operation is a fallible unit of work executed through a breaker.
type Operation func(ctx context.Context) error

// Breaker is the state machine protecting one named resource. One instance
// exists per resource name, created lazily on first use and living for the
// process lifetime.
//
// The state transition rules (initial state: closed):
//
//   - closed -> open: consecutiveFailures reaches FailureThreshold.
//   - open -> half-open: first call attempted after OpenTimeout has elapsed;
//     that call becomes the canonical recovery probe. Earlier calls are
//     rejected with *OpenError without invoking the operation.
//   - half-open -> closed: consecutiveSuccesses reaches SuccessThreshold.
//     Both counters reset to zero.
//   - half-open -> open: any single failure while half-open. openedAt is
//     refreshed and consecutiveFailures is pinned to FailureThreshold.
//   - Any success while closed resets consecutiveFailures to zero.
//
// Exactly one probe call is admitted at a time while half-open; concurrent
// callers racing to probe are rejected as still-open until the in-flight
// probe resolves.
type Breaker struct {
	name      string
	policy    Policy
	clock     Clock
	collector *metrics.Collector

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	probing              bool
}

// Option configures a Breaker (and, through a Registry, every breaker the
// registry creates).
type Option func(*Breaker)

// WithClock injects a clock, used by tests to control timeout transitions.
func WithClock(c Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// WithCollector records state transitions into the given metrics collector:
// a circuit_breaker_state gauge and a circuit_breaker_transitions_total counter,
// both labeled by circuit name.
func WithCollector(c *metrics.Collector) Option {
	return func(b *Breaker) { b.collector = c }
}

// New creates a circuit breaker for the named resource. Zero policy fields
// take their documented defaults.
func New(name string, policy Policy, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		policy: policy.withDefaults(),
		clock:  SystemClock{},
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.recordState()
	return b
}

// Name returns the resource name this breaker protects.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs the operation through the breaker.
//
// If the circuit is open and the timeout has not elapsed, Execute returns
// *OpenError immediately without invoking the operation. Otherwise the
// operation runs with no breaker lock held, and its outcome drives the
// state transition.
//
// An operation abandoned by context cancellation mutates no counters: the
// breaker is left exactly as it was before the attempt, except that an
// in-flight half-open probe slot is released.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

// acquire decides whether a call may proceed, performing the open ->
// half-open transition when the timeout has elapsed. The winning caller
// claims the single probe slot.
func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := b.clock.Now().Sub(b.openedAt)
		if elapsed < b.policy.OpenTimeout {
			return &OpenError{
				Name:                b.name,
				ConsecutiveFailures: b.consecutiveFailures,
				RetryAfter:          b.policy.OpenTimeout - elapsed,
			}
		}
		b.transition(StateHalfOpen)
		b.consecutiveSuccesses = 0
		b.probing = true
		return nil

	case StateHalfOpen:
		if b.probing {
			return &OpenError{
				Name:                b.name,
				ConsecutiveFailures: b.consecutiveFailures,
			}
		}
		b.probing = true
		return nil

	default:
		return nil
	}
}

// record applies the outcome of an admitted call to the state machine.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// An abandoned attempt is neither success nor failure.
	if err != nil && apierr.KindOf(err) == apierr.KindCanceled {
		if b.state == StateHalfOpen {
			b.probing = false
		}
		return
	}

	if err == nil {
		b.recordSuccess()
	} else {
		b.recordFailure()
	}
}

func (b *Breaker) recordSuccess() {
	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0

	case StateHalfOpen:
		b.probing = false
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.policy.SuccessThreshold {
			b.transition(StateClosed)
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	}
}

func (b *Breaker) recordFailure() {
	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.policy.FailureThreshold {
			b.transition(StateOpen)
			b.openedAt = b.clock.Now()
		}

	case StateHalfOpen:
		// A single failure while half-open re-opens immediately.
		b.probing = false
		b.transition(StateOpen)
		b.openedAt = b.clock.Now()
		b.consecutiveFailures = b.policy.FailureThreshold
		b.consecutiveSuccesses = 0
	}
}

// transition changes state, logs the change, and updates metrics.
// Callers must hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to

	slog.Warn("circuit breaker state changed",
		slog.String("circuit", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("consecutive_failures", b.consecutiveFailures))

	b.recordState()
	if b.collector != nil {
		b.collector.Inc("circuit_breaker_transitions_total",
			metrics.Labels{"circuit": b.name, "to": to.String()})
	}
}

// recordState publishes the current state as a gauge (closed=0, open=1,
// half-open=2). Callers must hold b.mu (or be the constructor).
func (b *Breaker) recordState() {
	if b.collector != nil {
		b.collector.SetGauge("circuit_breaker_state", float64(b.state),
			metrics.Labels{"circuit": b.name})
	}
}

// Stats is a point-in-time snapshot of a breaker for monitoring.
type Stats struct {
	Name                 string        `json:"name"`
	State                string        `json:"state"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	OpenedAt             time.Time     `json:"opened_at,omitzero"`
	OpenRemaining        time.Duration `json:"open_remaining,omitempty"`
}

// Stats returns current breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:                 b.name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
	}
	if b.state == StateOpen {
		s.OpenedAt = b.openedAt
		if remaining := b.policy.OpenTimeout - b.clock.Now().Sub(b.openedAt); remaining > 0 {
			s.OpenRemaining = remaining
		}
	}
	return s
}

// Reset returns the breaker to the closed state with zeroed counters.
// Intended for tests and manual operator intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.openedAt = time.Time{}
	b.probing = false
	b.recordState()
}
