// Package retry provides a policy-driven retry executor with configurable
// backoff strategies. It helps handle transient failures gracefully by
// automatically re-invoking failed operations.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repopulse/internal/apierr"
)

// Operation is a fallible unit of work executed under a retry policy.
type Operation func(ctx context.Context) error

// Policy holds the configuration for retry logic. Policies are immutable
// value objects: create one per named use case and never mutate it.
type Policy struct {
	// MaxAttempts is the total number of invocations permitted,
	// including the first one. Must be >= 1.
	MaxAttempts int

	// Strategy selects the backoff algorithm used between attempts.
	Strategy Strategy

	// BaseDelay is the starting delay for the backoff calculation.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay between attempts.
	MaxDelay time.Duration

	// RetryableKinds is the set of error kinds that trigger a retry.
	// Errors of any other kind propagate on first occurrence.
	RetryableKinds []apierr.Kind
}

// Retryable reports whether an error of the given kind should be retried
// under this policy. Canceled operations are never retried.
func (p Policy) Retryable(kind apierr.Kind) bool {
	if kind == apierr.KindCanceled {
		return false
	}
	for _, k := range p.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// transientKinds is the retryable set shared by the presets: connection
// failures, timeouts, 5xx responses, and rate limiting.
func transientKinds() []apierr.Kind {
	return []apierr.Kind{
		apierr.KindNetwork,
		apierr.KindTimeout,
		apierr.KindServerError,
		apierr.KindRateLimited,
	}
}

// DefaultPolicy returns the default retry policy: 3 attempts with
// jittered exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Strategy:       BackoffExponentialJitter,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		RetryableKinds: transientKinds(),
	}
}

// QuickPolicy returns a policy for cheap operations where a second
// attempt is worthwhile but long waits are not.
func QuickPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		Strategy:       BackoffFixed,
		BaseDelay:      1 * time.Second,
		MaxDelay:       5 * time.Second,
		RetryableKinds: transientKinds(),
	}
}

// AggressivePolicy returns a policy for operations that must eventually
// succeed if the downstream recovers: 5 attempts with longer waits.
func AggressivePolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		Strategy:       BackoffExponentialJitter,
		BaseDelay:      2 * time.Second,
		MaxDelay:       30 * time.Second,
		RetryableKinds: transientKinds(),
	}
}

// GitHubAPIPolicy returns a policy optimized for GitHub API calls.
// Jittered exponential backoff avoids synchronized retry storms against
// the shared rate limit.
func GitHubAPIPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Strategy:       BackoffExponentialJitter,
		BaseDelay:      2 * time.Second,
		MaxDelay:       20 * time.Second,
		RetryableKinds: transientKinds(),
	}
}

// AIAPIPolicy returns a policy optimized for AI inference calls.
// Moderate retry due to cost considerations.
func AIAPIPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Strategy:       BackoffExponential,
		BaseDelay:      2 * time.Second,
		MaxDelay:       10 * time.Second,
		RetryableKinds: transientKinds(),
	}
}

// ExhaustedError reports that every permitted attempt failed.
// It wraps the last underlying error.
type ExhaustedError struct {
	// Attempts is the number of invocations performed.
	Attempts int

	// Err is the error returned by the final attempt.
	Err error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do executes the operation under the given policy.
//
// The first invocation counts as attempt 1. On success the result is
// returned immediately, short-circuiting remaining attempts. A failure
// whose kind is outside the policy's retryable set propagates at once
// without consuming further attempts. When all attempts fail, Do returns
// an *ExhaustedError wrapping the last error.
//
// The wait between attempts is a plain timed select; it holds no locks
// and aborts immediately when ctx is canceled.
func Do(ctx context.Context, p Policy, op Operation) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		kind := apierr.KindOf(lastErr)
		if !p.Retryable(kind) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.String("kind", kind.String()),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == maxAttempts {
			break
		}

		delay := Delay(p, attempt+1)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("kind", kind.String()),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// DoValue executes a value-returning operation under the given policy.
// Semantics match Do; the zero value is returned alongside any error.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
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

// Wrap returns an operation that runs op under the policy every time it
// is invoked. It lets callers compose retry with other decorators:
//
//	breakers.Execute(ctx, name, cbPolicy, retry.Wrap(p, op))
//
// The unnamed return type keeps the result assignable to the operation
// types of the other decorators.
func Wrap(p Policy, op Operation) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Do(ctx, p, op)
	}
}
