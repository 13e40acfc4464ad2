package retry

import (
	"math/rand"
	"time"
)

// Strategy selects the backoff algorithm used between retry attempts.
type Strategy int

const (
	// BackoffFixed waits BaseDelay before every retry.
	BackoffFixed Strategy = iota

	// BackoffLinear waits BaseDelay * (n-1) before attempt n, capped at MaxDelay.
	BackoffLinear

	// BackoffExponential waits BaseDelay * 2^(n-2) before attempt n,
	// capped at MaxDelay.
	BackoffExponential

	// BackoffExponentialJitter applies the exponential delay multiplied by
	// a uniform random factor in [0.5, 1.0] to avoid synchronized retry
	// storms across concurrent callers.
	BackoffExponentialJitter
)

// String returns the name of the strategy, used in logs and config files.
func (s Strategy) String() string {
	switch s {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffExponentialJitter:
		return "exponential_jitter"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a config string into a Strategy.
// Unrecognized values fall back to BackoffExponentialJitter.
func ParseStrategy(s string) Strategy {
	switch s {
	case "fixed":
		return BackoffFixed
	case "linear":
		return BackoffLinear
	case "exponential":
		return BackoffExponential
	case "exponential_jitter", "":
		return BackoffExponentialJitter
	default:
		return BackoffExponentialJitter
	}
}

// Delay computes the wait before attempt n (n >= 2) under the policy.
func Delay(p Policy, n int) time.Duration {
	if n < 2 {
		return 0
	}

	var d time.Duration
	switch p.Strategy {
	case BackoffFixed:
		return p.BaseDelay
	case BackoffLinear:
		d = p.BaseDelay * time.Duration(n-1)
	case BackoffExponential:
		d = exponentialDelay(p.BaseDelay, n)
	case BackoffExponentialJitter:
		// The cap applies to the exponential value; jitter then scales
		// the capped delay into [0.5, 1.0] of it.
		return jitter(capDelay(exponentialDelay(p.BaseDelay, n), p.MaxDelay))
	default:
		return p.BaseDelay
	}

	return capDelay(d, p.MaxDelay)
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// exponentialDelay doubles the base delay for each attempt past the second.
// The shift is clamped to keep the duration from overflowing on long runs.
func exponentialDelay(base time.Duration, n int) time.Duration {
	shift := n - 2
	if shift > 30 {
		shift = 30
	}
	return base << uint(shift)
}

// jitter scales a delay by a uniform random factor in [0.5, 1.0].
//
// #nosec G404 -- math/rand is acceptable for backoff jitter; cryptographic
// randomness is not required.
func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}
