package metrics

import (
	"context"
	"time"
)

// InstrumentCall wraps a fallible operation so that every invocation is
// recorded under the given scope:
//
//	<scope>_attempts_total{result="success"|"failure"}
//	<scope>_call_duration_ms
//
// When the operation is run inside a retry loop, each attempt (including
// the eventually successful one) produces one sample.
func InstrumentCall(c *Collector, scope string, op func(ctx context.Context) error) func(ctx context.Context) error {
	if c == nil {
		return op
	}
	return func(ctx context.Context) error {
		start := time.Now()
		err := op(ctx)
		durationMs := float64(time.Since(start)) / float64(time.Millisecond)

		result := "success"
		if err != nil {
			result = "failure"
		}
		c.Inc(scope+"_attempts_total", Labels{"result": result})
		c.Observe(scope+"_call_duration_ms", durationMs, nil)
		return err
	}
}
