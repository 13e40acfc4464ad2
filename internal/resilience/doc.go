// Package resilience provides reliability and fault tolerance patterns for
// calls into unreliable external services. It includes a retry executor with
// multiple backoff strategies and a per-resource circuit breaker state machine.
//
// The package supports:
//   - Retry policies with fixed, linear, exponential, and jittered backoff
//   - Circuit breakers keyed by resource name, created lazily on first use
//   - Composable operation wrapping: breaker outermost, retry inside
//
// Usage Example:
//
//	breakers := circuitbreaker.NewRegistry()
//	err := breakers.Execute(ctx, "github-api", circuitbreaker.GitHubAPIPolicy(),
//	    retry.Wrap(retry.GitHubAPIPolicy(), func(ctx context.Context) error {
//	        return callExternalService(ctx)
//	    }))
package resilience
