// Package tracing provides OpenTelemetry tracing integration.
//
// Outbound API calls are wrapped in client spans via WrapOperation so that a
// single protected call shows its retries and circuit rejections under one
// trace. The HTTP middleware traces the operational endpoints (health,
// metrics) and propagates W3C trace context.
//
// Example usage:
//
//	import "repopulse/internal/observability/tracing"
//
//	op := tracing.WrapOperation("github.list_issues", "github-api", call)
//	err := breakers.Execute(ctx, "github-api", policy, op)
package tracing
