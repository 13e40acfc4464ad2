// Package metrics provides an in-memory metrics collector: counters,
// gauges, and histogram timers keyed by metric name and label set.
//
// This package centralizes metrics for the resilience layer including:
//   - API call attempt counters (success/failure per scope)
//   - Call duration histograms with derived min/max/avg stats
//   - Circuit breaker state gauges and transition counters
//   - Cache hit/miss counters
//
// The Collector aggregates purely in memory and exposes two read surfaces:
// per-series derived stats for programmatic access, and a line-oriented
// text exposition for operators. The Bridge adapter additionally exposes
// the same series through a prometheus.Registry for scraping.
//
// Unlike package-global Prometheus vectors, the Collector is an explicitly
// constructed object with a documented lifecycle: created at process start,
// injected into the components that record into it, and resettable between
// test cases.
//
// Example usage:
//
//	collector := metrics.NewCollector()
//	collector.Inc("api_calls_total", metrics.Labels{"endpoint": "issues", "status": "success"})
//	collector.Observe("api_call_duration_ms", 45.2, metrics.Labels{"endpoint": "issues"})
//	fmt.Print(collector.ExportText())
package metrics
