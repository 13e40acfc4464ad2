package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes the registry's full check batch on a cron schedule and
// logs a summary of each run. It backs the health surface with fresh data
// without putting probe latency on the request path.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
	schedule string
	timeout  time.Duration

	cron *cron.Cron

	// onResults, when set, receives each completed batch. Used to feed
	// the cached snapshot behind the HTTP handler.
	onResults func([]Result)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithResultSink registers a callback invoked with each completed batch.
func WithResultSink(fn func([]Result)) RunnerOption {
	return func(r *Runner) { r.onResults = fn }
}

// NewRunner creates a runner that checks all probes on the given cron
// schedule (e.g. "@every 30s"). The timeout bounds each full batch.
func NewRunner(registry *Registry, logger *slog.Logger, schedule string, timeout time.Duration, opts ...RunnerOption) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Runner{
		registry: registry,
		logger:   logger,
		schedule: schedule,
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules the periodic checks and runs one batch immediately so
// the health surface is populated before the first tick.
func (r *Runner) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	go r.runOnce()
	return nil
}

// Stop halts the schedule and waits for an in-flight batch to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// runOnce executes one full check batch and logs the outcome.
func (r *Runner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	results, err := r.registry.CheckAll(ctx)
	if err != nil {
		r.logger.Error("health check batch failed", slog.Any("error", err))
		return
	}

	overall := Overall(results)
	attrs := []any{
		slog.String("overall", overall.String()),
		slog.Int("components", len(results)),
	}
	for _, res := range results {
		if res.Status != StatusHealthy {
			attrs = append(attrs, slog.String(res.Component, res.Message))
		}
	}

	switch overall {
	case StatusHealthy:
		r.logger.Info("periodic health check passed", attrs...)
	case StatusDegraded:
		r.logger.Warn("periodic health check degraded", attrs...)
	default:
		r.logger.Error("periodic health check failed", attrs...)
	}

	if r.onResults != nil {
		r.onResults(results)
	}
}
