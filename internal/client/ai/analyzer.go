package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"repopulse/internal/cache"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/observability/tracing"
	"repopulse/internal/requestid"
	"repopulse/internal/resilience/circuitbreaker"
	"repopulse/internal/resilience/retry"
)

// Analyzer runs prompts through a Provider behind the resilience chain.
// Responses are cached by prompt digest: asking the model the same question
// twice within the TTL costs one inference call.
type Analyzer struct {
	provider Provider
	logger   *slog.Logger

	cache       *cache.Cache
	breakers    *circuitbreaker.Registry
	collector   *metrics.Collector
	retryPolicy retry.Policy
	cbPolicy    circuitbreaker.Policy
	timeout     time.Duration
}

// AnalyzerOptions carries the collaborators an Analyzer is wired with.
type AnalyzerOptions struct {
	Provider Provider
	Logger   *slog.Logger

	Cache     *cache.Cache
	Breakers  *circuitbreaker.Registry
	Collector *metrics.Collector

	// RetryPolicy defaults to retry.AIAPIPolicy.
	RetryPolicy *retry.Policy
	// BreakerPolicy defaults to circuitbreaker.AIAPIPolicy.
	BreakerPolicy *circuitbreaker.Policy
	// Timeout bounds one full protected call. Default: 120s.
	Timeout time.Duration
}

// NewAnalyzer creates an analyzer. Provider, Cache, and Breakers are
// required; the rest are optional.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	a := &Analyzer{
		provider:    opts.Provider,
		logger:      opts.Logger,
		cache:       opts.Cache,
		breakers:    opts.Breakers,
		collector:   opts.Collector,
		retryPolicy: retry.AIAPIPolicy(),
		cbPolicy:    circuitbreaker.AIAPIPolicy(),
		timeout:     opts.Timeout,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if opts.RetryPolicy != nil {
		a.retryPolicy = *opts.RetryPolicy
	}
	if opts.BreakerPolicy != nil {
		a.cbPolicy = *opts.BreakerPolicy
	}
	if a.timeout <= 0 {
		a.timeout = 120 * time.Second
	}
	return a
}

// Analyze sends the prompt through the protection chain and returns the
// model's response. Identical prompts within the TTL are served from the
// cache without touching the provider.
func (a *Analyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	prompt = truncatePrompt(prompt)
	key := promptKey(a.provider.Name(), prompt)

	if v, ok := a.cache.Get(key); ok {
		if response, ok := v.(string); ok {
			return response, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx, reqID := requestid.Ensure(ctx)

	start := time.Now()
	var response string
	call := metrics.InstrumentCall(a.collector, metricsScope, func(ctx context.Context) error {
		var err error
		response, err = a.provider.Complete(ctx, prompt)
		return err
	})
	protected := tracing.WrapOperation("ai.analyze", CircuitName, func(ctx context.Context) error {
		return a.breakers.Execute(ctx, CircuitName, a.cbPolicy, retry.Wrap(a.retryPolicy, call))
	})

	if err := protected(ctx); err != nil {
		a.logger.Warn("ai analysis failed",
			slog.String("provider", a.provider.Name()),
			slog.String("request_id", reqID),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return "", err
	}

	a.logger.Info("ai analysis completed",
		slog.String("provider", a.provider.Name()),
		slog.String("request_id", reqID),
		slog.Int("response_length", len(response)),
		slog.Duration("duration", time.Since(start)))

	a.cache.Put(key, response, cache.CategoryItem)
	return response, nil
}

// SummarizeActivity asks the model to summarize recent repository activity.
func (a *Analyzer) SummarizeActivity(ctx context.Context, repo, activity string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the recent activity in repository %s in a few sentences:\n%s",
		repo, activity)
	return a.Analyze(ctx, prompt)
}

// promptKey builds the cache key from the provider and a digest of the
// prompt. Hashing keeps long prompts out of the key space while preserving
// the determinism the composite-key scheme requires.
func promptKey(provider, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return cache.Key("ai", provider, hex.EncodeToString(sum[:16]))
}

// truncatePrompt caps prompt size the way the upstream token limits expect.
func truncatePrompt(prompt string) string {
	if len(prompt) <= maxPromptChars {
		return prompt
	}
	return prompt[:maxPromptChars] + "...\n(truncated)"
}
