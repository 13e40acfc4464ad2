// Command monitor protects calls to the source-control and AI inference
// APIs behind the shared resilience chain and serves the operational
// surface: /health, /health/live, /metrics, and /metrics/text. When a
// repository is configured it also runs a periodic activity check that
// exercises the protected clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"repopulse/internal/cache"
	"repopulse/internal/client/ai"
	"repopulse/internal/client/github"
	"repopulse/internal/config"
	"repopulse/internal/health"
	"repopulse/internal/observability/logging"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/observability/tracing"
	"repopulse/internal/resilience/circuitbreaker"
	"repopulse/internal/resilience/retry"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(metrics.NewBridge(collector))

	breakers := circuitbreaker.NewRegistry(circuitbreaker.WithCollector(collector))
	store := cache.New(cache.WithBaseTTL(cfg.Cache.BaseTTL.Std()))
	go sweepCache(ctx, logger, store, cfg.Cache.SweepInterval.Std())

	ghClient := buildGitHubClient(cfg, logger, store, breakers, collector)
	analyzer := buildAnalyzer(cfg, logger, store, breakers, collector)

	pool := openDatabase(ctx, logger, cfg.Health.DatabaseURL)
	if pool != nil {
		defer pool.Close()
	}

	registry := buildHealthRegistry(cfg, pool, store, breakers, collector)

	runner := health.NewRunner(registry, logger, cfg.Health.Schedule, 0)
	if err := runner.Start(); err != nil {
		logger.Error("failed to start health runner", slog.Any("error", err))
		os.Exit(1)
	}
	defer runner.Stop()
	logger.Info("health runner started", slog.String("schedule", cfg.Health.Schedule))

	if cfg.Monitor.Repository != "" {
		if err := startActivityMonitor(ctx, logger, cfg, ghClient, analyzer, collector); err != nil {
			logger.Error("failed to start activity monitor", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("no repository configured, activity monitor disabled")
	}

	srv := buildServer(cfg, logger, registry, collector, promRegistry)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
}

// buildGitHubClient wires the source-control client with the configured
// retry and breaker policies layered over the standard ones.
func buildGitHubClient(cfg *config.Config, logger *slog.Logger, store *cache.Cache, breakers *circuitbreaker.Registry, collector *metrics.Collector) *github.Client {
	retryPolicy := cfg.GitHub.Retry.ToPolicy(retry.GitHubAPIPolicy())
	cbPolicy := cfg.GitHub.Breaker.ToPolicy(circuitbreaker.GitHubAPIPolicy())
	return github.New(github.Options{
		BaseURL:       cfg.GitHub.BaseURL,
		Token:         cfg.GitHub.Token,
		HTTPClient:    &http.Client{Timeout: cfg.GitHub.Timeout.Std()},
		Logger:        logger,
		Cache:         store,
		Breakers:      breakers,
		Collector:     collector,
		RetryPolicy:   &retryPolicy,
		BreakerPolicy: &cbPolicy,
	})
}

// buildAnalyzer selects the inference provider and wires it behind the
// resilience chain. An analyzer with no API key is still constructed; its
// calls fail and the config probe reports the gap.
func buildAnalyzer(cfg *config.Config, logger *slog.Logger, store *cache.Cache, breakers *circuitbreaker.Registry, collector *metrics.Collector) *ai.Analyzer {
	var provider ai.Provider
	switch cfg.AI.Provider {
	case "openai":
		provider = ai.NewOpenAIProvider(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxTokens)
	default:
		provider = ai.NewClaudeProvider(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxTokens)
	}
	logger.Info("inference provider configured", slog.String("provider", provider.Name()))

	retryPolicy := cfg.AI.Retry.ToPolicy(retry.AIAPIPolicy())
	cbPolicy := cfg.AI.Breaker.ToPolicy(circuitbreaker.AIAPIPolicy())
	return ai.NewAnalyzer(ai.AnalyzerOptions{
		Provider:      provider,
		Logger:        logger,
		Cache:         store,
		Breakers:      breakers,
		Collector:     collector,
		RetryPolicy:   &retryPolicy,
		BreakerPolicy: &cbPolicy,
		Timeout:       cfg.AI.Timeout.Std(),
	})
}

// openDatabase connects the pool used by the database probe. A missing URL
// disables the probe; a failed connection is logged but does not stop the
// monitor, the probe will keep reporting the outage.
func openDatabase(ctx context.Context, logger *slog.Logger, url string) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create database pool", slog.Any("error", err))
		return nil
	}
	return pool
}

// buildHealthRegistry registers the built-in probes. The database is the
// only critical component: the APIs being down degrades the monitor but
// does not make it unhealthy.
func buildHealthRegistry(cfg *config.Config, pool *pgxpool.Pool, store *cache.Cache, breakers *circuitbreaker.Registry, collector *metrics.Collector) *health.Registry {
	registry := health.NewRegistry()
	timeout := cfg.Health.ProbeTimeout.Std()

	if pool != nil {
		registry.Register("database", health.PostgresProbe(pool), timeout, true)
	}
	registry.Register("github_api",
		health.GitHubProbe(&http.Client{Timeout: timeout}, cfg.GitHub.BaseURL, cfg.GitHub.Token),
		timeout, false)
	registry.Register("ai_config", health.AIConfigProbe(cfg.AI.Provider, cfg.AI.APIKey), timeout, false)
	registry.Register("cache", health.CacheProbe(store), timeout, false)
	registry.Register("circuit_breakers", health.BreakerProbe(breakers), timeout, false)
	registry.Register("metrics", health.MetricsProbe(collector), timeout, false)
	return registry
}

// startActivityMonitor runs the periodic repository activity check. Each
// run fetches repository metadata and open issues through the protected
// client, records gauges, and, when an API key is present, asks the model
// for a summary.
func startActivityMonitor(ctx context.Context, logger *slog.Logger, cfg *config.Config, ghClient *github.Client, analyzer *ai.Analyzer, collector *metrics.Collector) error {
	owner, name, ok := strings.Cut(cfg.Monitor.Repository, "/")
	if !ok {
		return fmt.Errorf("invalid repository %q", cfg.Monitor.Repository)
	}

	job := func() {
		runActivityCheck(ctx, logger, cfg, ghClient, analyzer, collector, owner, name)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Monitor.Schedule, job); err != nil {
		return err
	}
	c.Start()
	go job()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	logger.Info("activity monitor started",
		slog.String("repository", cfg.Monitor.Repository),
		slog.String("schedule", cfg.Monitor.Schedule))
	return nil
}

// runActivityCheck executes one pass of the activity loop.
func runActivityCheck(ctx context.Context, logger *slog.Logger, cfg *config.Config, ghClient *github.Client, analyzer *ai.Analyzer, collector *metrics.Collector, owner, name string) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	repo, err := ghClient.GetRepository(runCtx, owner, name)
	if err != nil {
		logger.Error("activity check failed", slog.Any("error", err))
		return
	}
	collector.SetGauge("watched_repo_stars", float64(repo.StargazersCount), metrics.Labels{"repo": repo.FullName})
	collector.SetGauge("watched_repo_open_issues", float64(repo.OpenIssuesCount), metrics.Labels{"repo": repo.FullName})

	issues, err := ghClient.ListIssues(runCtx, owner, name, "open")
	if err != nil {
		logger.Error("failed to list issues", slog.Any("error", err))
		return
	}

	logger.Info("activity check completed",
		slog.String("repository", repo.FullName),
		slog.Int("open_issues", len(issues)),
		slog.Int("stars", repo.StargazersCount))

	if cfg.AI.APIKey == "" {
		return
	}
	summary, err := analyzer.SummarizeActivity(runCtx, repo.FullName, formatActivity(repo, issues))
	if err != nil {
		logger.Warn("activity summary failed", slog.Any("error", err))
		return
	}
	logger.Info("activity summary", slog.String("repository", repo.FullName), slog.String("summary", summary))
}

// formatActivity renders the fetched state as the prompt body.
func formatActivity(repo github.Repository, issues []github.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d stars, %d open issues.\n", repo.StargazersCount, repo.OpenIssuesCount)
	for i, issue := range issues {
		if i == 20 {
			fmt.Fprintf(&b, "... and %d more\n", len(issues)-i)
			break
		}
		fmt.Fprintf(&b, "- #%d %s (%s)\n", issue.Number, issue.Title, issue.State)
	}
	return b.String()
}

// sweepCache reclaims expired entries on an interval so idle keys do not
// accumulate between lookups.
func sweepCache(ctx context.Context, logger *slog.Logger, store *cache.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.CleanupExpired(); removed > 0 {
				logger.Debug("cache sweep", slog.Int("removed", removed))
			}
		}
	}
}

// buildServer assembles the operational HTTP surface.
func buildServer(cfg *config.Config, logger *slog.Logger, registry *health.Registry, collector *metrics.Collector, promRegistry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /health", &health.Handler{
		Registry: registry,
		Logger:   logger,
		Timeout:  cfg.Health.ProbeTimeout.Std() * 2,
	})
	mux.Handle("GET /health/live", health.LiveHandler{})
	mux.Handle("GET /metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /metrics/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(collector.ExportText()))
	})

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           tracing.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
