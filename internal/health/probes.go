package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"repopulse/internal/cache"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/resilience/circuitbreaker"
)

// PostgresProbe reports the database reachable when a ping on the pool
// succeeds within the probe timeout.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return func(ctx context.Context) Check {
		if pool == nil {
			return Check{Status: StatusUnhealthy, Message: "database pool not configured"}
		}
		if err := pool.Ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("database ping failed: %v", err)}
		}

		stat := pool.Stat()
		if stat.MaxConns() > 0 {
			inUse := float64(stat.AcquiredConns()) / float64(stat.MaxConns()) * 100
			if inUse >= 80 {
				return Check{
					Status:  StatusDegraded,
					Message: fmt.Sprintf("connection pool utilization %.0f%%", inUse),
				}
			}
		}
		return Check{Status: StatusHealthy}
	}
}

// githubRateLimit is the subset of the /rate_limit response the probe reads.
type githubRateLimit struct {
	Resources struct {
		Core struct {
			Remaining int `json:"remaining"`
		} `json:"core"`
	} `json:"resources"`
}

// GitHubProbe reports the source-control API reachable by querying its
// rate-limit endpoint, which does not consume request quota. A low
// remaining quota degrades the component rather than failing it.
func GitHubProbe(client *http.Client, baseURL, token string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) Check {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rate_limit", nil)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("rate limit query failed: %v", err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("rate limit query returned status %d", resp.StatusCode),
			}
		}

		var rl githubRateLimit
		if err := json.NewDecoder(resp.Body).Decode(&rl); err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("decoding rate limit response: %v", err)}
		}
		if rl.Resources.Core.Remaining < 100 {
			return Check{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("only %d API requests remaining", rl.Resources.Core.Remaining),
			}
		}
		return Check{Status: StatusHealthy}
	}
}

// CacheProbe reports cache effectiveness. The cache cannot fail, so the
// probe is informational and always healthy.
func CacheProbe(c *cache.Cache) Probe {
	return func(ctx context.Context) Check {
		stats := c.Stats()
		return Check{
			Status: StatusHealthy,
			Message: fmt.Sprintf("%d entries, %.2f%% hit rate",
				stats.TotalEntries, stats.HitRatePercent),
		}
	}
}

// BreakerProbe degrades when any circuit in the registry is open. An open
// circuit means a downstream is failing, but the process itself still
// serves everything else.
func BreakerProbe(r *circuitbreaker.Registry) Probe {
	return func(ctx context.Context) Check {
		if !r.AnyOpen() {
			return Check{Status: StatusHealthy}
		}

		open := make([]string, 0, 1)
		for name, stats := range r.Snapshot() {
			if stats.State == circuitbreaker.StateOpen.String() {
				open = append(open, name)
			}
		}
		return Check{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("open circuits: %v", open),
		}
	}
}

// AIConfigProbe verifies the inference client is configured. A missing API
// key degrades the component: the monitor keeps running, but analysis calls
// will fail until credentials arrive.
func AIConfigProbe(provider, apiKey string) Probe {
	return func(ctx context.Context) Check {
		if provider == "" {
			return Check{Status: StatusUnhealthy, Message: "no AI provider configured"}
		}
		if apiKey == "" {
			return Check{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%s provider has no API key", provider),
			}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%s provider configured", provider)}
	}
}

// MetricsProbe reports how many series the in-memory collector is tracking.
// Always healthy; the count is informational.
func MetricsProbe(c *metrics.Collector) Probe {
	return func(ctx context.Context) Check {
		return Check{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d series tracked", c.SeriesCount()),
		}
	}
}
