package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"repopulse/internal/cache"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/resilience/circuitbreaker"
)

func TestGitHubProbe_HealthyWithQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rate_limit" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resources":{"core":{"remaining":4800}}}`))
	}))
	defer srv.Close()

	check := GitHubProbe(srv.Client(), srv.URL, "tok")(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s (%s)", check.Status, check.Message)
	}
}

func TestGitHubProbe_LowQuotaDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resources":{"core":{"remaining":12}}}`))
	}))
	defer srv.Close()

	check := GitHubProbe(srv.Client(), srv.URL, "")(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("expected degraded on low quota, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "12") {
		t.Errorf("expected remaining count in message, got %q", check.Message)
	}
}

func TestGitHubProbe_ServerErrorUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	check := GitHubProbe(srv.Client(), srv.URL, "")(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy on 500, got %s", check.Status)
	}
}

func TestGitHubProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	check := GitHubProbe(nil, srv.URL, "")(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy when unreachable, got %s", check.Status)
	}
}

func TestBreakerProbe(t *testing.T) {
	reg := circuitbreaker.NewRegistry()
	probe := BreakerProbe(reg)

	if check := probe(context.Background()); check.Status != StatusHealthy {
		t.Errorf("expected healthy with no open circuits, got %s", check.Status)
	}

	policy := circuitbreaker.Policy{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute}
	_ = reg.Execute(context.Background(), "github-api", policy, func(ctx context.Context) error {
		return http.ErrHandlerTimeout
	})

	check := probe(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("expected degraded with an open circuit, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "github-api") {
		t.Errorf("expected open circuit named in message, got %q", check.Message)
	}
}

func TestCacheProbe(t *testing.T) {
	c := cache.New()
	c.Put("k", 1, cache.CategoryItem)
	c.Get("k")

	check := CacheProbe(c)(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "1 entries") {
		t.Errorf("expected entry count in message, got %q", check.Message)
	}
}

func TestMetricsProbe(t *testing.T) {
	col := metrics.NewCollector()
	col.Inc("api_calls_total", metrics.Labels{"endpoint": "issues"})

	check := MetricsProbe(col)(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", check.Status)
	}
	if !strings.Contains(check.Message, "1 series") {
		t.Errorf("expected series count in message, got %q", check.Message)
	}
}

func TestAIConfigProbe(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		apiKey   string
		want     Status
	}{
		{"configured", "claude", "sk-test", StatusHealthy},
		{"missing key degrades", "openai", "", StatusDegraded},
		{"no provider", "", "", StatusUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := AIConfigProbe(tc.provider, tc.apiKey)(context.Background())
			if check.Status != tc.want {
				t.Errorf("expected %s, got %s (%s)", tc.want, check.Status, check.Message)
			}
		})
	}
}

func TestPostgresProbe_NilPool(t *testing.T) {
	check := PostgresProbe(nil)(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy without a pool, got %s", check.Status)
	}
}
