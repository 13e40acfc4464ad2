package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"repopulse/internal/apierr"
	"repopulse/internal/cache"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/resilience/circuitbreaker"
	"repopulse/internal/resilience/retry"
)

func noRetry() *retry.Policy {
	p := retry.Policy{MaxAttempts: 1, Strategy: retry.BackoffFixed, BaseDelay: time.Millisecond}
	return &p
}

func fastRetry(attempts int) *retry.Policy {
	p := retry.Policy{
		MaxAttempts: attempts,
		Strategy:    retry.BackoffFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
	return &p
}

func newTestClient(t *testing.T, srv *httptest.Server, retryPolicy *retry.Policy) (*Client, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector()
	c := New(Options{
		BaseURL:     srv.URL,
		Token:       "tok",
		HTTPClient:  srv.Client(),
		Cache:       cache.New(),
		Breakers:    circuitbreaker.NewRegistry(),
		Collector:   collector,
		RetryPolicy: retryPolicy,
	})
	return c, collector
}

func TestClient_GetIssue(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/repos/octo/demo/issues/7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		_, _ = w.Write([]byte(`{"number":7,"title":"flaky test","state":"open"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, noRetry())

	issue, err := c.GetIssue(context.Background(), "octo", "demo", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issue.Number != 7 || issue.Title != "flaky test" {
		t.Errorf("unexpected issue: %+v", issue)
	}

	// Second lookup is served from the cache.
	if _, err := c.GetIssue(context.Background(), "octo", "demo", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 HTTP call, got %d", got)
	}
}

func TestClient_ListIssuesCachesPerState(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"number":1,"title":"a","state":"open"}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, noRetry())

	if _, err := c.ListIssues(context.Background(), "octo", "demo", "open"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.ListIssues(context.Background(), "octo", "demo", "open"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A different state is a different key.
	if _, err := c.ListIssues(context.Background(), "octo", "demo", "closed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 HTTP calls, got %d", got)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"number":1,"title":"recovered","state":"open"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, fastRetry(3))

	issue, err := c.GetIssue(context.Background(), "octo", "demo", 1)
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if issue.Title != "recovered" {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 HTTP calls, got %d", got)
	}
}

func TestClient_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, fastRetry(4))

	_, err := c.GetIssue(context.Background(), "octo", "demo", 404)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := apierr.KindOf(err); got != apierr.KindNotFound {
		t.Errorf("expected not-found kind, got %s", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 HTTP call for a non-retryable error, got %d", got)
	}
}

func TestClient_ExhaustionSurfacesRetryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, fastRetry(2))

	_, err := c.GetIssue(context.Background(), "octo", "demo", 1)
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *retry.ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("expected 2 attempts recorded, got %d", exhausted.Attempts)
	}
}

func TestClient_OpenCircuitShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	collector := metrics.NewCollector()
	cbPolicy := circuitbreaker.Policy{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute}
	c := New(Options{
		BaseURL:       srv.URL,
		HTTPClient:    srv.Client(),
		Cache:         cache.New(),
		Breakers:      circuitbreaker.NewRegistry(),
		Collector:     collector,
		RetryPolicy:   noRetry(),
		BreakerPolicy: &cbPolicy,
	})

	if _, err := c.GetIssue(context.Background(), "octo", "demo", 1); err == nil {
		t.Fatal("expected error from failing server")
	}

	_, err := c.GetIssue(context.Background(), "octo", "demo", 2)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected open-circuit rejection, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected no HTTP call after the circuit opened, got %d", got)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"number":1,"title":"t","state":"open"}`))
	}))
	defer srv.Close()

	c, collector := newTestClient(t, srv, noRetry())
	if _, err := c.GetIssue(context.Background(), "octo", "demo", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := collector.CounterValue("github_api_attempts_total", metrics.Labels{"result": "success"})
	if got != 1 {
		t.Errorf("expected 1 successful attempt recorded, got %v", got)
	}
}

func TestClient_InvalidateIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"number":1,"title":"t","state":"open"}`))
	}))
	defer srv.Close()

	store := cache.New()
	c := New(Options{
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		Cache:       store,
		Breakers:    circuitbreaker.NewRegistry(),
		RetryPolicy: noRetry(),
	})

	if _, err := c.GetIssue(context.Background(), "octo", "demo", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Put(cache.Key("pulls", "octo/demo", "open"), []PullRequest{}, cache.CategoryCollection)

	if got := c.InvalidateIssues(); got != 1 {
		t.Errorf("expected 1 issue entry invalidated, got %d", got)
	}
	if got := c.InvalidatePullRequests(); got != 1 {
		t.Errorf("expected 1 pull entry invalidated, got %d", got)
	}
}

func TestClient_RateLimitNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"resources":{"core":{"limit":5000,"remaining":4999,"reset":1}}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, noRetry())

	for i := 0; i < 2; i++ {
		rl, err := c.RateLimit(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rl.Resources.Core.Remaining != 4999 {
			t.Errorf("unexpected rate limit: %+v", rl)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected a live call each time, got %d", got)
	}
}
