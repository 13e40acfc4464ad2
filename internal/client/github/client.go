// Package github is the source-control API boundary. Every call runs the
// full protection chain: the TTL cache in front, then the circuit breaker,
// then retries, with metrics recorded per attempt. A cache hit bypasses the
// network entirely.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"repopulse/internal/apierr"
	"repopulse/internal/cache"
	"repopulse/internal/observability/metrics"
	"repopulse/internal/observability/tracing"
	"repopulse/internal/requestid"
	"repopulse/internal/resilience/circuitbreaker"
	"repopulse/internal/resilience/retry"
)

// CircuitName is the breaker name shared by all calls to this API. One
// failing endpoint opens the circuit for the whole resource.
const CircuitName = "github-api"

// metricsScope prefixes the series this client records.
const metricsScope = "github_api"

// Issue is a single issue as returned by the API.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PullRequest is a single pull request as returned by the API.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Draft     bool      `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is the slowly changing repository metadata.
type Repository struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	DefaultBranch   string `json:"default_branch"`
	StargazersCount int    `json:"stargazers_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
}

// RateLimit is the core rate-limit window.
type RateLimit struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// Client calls the source-control API through the resilience chain.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	cache       *cache.Cache
	breakers    *circuitbreaker.Registry
	collector   *metrics.Collector
	retryPolicy retry.Policy
	cbPolicy    circuitbreaker.Policy
}

// Options carries the collaborators a Client is wired with.
type Options struct {
	BaseURL string
	Token   string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger

	Cache     *cache.Cache
	Breakers  *circuitbreaker.Registry
	Collector *metrics.Collector

	// RetryPolicy defaults to retry.GitHubAPIPolicy.
	RetryPolicy *retry.Policy
	// BreakerPolicy defaults to circuitbreaker.GitHubAPIPolicy.
	BreakerPolicy *circuitbreaker.Policy
}

// New creates a client. Cache and Breakers are required; Collector and
// Logger are optional.
func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       opts.Token,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		cache:       opts.Cache,
		breakers:    opts.Breakers,
		collector:   opts.Collector,
		retryPolicy: retry.GitHubAPIPolicy(),
		cbPolicy:    circuitbreaker.GitHubAPIPolicy(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RetryPolicy != nil {
		c.retryPolicy = *opts.RetryPolicy
	}
	if opts.BreakerPolicy != nil {
		c.cbPolicy = *opts.BreakerPolicy
	}
	return c
}

// ListIssues returns the issues for a repository, filtered by state
// ("open", "closed", "all"). Collection-category caching.
func (c *Client) ListIssues(ctx context.Context, owner, repo, state string) ([]Issue, error) {
	key := cache.Key("issues", owner+"/"+repo, state)
	path := fmt.Sprintf("/repos/%s/%s/issues?state=%s", owner, repo, state)
	return fetchCached[[]Issue](ctx, c, "github.list_issues", path, key, cache.CategoryCollection)
}

// GetIssue returns one issue by number. Item-category caching.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	key := cache.Key("issue", owner+"/"+repo, number)
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	return fetchCached[Issue](ctx, c, "github.get_issue", path, key, cache.CategoryItem)
}

// ListPullRequests returns the pull requests for a repository.
// Collection-category caching.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string) ([]PullRequest, error) {
	key := cache.Key("pulls", owner+"/"+repo, state)
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=%s", owner, repo, state)
	return fetchCached[[]PullRequest](ctx, c, "github.list_pulls", path, key, cache.CategoryCollection)
}

// GetRepository returns repository metadata. Metadata-category caching.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (Repository, error) {
	key := cache.Key("repo", owner+"/"+repo)
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	return fetchCached[Repository](ctx, c, "github.get_repository", path, key, cache.CategoryMetadata)
}

// RateLimit returns the current rate-limit window. Never cached: the point
// of asking is the live value, and the endpoint costs no quota.
func (c *Client) RateLimit(ctx context.Context) (RateLimit, error) {
	var rl RateLimit
	err := c.fetch(ctx, "github.rate_limit", "/rate_limit", &rl)
	return rl, err
}

// InvalidateIssues drops every cached issue entry (single and listed) for
// all repositories and returns the count removed.
func (c *Client) InvalidateIssues() int {
	return c.cache.Invalidate("issues:") + c.cache.Invalidate("issue:")
}

// InvalidatePullRequests drops every cached pull request entry.
func (c *Client) InvalidatePullRequests() int {
	return c.cache.Invalidate("pulls:")
}

// fetchCached consults the cache first and only runs the protected chain
// on a miss, storing the result under the given category.
func fetchCached[T any](ctx context.Context, c *Client, opName, path, key string, cat cache.Category) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	var out T
	if err := c.fetch(ctx, opName, path, &out); err != nil {
		var zero T
		return zero, err
	}
	c.cache.Put(key, out, cat)
	return out, nil
}

// fetch runs one API call through tracing, the circuit breaker, retries,
// and the metrics decorator, decoding the JSON response into out.
func (c *Client) fetch(ctx context.Context, opName, path string, out any) error {
	ctx, reqID := requestid.Ensure(ctx)

	call := metrics.InstrumentCall(c.collector, metricsScope, func(ctx context.Context) error {
		return c.doHTTP(ctx, path, out)
	})
	protected := tracing.WrapOperation(opName, CircuitName, func(ctx context.Context) error {
		return c.breakers.Execute(ctx, CircuitName, c.cbPolicy, retry.Wrap(c.retryPolicy, call))
	})

	if err := protected(ctx); err != nil {
		c.logger.Warn("github api call failed",
			slog.String("operation", opName),
			slog.String("request_id", reqID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// doHTTP performs the raw request. Non-2xx statuses become *apierr.APIError
// so the retry policy can classify them.
func (c *Client) doHTTP(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap(CircuitName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierr.FromStatus(CircuitName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
