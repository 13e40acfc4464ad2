// Package config loads the process configuration from environment
// variables with validated defaults, optionally overridden by a YAML file
// named in CONFIG_FILE.
package config

import (
	"fmt"
	"strings"
	"time"

	"repopulse/internal/resilience/circuitbreaker"
	"repopulse/internal/resilience/retry"
	pkgconfig "repopulse/pkg/config"
)

// Config is the full process configuration.
type Config struct {
	// LogLevel controls slog verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Server  ServerConfig  `yaml:"server"`
	GitHub  GitHubConfig  `yaml:"github"`
	AI      AIConfig      `yaml:"ai"`
	Cache   CacheConfig   `yaml:"cache"`
	Health  HealthConfig  `yaml:"health"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig configures the operational HTTP endpoints.
type ServerConfig struct {
	// Addr is the listen address for the metrics/health server.
	// Default: ":9090".
	Addr string `yaml:"addr"`
}

// GitHubConfig configures the source-control API client.
type GitHubConfig struct {
	// BaseURL of the API. Default: "https://api.github.com".
	BaseURL string `yaml:"base_url"`

	// Token for authenticated requests. Optional; unauthenticated calls
	// work with a much lower rate limit.
	Token string `yaml:"token"`

	// Timeout per HTTP request. Default: 30s.
	Timeout pkgconfig.Duration `yaml:"timeout"`

	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"circuit_breaker"`
}

// AIConfig configures the AI inference client.
type AIConfig struct {
	// Provider selects the backend: "claude" or "openai".
	// Default: "claude".
	Provider string `yaml:"provider"`

	// Model name passed to the provider. Empty uses the provider default.
	Model string `yaml:"model"`

	// APIKey authenticates with the provider.
	APIKey string `yaml:"api_key"`

	// MaxTokens caps the response length. Default: 1024.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout per inference call. Default: 120s.
	Timeout pkgconfig.Duration `yaml:"timeout"`

	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig mirrors retry.Policy in configuration form.
type RetryConfig struct {
	MaxAttempts int                `yaml:"max_attempts"`
	Strategy    string             `yaml:"strategy"`
	BaseDelay   pkgconfig.Duration `yaml:"base_delay"`
	MaxDelay    pkgconfig.Duration `yaml:"max_delay"`
}

// ToPolicy converts the configuration into a retry policy. Zero fields
// keep the base policy's values.
func (r RetryConfig) ToPolicy(base retry.Policy) retry.Policy {
	p := base
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.Strategy != "" {
		p.Strategy = retry.ParseStrategy(r.Strategy)
	}
	if r.BaseDelay > 0 {
		p.BaseDelay = r.BaseDelay.Std()
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay.Std()
	}
	return p
}

// BreakerConfig mirrors circuitbreaker.Policy in configuration form.
type BreakerConfig struct {
	FailureThreshold int                `yaml:"failure_threshold"`
	SuccessThreshold int                `yaml:"success_threshold"`
	OpenTimeout      pkgconfig.Duration `yaml:"open_timeout"`
}

// ToPolicy converts the configuration into a circuit breaker policy.
// Zero fields keep the base policy's values.
func (b BreakerConfig) ToPolicy(base circuitbreaker.Policy) circuitbreaker.Policy {
	p := base
	if b.FailureThreshold > 0 {
		p.FailureThreshold = b.FailureThreshold
	}
	if b.SuccessThreshold > 0 {
		p.SuccessThreshold = b.SuccessThreshold
	}
	if b.OpenTimeout > 0 {
		p.OpenTimeout = b.OpenTimeout.Std()
	}
	return p
}

// CacheConfig configures the TTL cache.
type CacheConfig struct {
	// BaseTTL is the item-category expiry that the collection and
	// metadata multipliers scale from. Default: 5m.
	BaseTTL pkgconfig.Duration `yaml:"base_ttl"`

	// SweepInterval is how often expired entries are reclaimed.
	// Default: 10m.
	SweepInterval pkgconfig.Duration `yaml:"sweep_interval"`
}

// HealthConfig configures the periodic health check runner.
type HealthConfig struct {
	// Schedule is a cron expression for the periodic batch.
	// Default: "@every 30s".
	Schedule string `yaml:"schedule"`

	// ProbeTimeout bounds each individual probe. Default: 5s.
	ProbeTimeout pkgconfig.Duration `yaml:"probe_timeout"`

	// DatabaseURL, when set, enables the database probe.
	DatabaseURL string `yaml:"database_url"`
}

// MonitorConfig configures the periodic repository activity check.
type MonitorConfig struct {
	// Repository to watch, as "owner/name". Empty disables the loop.
	Repository string `yaml:"repository"`

	// Schedule is a cron expression for the activity check.
	// Default: "@every 5m".
	Schedule string `yaml:"schedule"`
}

// Load builds the configuration from environment variables, then applies
// overrides from the YAML file named in CONFIG_FILE if one is set.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: pkgconfig.GetEnvString("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Addr: pkgconfig.GetEnvString("SERVER_ADDR", ":9090"),
		},
		GitHub: GitHubConfig{
			BaseURL: pkgconfig.GetEnvString("GITHUB_BASE_URL", "https://api.github.com"),
			Token:   pkgconfig.GetEnvString("GITHUB_TOKEN", ""),
			Timeout: pkgconfig.Duration(pkgconfig.GetEnvDuration("GITHUB_TIMEOUT", 30*time.Second)),
			Retry: RetryConfig{
				MaxAttempts: pkgconfig.GetEnvInt("GITHUB_RETRY_MAX_ATTEMPTS", 0),
				Strategy:    pkgconfig.GetEnvString("GITHUB_RETRY_STRATEGY", ""),
				BaseDelay:   pkgconfig.Duration(pkgconfig.GetEnvDuration("GITHUB_RETRY_BASE_DELAY", 0)),
				MaxDelay:    pkgconfig.Duration(pkgconfig.GetEnvDuration("GITHUB_RETRY_MAX_DELAY", 0)),
			},
			Breaker: BreakerConfig{
				FailureThreshold: pkgconfig.GetEnvInt("GITHUB_CB_FAILURE_THRESHOLD", 0),
				SuccessThreshold: pkgconfig.GetEnvInt("GITHUB_CB_SUCCESS_THRESHOLD", 0),
				OpenTimeout:      pkgconfig.Duration(pkgconfig.GetEnvDuration("GITHUB_CB_OPEN_TIMEOUT", 0)),
			},
		},
		AI: AIConfig{
			Provider:  pkgconfig.GetEnvString("AI_PROVIDER", "claude"),
			Model:     pkgconfig.GetEnvString("AI_MODEL", ""),
			APIKey:    pkgconfig.GetEnvString("AI_API_KEY", ""),
			MaxTokens: pkgconfig.GetEnvInt("AI_MAX_TOKENS", 1024),
			Timeout:   pkgconfig.Duration(pkgconfig.GetEnvDuration("AI_TIMEOUT", 120*time.Second)),
			Retry: RetryConfig{
				MaxAttempts: pkgconfig.GetEnvInt("AI_RETRY_MAX_ATTEMPTS", 0),
				Strategy:    pkgconfig.GetEnvString("AI_RETRY_STRATEGY", ""),
				BaseDelay:   pkgconfig.Duration(pkgconfig.GetEnvDuration("AI_RETRY_BASE_DELAY", 0)),
				MaxDelay:    pkgconfig.Duration(pkgconfig.GetEnvDuration("AI_RETRY_MAX_DELAY", 0)),
			},
			Breaker: BreakerConfig{
				FailureThreshold: pkgconfig.GetEnvInt("AI_CB_FAILURE_THRESHOLD", 0),
				SuccessThreshold: pkgconfig.GetEnvInt("AI_CB_SUCCESS_THRESHOLD", 0),
				OpenTimeout:      pkgconfig.Duration(pkgconfig.GetEnvDuration("AI_CB_OPEN_TIMEOUT", 0)),
			},
		},
		Cache: CacheConfig{
			BaseTTL:       pkgconfig.Duration(pkgconfig.GetEnvDuration("CACHE_BASE_TTL", 5*time.Minute)),
			SweepInterval: pkgconfig.Duration(pkgconfig.GetEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute)),
		},
		Health: HealthConfig{
			Schedule:     pkgconfig.GetEnvString("HEALTH_SCHEDULE", "@every 30s"),
			ProbeTimeout: pkgconfig.Duration(pkgconfig.GetEnvDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second)),
			DatabaseURL:  pkgconfig.GetEnvString("DATABASE_URL", ""),
		},
		Monitor: MonitorConfig{
			Repository: pkgconfig.GetEnvString("MONITOR_REPOSITORY", ""),
			Schedule:   pkgconfig.GetEnvString("MONITOR_SCHEDULE", "@every 5m"),
		},
	}

	if path := pkgconfig.GetEnvString("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("applying config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the rest of the process cannot run with.
func (c *Config) validate() error {
	if err := pkgconfig.ValidatePositiveDuration(c.GitHub.Timeout.Std()); err != nil {
		return fmt.Errorf("invalid github timeout: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.AI.Timeout.Std()); err != nil {
		return fmt.Errorf("invalid ai timeout: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Cache.BaseTTL.Std()); err != nil {
		return fmt.Errorf("invalid cache base ttl: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Cache.SweepInterval.Std()); err != nil {
		return fmt.Errorf("invalid cache sweep interval: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Health.ProbeTimeout.Std()); err != nil {
		return fmt.Errorf("invalid health probe timeout: %w", err)
	}
	switch c.AI.Provider {
	case "claude", "openai":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if repo := c.Monitor.Repository; repo != "" && !strings.Contains(repo, "/") {
		return fmt.Errorf("monitor repository %q must be owner/name", repo)
	}
	return nil
}
