package httpclient

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config controls connection reuse, concurrency caps, and safety limits
// for the shared Fetcher. Defaults mirror the values a single worker
// process can sustain without overwhelming source sites.
type Config struct {
	// GlobalConcurrency bounds in-flight requests across all hosts.
	GlobalConcurrency int64

	// PerHostConcurrency bounds in-flight requests to a single host.
	PerHostConcurrency int64

	// Timeout is the per-attempt request timeout.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts on Transient errors.
	MaxRetries int

	// MaxBodySize caps the response body read, in bytes.
	MaxBodySize int64

	// MaxRedirects caps the redirect chain length.
	MaxRedirects int

	// DenyPrivateIPs blocks requests (including redirect targets) that
	// resolve to loopback/private/link-local addresses.
	DenyPrivateIPs bool

	// UserAgent identifies the bot to upstream servers.
	UserAgent string

	// RenderBudget is the strict total budget for a headless render call.
	RenderBudget time.Duration
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		GlobalConcurrency:  20,
		PerHostConcurrency: 2,
		Timeout:            15 * time.Second,
		MaxRetries:         3,
		MaxBodySize:        10 * 1024 * 1024,
		MaxRedirects:       5,
		DenyPrivateIPs:     true,
		UserAgent:          "PulsefeedBot/1.0 (+https://pulsefeed.example/bot)",
		RenderBudget:       20 * time.Second,
	}
}

// Validate rejects configurations that would be unsafe or non-functional.
func (c Config) Validate() error {
	if c.GlobalConcurrency < 1 {
		return fmt.Errorf("global concurrency must be >= 1, got %d", c.GlobalConcurrency)
	}
	if c.PerHostConcurrency < 1 || c.PerHostConcurrency > c.GlobalConcurrency {
		return fmt.Errorf("per-host concurrency must be in [1, global], got %d", c.PerHostConcurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxBodySize < 1024 {
		return fmt.Errorf("max body size too small: %d", c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be in [0, 10], got %d", c.MaxRedirects)
	}
	return nil
}

// LoadConfigFromEnv loads Config from environment variables, falling
// back to DefaultConfig for anything unset.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("FETCH_GLOBAL_CONCURRENCY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_GLOBAL_CONCURRENCY: %w", err)
		}
		cfg.GlobalConcurrency = n
	}
	if v := os.Getenv("FETCH_PER_HOST_CONCURRENCY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_PER_HOST_CONCURRENCY: %w", err)
		}
		cfg.PerHostConcurrency = n
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("FETCH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("FETCH_DENY_PRIVATE_IPS"); v != "" {
		cfg.DenyPrivateIPs = v == "true"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("httpclient config validation failed: %w", err)
	}
	return cfg, nil
}
