// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr      string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Catalog snapshot (tools + data repositories)
	CatalogPath  string
	CatalogWatch bool

	// Providers
	FilemetrixURL   string // default backend for repositories not in the catalog
	DispatcherURL   string
	ProviderTimeout time.Duration
	LaunchTimeout   time.Duration

	// Browse sessions
	BrowseBufferSize    int
	DeliveryTimeout     time.Duration
	MaxDeliveryFailures int

	// Assembly
	InlineCallbackURL string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:         envOr("METRICS_ADDR", ":9090"),
		ShutdownTimeout:     envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		CatalogPath:         envOr("CATALOG_PATH", ""),
		CatalogWatch:        envBool("CATALOG_WATCH", true),
		FilemetrixURL:       envOr("FILEMETRIX_URL", ""),
		DispatcherURL:       envOr("DISPATCHER_URL", ""),
		ProviderTimeout:     envDuration("PROVIDER_TIMEOUT", 30*time.Second),
		LaunchTimeout:       envDuration("LAUNCH_TIMEOUT", 10*time.Minute),
		BrowseBufferSize:    envInt("BROWSE_BUFFER_SIZE", 16),
		DeliveryTimeout:     envDuration("DELIVERY_TIMEOUT", 30*time.Second),
		MaxDeliveryFailures: envInt("MAX_DELIVERY_FAILURES", 3),
		InlineCallbackURL:   envOr("INLINE_CALLBACK_URL", "https://example.com"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}
	if c.DispatcherURL == "" {
		return fmt.Errorf("DISPATCHER_URL is required")
	}
	if _, err := url.ParseRequestURI(c.DispatcherURL); err != nil {
		return fmt.Errorf("DISPATCHER_URL: %w", err)
	}
	if c.FilemetrixURL != "" {
		if _, err := url.ParseRequestURI(c.FilemetrixURL); err != nil {
			return fmt.Errorf("FILEMETRIX_URL: %w", err)
		}
	}
	if c.BrowseBufferSize < 1 {
		return fmt.Errorf("BROWSE_BUFFER_SIZE must be >= 1, got %d", c.BrowseBufferSize)
	}
	if c.MaxDeliveryFailures < 0 {
		return fmt.Errorf("MAX_DELIVERY_FAILURES must be >= 0, got %d", c.MaxDeliveryFailures)
	}
	if c.ProviderTimeout <= 0 || c.LaunchTimeout <= 0 {
		return fmt.Errorf("provider and launch timeouts must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
