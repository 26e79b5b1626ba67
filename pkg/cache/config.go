package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the connection cache.
type Config struct {
	// Enabled controls whether caching is active. When false (or when TTL
	// is zero), every acquisition establishes a fresh connection that the
	// caller owns.
	Enabled bool

	// TTL is how long a cached connection lives. Entries are not renewed
	// on access.
	TTL time.Duration

	// SweepInterval is how often the background sweep scans for expired
	// entries.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TTL:           5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// ConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - TENANTKIT_CACHE_ENABLED: "true" or "false" (default: "true")
//   - TENANTKIT_CACHE_TTL: duration in seconds (default: 300)
//   - TENANTKIT_CACHE_SWEEP_INTERVAL: duration in seconds (default: 30)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("TENANTKIT_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("TENANTKIT_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("TENANTKIT_CACHE_SWEEP_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SweepInterval = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

// Bypassed reports whether the configuration disables caching entirely.
func (c Config) Bypassed() bool {
	return !c.Enabled || c.TTL <= 0
}
