// Package config provides unified configuration for the SmartQuery engine.
// Durations are expressed in integral units (millis, seconds) so they load
// cleanly from YAML, JSON, and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration.
type Config struct {
	// Ingest buffer configuration
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Query service configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Index manager configuration
	Index IndexConfig `json:"index" yaml:"index"`
}

// IngestConfig holds ingest buffer configuration.
type IngestConfig struct {
	// BatchSize is the desired number of events per flush
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FlushMillis is the maximum age of buffered events, in milliseconds
	FlushMillis int64 `json:"flush_millis" yaml:"flush_millis"`
}

// FlushInterval returns the flush interval as a duration.
func (c IngestConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushMillis) * time.Millisecond
}

// QueryConfig holds query service configuration.
type QueryConfig struct {
	// PlanCacheSize is the parsed-statement cache capacity
	PlanCacheSize int `json:"plan_cache_size" yaml:"plan_cache_size"`
}

// IndexConfig holds index manager configuration.
type IndexConfig struct {
	// MemoryBudgetMB caps the estimated memory of recommended indexes
	MemoryBudgetMB int64 `json:"memory_budget_mb" yaml:"memory_budget_mb"`

	// MaxNewPerTick caps index builds recommended per adaptive tick
	MaxNewPerTick int `json:"max_new_per_tick" yaml:"max_new_per_tick"`

	// StaleDropMillis is how long an unused column survives before being
	// dropped, in milliseconds
	StaleDropMillis int64 `json:"stale_drop_ms" yaml:"stale_drop_ms"`

	// AdaptiveTickSeconds is the interval between adaptive evaluations
	AdaptiveTickSeconds int `json:"adaptive_tick_seconds" yaml:"adaptive_tick_seconds"`

	// BuildWorkers sizes the background builder pool (0 = cores/2)
	BuildWorkers int `json:"build_workers" yaml:"build_workers"`
}

// StaleDrop returns the stale-drop threshold as a duration.
func (c IndexConfig) StaleDrop() time.Duration {
	return time.Duration(c.StaleDropMillis) * time.Millisecond
}

// AdaptiveTick returns the adaptive tick interval as a duration.
func (c IndexConfig) AdaptiveTick() time.Duration {
	return time.Duration(c.AdaptiveTickSeconds) * time.Second
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			BatchSize:   10_000,
			FlushMillis: 500,
		},
		Query: QueryConfig{
			PlanCacheSize: 256,
		},
		Index: IndexConfig{
			MemoryBudgetMB:      256,
			MaxNewPerTick:       2,
			StaleDropMillis:     7 * 24 * time.Hour.Milliseconds(),
			AdaptiveTickSeconds: 60,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.FlushMillis <= 0 {
		return fmt.Errorf("ingest.flush_millis must be positive, got %d", c.Ingest.FlushMillis)
	}
	if c.Query.PlanCacheSize <= 0 {
		return fmt.Errorf("query.plan_cache_size must be positive, got %d", c.Query.PlanCacheSize)
	}
	if c.Index.MemoryBudgetMB <= 0 {
		return fmt.Errorf("index.memory_budget_mb must be positive, got %d", c.Index.MemoryBudgetMB)
	}
	if c.Index.MaxNewPerTick <= 0 {
		return fmt.Errorf("index.max_new_per_tick must be positive, got %d", c.Index.MaxNewPerTick)
	}
	if c.Index.StaleDropMillis <= 0 {
		return fmt.Errorf("index.stale_drop_ms must be positive, got %d", c.Index.StaleDropMillis)
	}
	if c.Index.AdaptiveTickSeconds <= 0 {
		return fmt.Errorf("index.adaptive_tick_seconds must be positive, got %d", c.Index.AdaptiveTickSeconds)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file, starting from
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides. Variables use the
// SMARTQUERY_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SMARTQUERY_INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INGEST_FLUSH_MILLIS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingest.FlushMillis = n
		}
	}
	if v := os.Getenv("SMARTQUERY_QUERY_PLAN_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.PlanCacheSize = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INDEX_MEMORY_BUDGET_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.MemoryBudgetMB = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INDEX_MAX_NEW_PER_TICK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MaxNewPerTick = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INDEX_STALE_DROP_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.StaleDropMillis = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INDEX_ADAPTIVE_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.AdaptiveTickSeconds = n
		}
	}
	if v := os.Getenv("SMARTQUERY_INDEX_BUILD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BuildWorkers = n
		}
	}
}

// Load resolves the effective configuration: defaults, then the optional
// file, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
