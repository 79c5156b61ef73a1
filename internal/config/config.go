// ============================================================================
// Parabola Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Function: YAML configuration with defaults, overlay loading and range checks.
//
// Layout:
//   ephemeris: data_path, swevid_files, max_slots
//   pool:      thread_count (0 = tuned artifact, else platform concurrency)
//   batch:     min_slice, max_slice
//   tuning:    workload_size, max_threads, artifact
//   metrics:   enabled, port
//   log:       level, format
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete parabola configuration.
type Config struct {
	Ephemeris struct {
		DataPath    string   `yaml:"data_path"`
		SwevidFiles []string `yaml:"swevid_files"`
		MaxSlots    int      `yaml:"max_slots"`
	} `yaml:"ephemeris"`

	Pool struct {
		ThreadCount int `yaml:"thread_count"`
	} `yaml:"pool"`

	Batch struct {
		MinSlice int `yaml:"min_slice"`
		MaxSlice int `yaml:"max_slice"`
	} `yaml:"batch"`

	Tuning struct {
		WorkloadSize int    `yaml:"workload_size"`
		MaxThreads   int    `yaml:"max_threads"`
		Artifact     string `yaml:"artifact"`
	} `yaml:"tuning"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Ephemeris.MaxSlots = 256
	cfg.Batch.MinSlice = 10
	cfg.Batch.MaxSlice = 100
	cfg.Tuning.WorkloadSize = 1000
	cfg.Tuning.Artifact = "parabola-tuning.yaml"
	cfg.Metrics.Port = 9090
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Ephemeris.MaxSlots < 1 {
		errs = append(errs, fmt.Errorf("ephemeris.max_slots must be positive, got %d", c.Ephemeris.MaxSlots))
	}
	if c.Pool.ThreadCount < 0 {
		errs = append(errs, fmt.Errorf("pool.thread_count must not be negative, got %d", c.Pool.ThreadCount))
	}
	if c.Batch.MinSlice < 1 {
		errs = append(errs, fmt.Errorf("batch.min_slice must be positive, got %d", c.Batch.MinSlice))
	}
	if c.Batch.MaxSlice < c.Batch.MinSlice {
		errs = append(errs, fmt.Errorf("batch.max_slice %d is below min_slice %d", c.Batch.MaxSlice, c.Batch.MinSlice))
	}
	if c.Tuning.WorkloadSize < 1 {
		errs = append(errs, fmt.Errorf("tuning.workload_size must be positive, got %d", c.Tuning.WorkloadSize))
	}
	if c.Tuning.MaxThreads < 0 {
		errs = append(errs, fmt.Errorf("tuning.max_threads must not be negative, got %d", c.Tuning.MaxThreads))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
