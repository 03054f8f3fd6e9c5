package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/sink"
	"github.com/asymmetric-research/solana-metrics/pkg/stats"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		RpcUrl      string         `yaml:"rpc_url"`
		HttpTimeout time.Duration  `yaml:"http_timeout"`
		Commitment  rpc.Commitment `yaml:"commitment"`

		// Interval is the time between two collection cycles.
		Interval time.Duration `yaml:"interval"`

		// SampleDuration is how long a cycle watches the slot height move.
		SampleDuration   time.Duration `yaml:"sample_duration"`
		BatchSize        int           `yaml:"batch_size"`
		MaxAttempts      int           `yaml:"max_attempts"`
		RetryDelay       time.Duration `yaml:"retry_delay"`
		MedianSampleSize int           `yaml:"median_sample_size"`
		CycleTimeout     time.Duration `yaml:"cycle_timeout"`

		ListenAddress string      `yaml:"listen_address"`
		LogLevel      string      `yaml:"log_level"`
		Sinks         SinksConfig `yaml:"sinks"`
	}

	SinksConfig struct {
		Log        bool                  `yaml:"log"`
		Prometheus bool                  `yaml:"prometheus"`
		ClickHouse sink.ClickHouseConfig `yaml:"clickhouse"`
	}
)

func DefaultConfig() *Config {
	return &Config{
		RpcUrl:           "http://localhost:8899",
		HttpTimeout:      60 * time.Second,
		Commitment:       rpc.CommitmentConfirmed,
		Interval:         time.Minute,
		SampleDuration:   collector.DefaultSampleDuration,
		BatchSize:        collector.DefaultBatchSize,
		MaxAttempts:      collector.DefaultMaxAttempts,
		RetryDelay:       250 * time.Millisecond,
		MedianSampleSize: stats.DefaultSampleSize,
		ListenAddress:    ":8080",
		Sinks: SinksConfig{
			Log:        true,
			Prometheus: true,
			ClickHouse: sink.ClickHouseConfig{
				Database: sink.DefaultClickHouseDatabase,
			},
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Unknown keys are rejected. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RpcUrl == "" {
		return fmt.Errorf("rpc_url is required")
	}
	switch c.Commitment {
	case rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("commitment must be '%s' or '%s', got '%s'", rpc.CommitmentConfirmed, rpc.CommitmentFinalized, c.Commitment)
	}
	for _, setting := range []struct {
		name  string
		value time.Duration
	}{
		{"http_timeout", c.HttpTimeout},
		{"interval", c.Interval},
		{"sample_duration", c.SampleDuration},
	} {
		if setting.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", setting.name, setting.value)
		}
	}
	if c.SampleDuration >= c.Interval {
		return fmt.Errorf("sample_duration (%v) must be shorter than interval (%v)", c.SampleDuration, c.Interval)
	}
	for _, setting := range []struct {
		name  string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"max_attempts", c.MaxAttempts},
		{"median_sample_size", c.MedianSampleSize},
	} {
		if setting.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", setting.name, setting.value)
		}
	}
	if c.RetryDelay < 0 || c.CycleTimeout < 0 {
		return fmt.Errorf("retry_delay and cycle_timeout cannot be negative")
	}
	if !c.Sinks.Log && !c.Sinks.Prometheus && !c.Sinks.ClickHouse.Enabled {
		return fmt.Errorf("at least one sink must be enabled")
	}
	if c.Sinks.ClickHouse.Enabled && c.Sinks.ClickHouse.Endpoint == "" {
		return fmt.Errorf("sinks.clickhouse.endpoint is required when the clickhouse sink is enabled")
	}
	return nil
}

func (c *Config) CollectorConfig() collector.Config {
	return collector.Config{
		Commitment:       c.Commitment,
		SampleDuration:   c.SampleDuration,
		BatchSize:        c.BatchSize,
		MaxAttempts:      c.MaxAttempts,
		RetryDelay:       c.RetryDelay,
		MedianSampleSize: c.MedianSampleSize,
		CycleTimeout:     c.CycleTimeout,
	}
}

// overrides copies a flag's value from the flag-bound config onto the loaded one.
var overrides = map[string]func(dst, src *Config){
	"rpc-url":             func(dst, src *Config) { dst.RpcUrl = src.RpcUrl },
	"http-timeout":        func(dst, src *Config) { dst.HttpTimeout = src.HttpTimeout },
	"commitment":          func(dst, src *Config) { dst.Commitment = src.Commitment },
	"interval":            func(dst, src *Config) { dst.Interval = src.Interval },
	"sample-duration":     func(dst, src *Config) { dst.SampleDuration = src.SampleDuration },
	"batch-size":          func(dst, src *Config) { dst.BatchSize = src.BatchSize },
	"max-attempts":        func(dst, src *Config) { dst.MaxAttempts = src.MaxAttempts },
	"retry-delay":         func(dst, src *Config) { dst.RetryDelay = src.RetryDelay },
	"median-sample-size":  func(dst, src *Config) { dst.MedianSampleSize = src.MedianSampleSize },
	"cycle-timeout":       func(dst, src *Config) { dst.CycleTimeout = src.CycleTimeout },
	"listen-address":      func(dst, src *Config) { dst.ListenAddress = src.ListenAddress },
	"log-level":           func(dst, src *Config) { dst.LogLevel = src.LogLevel },
	"log-sink":            func(dst, src *Config) { dst.Sinks.Log = src.Sinks.Log },
	"prometheus-sink":     func(dst, src *Config) { dst.Sinks.Prometheus = src.Sinks.Prometheus },
	"clickhouse":          func(dst, src *Config) { dst.Sinks.ClickHouse.Enabled = src.Sinks.ClickHouse.Enabled },
	"clickhouse-endpoint": func(dst, src *Config) { dst.Sinks.ClickHouse.Endpoint = src.Sinks.ClickHouse.Endpoint },
	"clickhouse-database": func(dst, src *Config) { dst.Sinks.ClickHouse.Database = src.Sinks.ClickHouse.Database },
	"clickhouse-migrate":  func(dst, src *Config) { dst.Sinks.ClickHouse.Migrate = src.Sinks.ClickHouse.Migrate },
}

// bindFlags registers one flag per overridable setting, writing into cfg.
func bindFlags(flags *pflag.FlagSet, cfg *Config) {
	defaults := DefaultConfig()
	flags.StringVar(&cfg.RpcUrl, "rpc-url", defaults.RpcUrl, "Solana RPC URL (including protocol and path).")
	flags.DurationVar(&cfg.HttpTimeout, "http-timeout", defaults.HttpTimeout, "HTTP timeout for a single RPC call.")
	flags.StringVar(
		(*string)(&cfg.Commitment),
		"commitment",
		string(defaults.Commitment),
		"Commitment used for getSlot, getBlock and getSupply ('confirmed' or 'finalized').",
	)
	flags.DurationVar(&cfg.Interval, "interval", defaults.Interval, "Time between collection cycles.")
	flags.DurationVar(
		&cfg.SampleDuration,
		"sample-duration",
		defaults.SampleDuration,
		"How long a cycle waits between its two slot readings.",
	)
	flags.IntVar(&cfg.BatchSize, "batch-size", defaults.BatchSize, "Maximum number of concurrent getBlock calls.")
	flags.IntVar(&cfg.MaxAttempts, "max-attempts", defaults.MaxAttempts, "Attempts per block before giving up.")
	flags.DurationVar(&cfg.RetryDelay, "retry-delay", defaults.RetryDelay, "Base pause between getBlock attempts.")
	flags.IntVar(
		&cfg.MedianSampleSize,
		"median-sample-size",
		defaults.MedianSampleSize,
		"Values kept per statistic to compute medians.",
	)
	flags.DurationVar(
		&cfg.CycleTimeout,
		"cycle-timeout",
		defaults.CycleTimeout,
		"Deadline for a whole collection cycle (0 disables it).",
	)
	flags.StringVar(&cfg.ListenAddress, "listen-address", defaults.ListenAddress, "Listen address for /metrics.")
	flags.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error).")
	flags.BoolVar(&cfg.Sinks.Log, "log-sink", defaults.Sinks.Log, "Log every record.")
	flags.BoolVar(&cfg.Sinks.Prometheus, "prometheus-sink", defaults.Sinks.Prometheus, "Expose the latest record as gauges.")
	flags.BoolVar(&cfg.Sinks.ClickHouse.Enabled, "clickhouse", defaults.Sinks.ClickHouse.Enabled, "Store records in ClickHouse.")
	flags.StringVar(
		&cfg.Sinks.ClickHouse.Endpoint,
		"clickhouse-endpoint",
		defaults.Sinks.ClickHouse.Endpoint,
		"ClickHouse native protocol address.",
	)
	flags.StringVar(
		&cfg.Sinks.ClickHouse.Database,
		"clickhouse-database",
		defaults.Sinks.ClickHouse.Database,
		"ClickHouse database.",
	)
	flags.BoolVar(
		&cfg.Sinks.ClickHouse.Migrate,
		"clickhouse-migrate",
		defaults.Sinks.ClickHouse.Migrate,
		"Apply ClickHouse migrations on startup.",
	)
}

// loadConfig layers the file at path over the defaults, then applies every flag set on the command line.
func loadConfig(flags *pflag.FlagSet, path string, flagged *Config) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	flags.Visit(func(f *pflag.Flag) {
		if override, ok := overrides[f.Name]; ok {
			override(cfg, flagged)
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
