// Package config loads harvester configuration from a YAML file with
// command line flag overrides.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// maxPageSize is the largest page the Jira search endpoint serves.
const maxPageSize = 100

// Config represents the application configuration.
type Config struct {
	// Projects are the Jira project keys to scrape, in order.
	Projects []string `yaml:"projects"`

	// Output is the JSONL output file path.
	Output string `yaml:"output"`

	// Checkpoint is the checkpoint file path. Empty defaults to the output
	// path plus ".checkpoint.json", colocated with the output. A .db or
	// .sqlite suffix selects the SQLite backend.
	Checkpoint string `yaml:"checkpoint"`

	// MaxIssues caps emitted issues across all projects. Zero means no cap.
	MaxIssues int `yaml:"max_issues"`

	// PageSize overrides the listing page size.
	PageSize int `yaml:"page_size"`

	// BaseURL is the Jira REST API root.
	BaseURL string `yaml:"base_url"`

	// UserAgent identifies the scraper to the server.
	UserAgent string `yaml:"user_agent"`

	// Retries is the maximum number of attempts per HTTP call.
	Retries int `yaml:"retries"`

	// RetryBackoffMs is the initial retry backoff in milliseconds.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`

	// RedisURL enables the Redis response cache when set (host:port).
	RedisURL string `yaml:"redis_url"`

	// MetricsAddr exposes /metrics on this address when set.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Load loads configuration from an optional YAML file, then applies command
// line flag overrides, then validates.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		PageSize:       100,
		BaseURL:        "https://issues.apache.org/jira/rest/api/2",
		UserAgent:      "jira-harvest/0.1.0",
		Retries:        5,
		RetryBackoffMs: 1000,
		LogLevel:       "info",
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if cfg.Checkpoint == "" && cfg.Output != "" {
		cfg.Checkpoint = cfg.Output + ".checkpoint.json"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("projects") {
		cfg.Projects, _ = flags.GetStringSlice("projects")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("checkpoint") {
		cfg.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("max-issues") {
		cfg.MaxIssues, _ = flags.GetInt("max-issues")
	}
	if flags.Changed("page-size") {
		cfg.PageSize, _ = flags.GetInt("page-size")
	}
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("retries") {
		cfg.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-pretty") {
		cfg.LogPretty, _ = flags.GetBool("log-pretty")
	}

	return nil
}

func (c *Config) validate() error {
	if len(c.Projects) == 0 {
		return fmt.Errorf("at least one project key is required")
	}
	for _, p := range c.Projects {
		if p == "" {
			return fmt.Errorf("project key cannot be empty")
		}
	}

	if c.Output == "" {
		return fmt.Errorf("output path is required")
	}

	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", maxPageSize)
	}

	if c.MaxIssues < 0 {
		return fmt.Errorf("max issues cannot be negative")
	}

	if c.Retries <= 0 {
		return fmt.Errorf("retries must be positive")
	}

	return nil
}
