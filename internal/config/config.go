// Package config holds all plotloom configuration. The config lives at
// .plotloom/config.yaml under the workspace; a missing file yields defaults
// so a fresh checkout works without any setup beyond an API key.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all plotloom configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM         LLMConfig         `yaml:"llm"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Readiness   ReadinessConfig   `yaml:"readiness"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"` // hard deadline for one generation call
}

// LifecycleConfig configures the lifecycle controller.
type LifecycleConfig struct {
	AutoCommit     string `yaml:"auto_commit"`     // countdown before automatic injection
	HistoryLimit   int    `yaml:"history_limit"`   // bounded history ring size
	MessageWindow  int    `yaml:"message_window"`  // recent messages fed to the prompt
	DirectionLimit int    `yaml:"direction_limit"` // recent steering hints kept
}

// ReadinessConfig configures the readiness detector.
type ReadinessConfig struct {
	PollInterval      string `yaml:"poll_interval"`
	MaxAttempts       int    `yaml:"max_attempts"`
	StabilityInterval string `yaml:"stability_interval"`
	StableSamples     int    `yaml:"stable_samples"`
	StabilityTimeout  string `yaml:"stability_timeout"`
}

// PersistenceConfig configures the snapshot stores.
type PersistenceConfig struct {
	DatabasePath string `yaml:"database_path"` // local sqlite cache
	RedisAddr    string `yaml:"redis_addr"`    // shared store; empty disables it
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "plotloom",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider: "openai",
			Timeout:  "45s",
		},
		Lifecycle: LifecycleConfig{
			AutoCommit:     "5s",
			HistoryLimit:   5,
			MessageWindow:  5,
			DirectionLimit: 10,
		},
		Readiness: ReadinessConfig{
			PollInterval:      "500ms",
			MaxAttempts:       60,
			StabilityInterval: "300ms",
			StableSamples:     3,
			StabilityTimeout:  "10s",
		},
		Persistence: PersistenceConfig{
			DatabasePath: filepath.Join(".plotloom", "plotloom.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// DefaultConfigPath returns the config path under a workspace.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".plotloom", "config.yaml")
}

// LoadConfig reads a config file, applying defaults for anything unset.
// A missing file is not an error; it returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyFallbacks() {
	d := DefaultConfig()
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.Lifecycle.AutoCommit == "" {
		c.Lifecycle.AutoCommit = d.Lifecycle.AutoCommit
	}
	if c.Lifecycle.HistoryLimit <= 0 {
		c.Lifecycle.HistoryLimit = d.Lifecycle.HistoryLimit
	}
	if c.Lifecycle.MessageWindow <= 0 {
		c.Lifecycle.MessageWindow = d.Lifecycle.MessageWindow
	}
	if c.Lifecycle.DirectionLimit <= 0 {
		c.Lifecycle.DirectionLimit = d.Lifecycle.DirectionLimit
	}
	if c.Readiness.PollInterval == "" {
		c.Readiness.PollInterval = d.Readiness.PollInterval
	}
	if c.Readiness.MaxAttempts <= 0 {
		c.Readiness.MaxAttempts = d.Readiness.MaxAttempts
	}
	if c.Readiness.StabilityInterval == "" {
		c.Readiness.StabilityInterval = d.Readiness.StabilityInterval
	}
	if c.Readiness.StableSamples <= 0 {
		c.Readiness.StableSamples = d.Readiness.StableSamples
	}
	if c.Readiness.StabilityTimeout == "" {
		c.Readiness.StabilityTimeout = d.Readiness.StabilityTimeout
	}
	if c.Persistence.DatabasePath == "" {
		c.Persistence.DatabasePath = d.Persistence.DatabasePath
	}
}

// ParseDuration parses a duration string, returning fallback on empty or
// malformed input. Config durations are advisory; a typo should degrade to
// the default rather than abort startup.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GenerationTimeout returns the parsed LLM call deadline.
func (c *Config) GenerationTimeout() time.Duration {
	return ParseDuration(c.LLM.Timeout, 45*time.Second)
}

// AutoCommitDuration returns the parsed auto-commit countdown.
func (c *Config) AutoCommitDuration() time.Duration {
	return ParseDuration(c.Lifecycle.AutoCommit, 5*time.Second)
}

// ParsedPollInterval returns the parsed readiness poll interval.
func (c *Config) ParsedPollInterval() time.Duration {
	return ParseDuration(c.Readiness.PollInterval, 500*time.Millisecond)
}

// ParsedStabilityInterval returns the parsed stability sample interval.
func (c *Config) ParsedStabilityInterval() time.Duration {
	return ParseDuration(c.Readiness.StabilityInterval, 300*time.Millisecond)
}

// ParsedStabilityTimeout returns the parsed stability hard cap.
func (c *Config) ParsedStabilityTimeout() time.Duration {
	return ParseDuration(c.Readiness.StabilityTimeout, 10*time.Second)
}
