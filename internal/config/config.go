// Package config loads docagent configuration from .docagent/config.yaml
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all docagent configuration.
type Config struct {
	// Agent Service connection
	Agent AgentConfig `yaml:"agent"`

	// Query registry limits
	Query QueryConfig `yaml:"query"`

	// Local query history
	History HistoryConfig `yaml:"history"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AgentConfig configures the Agent Service client.
type AgentConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// QueryConfig bounds concurrent query processing.
type QueryConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	Timeout       string `yaml:"timeout"`
}

// HistoryConfig configures the local SQLite history store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures category-based debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			BaseURL: "http://localhost:8420/api/v1",
			Timeout: "30s",
		},
		Query: QueryConfig{
			MaxConcurrent: 3,
			Timeout:       "90s",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: ".docagent/history.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config path under a workspace directory.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".docagent", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override in either case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// applyEnvOverrides applies DOCAGENT_* environment variables.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DOCAGENT_AGENT_URL"); url != "" {
		c.Agent.BaseURL = url
	}
	if key := os.Getenv("DOCAGENT_API_KEY"); key != "" {
		c.Agent.APIKey = key
	}
	if path := os.Getenv("DOCAGENT_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
	}
	if os.Getenv("DOCAGENT_DEBUG") == "1" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// GetAgentTimeout parses the Agent Service request timeout.
func (c *Config) GetAgentTimeout() time.Duration {
	d, err := time.ParseDuration(c.Agent.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetQueryTimeout parses the per-query deadline.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Query.Timeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("agent.base_url is required")
	}
	if c.Query.MaxConcurrent <= 0 {
		return fmt.Errorf("query.max_concurrent must be positive")
	}
	if _, err := time.ParseDuration(c.Query.Timeout); err != nil {
		return fmt.Errorf("query.timeout: %w", err)
	}
	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("history.database_path is required when history is enabled")
	}
	return nil
}
