// Package config loads and validates server configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`

	// AdditionalArgs are extra CLI flags passed through to every Claude
	// invocation, inserted verbatim between the fixed flags and the prompt.
	AdditionalArgs []string `yaml:"additional_args"`

	// TimeoutSecs bounds wall-clock run time. Values <= 0 fall back to
	// DefaultTimeoutSecs; values above MaxTimeoutSecs are clamped.
	TimeoutSecs int `yaml:"timeout_secs"`

	// HistoryDir stores completed run records. Empty disables history.
	HistoryDir string `yaml:"history_dir"`

	// AuthToken protects the HTTP endpoints when set. Empty disables auth.
	AuthToken string `yaml:"auth_token"`
}

// Defaults
const (
	DefaultPort        = 8808
	DefaultBind        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultTimeoutSecs = 600
	MaxTimeoutSecs     = 3600
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "CLAUDE_MCP_CONFIG"

// DefaultConfigFile is looked up in the current directory when no path is given.
const DefaultConfigFile = "claude-mcp.yaml"

// Default returns a config with default values.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		Bind:        DefaultBind,
		LogLevel:    DefaultLogLevel,
		TimeoutSecs: DefaultTimeoutSecs,
	}
}

// Parse parses YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Drop blank additional_args entries so the argv never carries empty strings
	cleaned := cfg.AdditionalArgs[:0]
	for _, arg := range cfg.AdditionalArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	cfg.AdditionalArgs = cleaned

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load loads config from a file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Resolve loads config from the explicit path, the CLAUDE_MCP_CONFIG
// environment variable, or claude-mcp.yaml in the working directory.
// A missing default file yields the default config rather than an error.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return Load(DefaultConfigFile)
	}
	return Default(), nil
}

// Validate checks config validity.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Bind == "" {
		return fmt.Errorf("bind must not be empty")
	}
	return nil
}

// Timeout returns the effective run timeout: defaulted when unset or
// non-positive, clamped to MaxTimeoutSecs.
func (c *Config) Timeout() time.Duration {
	secs := c.TimeoutSecs
	switch {
	case secs <= 0:
		secs = DefaultTimeoutSecs
	case secs > MaxTimeoutSecs:
		secs = MaxTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}
