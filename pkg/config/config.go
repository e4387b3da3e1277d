// Package config loads and validates Oscillo's host configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oscillo/oscillo/pkg/plugins/sandbox"
)

// Config is the host configuration for the plugin subsystem.
type Config struct {
	// PluginRoot is the directory scanned for plugin subdirectories.
	PluginRoot string `yaml:"plugin_root"`

	// Watch enables filesystem watching of PluginRoot so new plugins are
	// discovered without a restart.
	Watch bool `yaml:"watch"`

	// Limits applies to every sandboxed execution.
	Limits sandbox.Limits `yaml:"limits"`

	// DisableAfter is the consecutive-violation count after which the
	// registry proposes disabling a plugin.
	DisableAfter int `yaml:"disable_after"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SetDefaults applies default values for anything left unset.
func (c *Config) SetDefaults() {
	if c.PluginRoot == "" {
		c.PluginRoot = "plugins"
	}
	if c.Limits == (sandbox.Limits{}) {
		c.Limits = sandbox.DefaultLimits()
	}
	if c.DisableAfter == 0 {
		c.DisableAfter = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.PluginRoot == "" {
		return fmt.Errorf("plugin_root cannot be empty")
	}
	if c.DisableAfter < 1 {
		return fmt.Errorf("disable_after must be at least 1, got %d", c.DisableAfter)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Default returns a ready-to-use configuration without reading any file.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads a YAML config file, expands ${VAR} references against the
// environment, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. See Load.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	expanded, err := yaml.Marshal(expandEnvInData(raw))
	if err != nil {
		return nil, fmt.Errorf("expand config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(expanded, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}
