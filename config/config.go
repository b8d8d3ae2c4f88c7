// Package config provides configuration loading and management for RubricGuard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete RubricGuard configuration
type Config struct {
	Judge      JudgeConfig      `yaml:"judge"`
	Validation ValidationConfig `yaml:"validation"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// JudgeConfig configures the external judgment service
type JudgeConfig struct {
	// Provider selects the transport ("gemini", "openai", or "stub")
	Provider string `yaml:"provider"`
	// Endpoint is the service base URL (empty = provider default)
	Endpoint string `yaml:"endpoint"`
	// Model is the model name sent to the service
	Model string `yaml:"model"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for a judgment response
	Timeout time.Duration `yaml:"timeout"`
}

// ValidationConfig configures the debounced validation dispatcher and the
// high-risk review policy
type ValidationConfig struct {
	// DebounceWindow is the quiet period before dispatching an edit
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// MinExplanationLength is the trimmed explanation length that must be
	// exceeded before a validation request fires
	MinExplanationLength int `yaml:"min_explanation_length"`
	// PartialDeviation is the score-deviation fraction above which a
	// partially supported judgment is flagged for review
	PartialDeviation float64 `yaml:"partial_deviation"`
}

// CatalogConfig configures the assignment catalog source
type CatalogConfig struct {
	// Path is the catalog YAML file (empty = built-in seed catalog)
	Path string `yaml:"path"`
	// Watch reloads the catalog file when it changes
	Watch bool `yaml:"watch"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Judge: JudgeConfig{
			Provider:    "stub",
			Endpoint:    "",
			Model:       "gemini-3-flash-preview",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Validation: ValidationConfig{
			DebounceWindow:       700 * time.Millisecond,
			MinExplanationLength: 10,
			PartialDeviation:     0.15,
		},
		Catalog: CatalogConfig{
			Path:  "", // Built-in seed catalog
			Watch: false,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Judge.Provider == "" {
		return fmt.Errorf("judge.provider is required")
	}
	if c.Judge.Provider != "stub" && c.Judge.Model == "" {
		return fmt.Errorf("judge.model is required for provider %q", c.Judge.Provider)
	}
	if c.Judge.Temperature < 0 || c.Judge.Temperature > 1 {
		return fmt.Errorf("judge.temperature must be between 0 and 1")
	}
	if c.Validation.DebounceWindow <= 0 {
		return fmt.Errorf("validation.debounce_window must be positive")
	}
	if c.Validation.MinExplanationLength < 0 {
		return fmt.Errorf("validation.min_explanation_length must not be negative")
	}
	if c.Validation.PartialDeviation < 0 || c.Validation.PartialDeviation > 1 {
		return fmt.Errorf("validation.partial_deviation must be between 0 and 1")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Judge
	if other.Judge.Provider != "" {
		c.Judge.Provider = other.Judge.Provider
	}
	if other.Judge.Endpoint != "" {
		c.Judge.Endpoint = other.Judge.Endpoint
	}
	if other.Judge.Model != "" {
		c.Judge.Model = other.Judge.Model
	}
	if other.Judge.Temperature != 0 {
		c.Judge.Temperature = other.Judge.Temperature
	}
	if other.Judge.Timeout != 0 {
		c.Judge.Timeout = other.Judge.Timeout
	}

	// Validation
	if other.Validation.DebounceWindow != 0 {
		c.Validation.DebounceWindow = other.Validation.DebounceWindow
	}
	if other.Validation.MinExplanationLength != 0 {
		c.Validation.MinExplanationLength = other.Validation.MinExplanationLength
	}
	if other.Validation.PartialDeviation != 0 {
		c.Validation.PartialDeviation = other.Validation.PartialDeviation
	}

	// Catalog
	if other.Catalog.Path != "" {
		c.Catalog.Path = other.Catalog.Path
	}
	if other.Catalog.Watch {
		c.Catalog.Watch = true
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
}
