package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bridgefund configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP listener
	Server ServerConfig `yaml:"server"`

	// Generation backend
	LLM LLMConfig `yaml:"llm"`

	// Claim research backend
	Research ResearchConfig `yaml:"research"`

	// Document store
	Store StoreConfig `yaml:"store"`

	// Prompt catalog overrides
	Prompts PromptsConfig `yaml:"prompts"`

	// Identity headers and roles
	Auth AuthConfig `yaml:"auth"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Tracing
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// ResearchConfig configures the web search backend used for claim sources.
type ResearchConfig struct {
	Enabled            bool   `yaml:"enabled"`
	BaseURL            string `yaml:"base_url"`
	MaxResultsPerClaim int    `yaml:"max_results_per_claim"`
	Concurrency        int    `yaml:"concurrency"`
	Timeout            string `yaml:"timeout"`
}

// StoreConfig configures the SQLite document store.
type StoreConfig struct {
	// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// PromptsConfig configures prompt overrides.
type PromptsConfig struct {
	// OverridePath points at a YAML file of stage -> instruction text.
	// Empty disables overrides.
	OverridePath string `yaml:"override_path"`
	Watch        bool   `yaml:"watch"`
}

// AuthConfig configures how the upstream identity provider hands us the caller.
type AuthConfig struct {
	UserHeader string `yaml:"user_header"`
	AdminRole  string `yaml:"admin_role"`
}

// TracingConfig configures OpenTelemetry span emission.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "bridgefund",
		Version: "0.4.0",

		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "180s",
			ShutdownTimeout: "10s",
			MaxBodyBytes:    1 << 20,
		},

		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5-20250929",
			BaseURL:     "https://api.anthropic.com/v1",
			Timeout:     "120s",
			MaxTokens:   8192,
			Temperature: 0.4,
		},

		Research: ResearchConfig{
			Enabled:            true,
			BaseURL:            "https://html.duckduckgo.com/html/",
			MaxResultsPerClaim: 3,
			Concurrency:        4,
			Timeout:            "30s",
		},

		Store: StoreConfig{
			Driver:       "sqlite",
			DatabasePath: "data/bridgefund.db",
		},

		Prompts: PromptsConfig{
			Watch: true,
		},

		Auth: AuthConfig{
			UserHeader: "X-User-Id",
			AdminRole:  "admin",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		Tracing: TracingConfig{
			ServiceName: "bridgefund",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Generation backend key (later entries win)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
		defaults := DefaultConfig().LLM
		if c.LLM.Model == "" || c.LLM.Model == defaults.Model {
			c.LLM.Model = DefaultGeminiModel
		}
		if c.LLM.BaseURL == defaults.BaseURL {
			c.LLM.BaseURL = ""
		}
	}
	if model := os.Getenv("BRIDGEFUND_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if url := os.Getenv("BRIDGEFUND_RESEARCH_URL"); url != "" {
		c.Research.BaseURL = url
	}
	if addr := os.Getenv("BRIDGEFUND_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("BRIDGEFUND_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the generation backend timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetResearchTimeout returns the research backend timeout as a duration.
func (c *Config) GetResearchTimeout() time.Duration {
	return parseDuration(c.Research.Timeout, 30*time.Second)
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout. It must outlive a generation call.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 180*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// ValidProviders lists all supported generation backends.
var ValidProviders = []string{"anthropic", "gemini"}

// ValidDrivers lists the registered SQLite drivers.
var ValidDrivers = []string{"sqlite", "sqlite3"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY)")
	}

	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if !contains(ValidDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}

	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}

	if c.Auth.UserHeader == "" {
		return fmt.Errorf("auth.user_header is required")
	}

	return nil
}

// IsResearchEnabled returns whether claim research is enabled.
func (c *Config) IsResearchEnabled() bool {
	return c.Research.Enabled && c.Research.BaseURL != ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
