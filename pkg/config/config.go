// Package config loads service configuration from a YAML file with
// environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// API Keys
	OpenAIKey string `yaml:"openai_key"`

	// Model Configuration
	DefaultModel  string  `yaml:"default_model"`
	Temperature   float32 `yaml:"temperature"`
	TopP          float32 `yaml:"top_p"`
	MaxTokens     int     `yaml:"max_tokens"`
	MaxMemory     int     `yaml:"max_memory"`
	MaxIterations int     `yaml:"max_iterations"`

	// Server Configuration
	Server ServerConfig `yaml:"server"`

	// Session Configuration
	Session SessionConfig `yaml:"session"`

	// Observability Configuration
	TraceExporter string `yaml:"trace_exporter"` // stdout, none
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	// Backend selects the store: "memory" or "redis".
	Backend string `yaml:"backend"`

	// TTL is the idle session expiry.
	TTL time.Duration `yaml:"ttl"`

	// Redis settings, used when Backend is "redis".
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads configuration from a YAML file, applies defaults, and
// falls back to the environment for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultModel == "" {
		c.DefaultModel = "gpt-4o-mini"
	}
	if c.TopP == 0 {
		c.TopP = 1.0
	}
	if c.MaxMemory == 0 {
		c.MaxMemory = 10
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 30 * time.Minute
	}
	if c.TraceExporter == "" {
		c.TraceExporter = "none"
	}
}

func (c *Config) applyEnv() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Session.RedisAddr == "" {
		c.Session.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if c.Session.RedisPassword == "" {
		c.Session.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
}

// Validate rejects out-of-range generation settings.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p %v out of range [0, 1]", c.TopP)
	}
	if c.MaxMemory < 0 || c.MaxMemory > 50 {
		return fmt.Errorf("max_memory %d out of range [0, 50]", c.MaxMemory)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations %d must be at least 1", c.MaxIterations)
	}
	if c.Session.Backend != "memory" && c.Session.Backend != "redis" {
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.RedisAddr == "" {
		return fmt.Errorf("session backend is redis but no redis address configured")
	}
	return nil
}
