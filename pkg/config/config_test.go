package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeConfig(t, `
default_model: gpt-4o-mini
openai_key: test-key
temperature: 0.5
max_memory: 8
session:
  backend: memory
  ttl: 15m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, "test-key", cfg.OpenAIKey)
	assert.Equal(t, float32(0.5), cfg.Temperature)
	assert.Equal(t, 8, cfg.MaxMemory)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `openai_key: k`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, float32(1.0), cfg.TopP)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoad_EnvFallbackForKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	path := writeConfig(t, `default_model: gpt-4o-mini`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.OpenAIKey)
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }},
		{"top_p too high", func(c *Config) { c.TopP = 1.5 }},
		{"max_memory too high", func(c *Config) { c.MaxMemory = 51 }},
		{"max_memory negative", func(c *Config) { c.MaxMemory = -1 }},
		{"unknown backend", func(c *Config) { c.Session.Backend = "sqlite" }},
		{"redis without addr", func(c *Config) {
			c.Session.Backend = "redis"
			c.Session.RedisAddr = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
