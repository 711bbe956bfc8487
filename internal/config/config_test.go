package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxUploadBytes())

	ttl, err := cfg.RetentionTTL()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
upload:
  max_size_mb: 10
pipeline:
  workers: 2
  retention_ttl: 1h
llm:
  model: gpt-4o
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)

	timeout, err := cfg.LLMTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	ttl, err := cfg.RetentionTTL()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	// unspecified sections keep defaults
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODESTORY_LLM_API_KEY", "sk-test")
	t.Setenv("CODESTORY_PORT", "7070")
	t.Setenv("CODESTORY_MAX_UPLOAD_MB", "5")
	t.Setenv("CODESTORY_EMBEDDING_PROVIDER", "openai")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, "openai", cfg.Embedding.Provider)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"zero upload size", func(c *Config) { c.Upload.MaxSizeMB = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"bad timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
		{"bad ttl", func(c *Config) { c.Pipeline.RetentionTTL = "forever" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
