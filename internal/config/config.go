// Package config loads the CodeStory server configuration from a YAML file
// with environment-variable overrides for secrets and deploy-time knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// UploadConfig bounds accepted archives.
type UploadConfig struct {
	MaxSizeMB int    `yaml:"max_size_mb"`
	WorkDir   string `yaml:"work_dir"` // root for task-private extraction areas
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding collaborator.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai, genai, local
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	CacheSize int    `yaml:"cache_size"`
}

// PipelineConfig tunes stage execution.
type PipelineConfig struct {
	Workers          int    `yaml:"workers"`            // concurrent tasks across the pool
	SummarizeWorkers int    `yaml:"summarize_workers"`  // fan-out within the summarize stage
	IndexWorkers     int    `yaml:"index_workers"`      // fan-out within the index stage
	RetentionTTL     string `yaml:"retention_ttl"`      // task eviction age
	RetrievalLimit   int    `yaml:"retrieval_limit"`    // default top-K
	BatchFiles       int    `yaml:"batch_files"`        // max files per summary call
	BatchBudgetBytes int    `yaml:"batch_budget_bytes"` // max combined content per summary call
}

// StorageConfig locates the semantic index database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls zap setup.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Upload: UploadConfig{MaxSizeMB: 100, WorkDir: os.TempDir()},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: "60s",
		},
		Embedding: EmbeddingConfig{Provider: "local", CacheSize: 10000},
		Pipeline: PipelineConfig{
			Workers:          4,
			SummarizeWorkers: 4,
			IndexWorkers:     4,
			RetentionTTL:     "24h",
			RetrievalLimit:   8,
			BatchFiles:       20,
			BatchBudgetBytes: 24 * 1024,
		},
		Storage: StorageConfig{Path: ""},
	}
}

// Load reads the YAML file at path (if non-empty), then applies environment
// overrides. Missing file with an empty path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the environment. Secrets are
// expected to arrive this way rather than through the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CODESTORY_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CODESTORY_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CODESTORY_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CODESTORY_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("CODESTORY_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CODESTORY_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CODESTORY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CODESTORY_MAX_UPLOAD_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			cfg.Upload.MaxSizeMB = mb
		}
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.Upload.MaxSizeMB)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got %d", c.Pipeline.Workers)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	if _, err := c.RetentionTTL(); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) * 1024 * 1024
}

// LLMTimeout parses the per-call generation deadline.
func (c *Config) LLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid llm timeout %q: %w", c.LLM.Timeout, err)
	}
	return d, nil
}

// RetentionTTL parses the task eviction age.
func (c *Config) RetentionTTL() (time.Duration, error) {
	if c.Pipeline.RetentionTTL == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Pipeline.RetentionTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid retention ttl %q: %w", c.Pipeline.RetentionTTL, err)
	}
	return d, nil
}
