package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Config holds embedder construction parameters.
type Config struct {
	Provider  string // openai, genai, local
	APIKey    string
	BaseURL   string // OpenAI-compatible endpoints only
	Model     string
	CacheSize int
}

// New creates an embedder with explicit configuration. An empty provider
// falls back to environment detection.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAIProvider(key, cfg.BaseURL, cfg.Model, cache)
	case ProviderGenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		return NewGenAIProvider(ctx, key, cfg.Model, cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider the environment selects: an explicit
// CODESTORY_EMBEDDING_PROVIDER wins, then available API keys, then local.
func DetectProvider() string {
	if provider := os.Getenv("CODESTORY_EMBEDDING_PROVIDER"); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	if os.Getenv("GEMINI_API_KEY") != "" {
		return ProviderGenAI
	}
	return ProviderLocal
}
