package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"codestory/internal/backoff"
)

// GenAIProvider implements Embedder against Google's Gemini embedding API.
type GenAIProvider struct {
	client *genai.Client
	model  string
	cache  *Cache
}

// NewGenAIProvider creates a Gemini embedder.
func NewGenAIProvider(ctx context.Context, apiKey, model string, cache *Cache) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIProvider{
		client: client,
		model:  model,
		cache:  cache,
	}, nil
}

func (g *GenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if g.cache != nil {
		if emb, ok := g.cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := g.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (g *GenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	policy := backoff.Embedding()
	embeddings, err := backoff.Retry(ctx, policy, func() ([]*Embedding, error) {
		return g.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, policy.MaxAttempts, err)
	}

	if g.cache != nil {
		for i, emb := range embeddings {
			hash := ComputeHash(req.Texts[i])
			emb.Hash = hash
			g.cache.Set(hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderGenAI,
		Model:      model,
	}, nil
}

func (g *GenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := g.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	embeddings := make([]*Embedding, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = &Embedding{
			Vector:    emb.Values,
			Dimension: len(emb.Values),
			Provider:  ProviderGenAI,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (g *GenAIProvider) Dimension() int {
	return GenAIDimension
}

func (g *GenAIProvider) Provider() string {
	return ProviderGenAI
}

func (g *GenAIProvider) Model() string {
	return g.model
}

// Close satisfies Embedder. The genai client holds no resources that
// need releasing.
func (g *GenAIProvider) Close() error {
	return nil
}
