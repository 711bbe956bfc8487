// Package embedder turns digest text and retrieval queries into vectors.
// Providers: OpenAI-compatible HTTP endpoints, Google GenAI, and a
// deterministic local fallback that needs no credentials. All providers
// share a content-hash LRU cache so unchanged text is never re-embedded.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is a vector embedding with provenance metadata. Provider and
// Model are recorded into the per-task index so retrieval can guarantee
// query vectors come from the same space as stored ones.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // content hash, cache key
}

// EmbeddingRequest asks for one embedding.
type EmbeddingRequest struct {
	Text  string
	Model string // optional model override
}

// BatchEmbeddingRequest asks for embeddings of several texts in one call.
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse carries batch results in input order.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into vectors. Implementations must be safe for
// concurrent use; the index stage fans out over one shared instance.
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text.
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts in one call.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider.
	Dimension() int

	// Provider returns the provider name.
	Provider() string

	// Model returns the model name.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash.
// Re-embedding unchanged text across tasks hits the cache instead of
// the provider.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates an embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// only reachable with a non-positive size
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of a cached embedding. Copies keep caller
// mutations out of the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding; LRU eviction applies at capacity.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 content hash used as the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates an embedding request.
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
