package index

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"codestory/internal/embedder"
	"codestory/internal/storage"
	"codestory/pkg/types"
)

const (
	// DefaultLimit is the top-K used when the caller passes zero.
	DefaultLimit = 8
	// MaxLimit caps the top-K a caller may request.
	MaxLimit = 32
	// queryCacheSize bounds the number of cached query results.
	queryCacheSize = 512
)

// Retriever answers similarity queries against sealed task indexes.
type Retriever struct {
	store    storage.Store
	embedder embedder.Embedder
	logger   *zap.Logger
	cache    *lru.Cache[string, []storage.VectorResult]
}

// NewRetriever creates a Retriever sharing the pipeline's store and embedder.
func NewRetriever(store storage.Store, emb embedder.Embedder, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[string, []storage.VectorResult](queryCacheSize)
	return &Retriever{store: store, embedder: emb, logger: logger, cache: cache}
}

// Retrieve embeds the query and returns the top-K most similar entries of
// the task's index. The index must be sealed; querying a part-built index
// returns ErrIndexNotReady. The query embedding must come from the same
// provider and model the index was built with.
func (r *Retriever) Retrieve(ctx context.Context, taskID, query string, k int) ([]storage.VectorResult, error) {
	if k <= 0 {
		k = DefaultLimit
	}
	if k > MaxLimit {
		k = MaxLimit
	}

	idx, err := r.store.GetIndex(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIndexNotReady, err)
	}
	if !idx.Sealed {
		return nil, fmt.Errorf("%w: index for task %s is still building", types.ErrIndexNotReady, taskID)
	}
	if r.embedder.Provider() != idx.Provider || r.embedder.Model() != idx.Model {
		return nil, fmt.Errorf("index built with %s/%s, embedder is %s/%s",
			idx.Provider, idx.Model, r.embedder.Provider(), r.embedder.Model())
	}

	cacheKey := fmt.Sprintf("%s|%d|%s", taskID, k, embedder.ComputeHash(query))
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	queryEmb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.SearchVector(ctx, taskID, queryEmb.Vector, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	r.cache.Add(cacheKey, results)
	r.logger.Debug("retrieval served",
		zap.String("task", taskID),
		zap.Int("k", k),
		zap.Int("hits", len(results)))
	return results, nil
}

// Invalidate drops cached results for a task, called on eviction.
func (r *Retriever) Invalidate(taskID string) {
	prefix := taskID + "|"
	for _, key := range r.cache.Keys() {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			r.cache.Remove(key)
		}
	}
}
