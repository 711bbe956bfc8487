package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parse the config file"})
	require.NoError(t, err)
	second, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parse the config file"})
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, LocalDimension, first.Dimension)
	assert.Equal(t, ProviderLocal, first.Provider)
	assert.NotEmpty(t, first.Hash)
}

func TestLocalProviderUnitNorm(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)

	var sum float64
	for _, v := range emb.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestLocalProviderDistinguishesTexts(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "database connection pool"})
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "render the html template"})
	require.NoError(t, err)

	assert.NotEqual(t, a.Vector, b.Vector)
}

func TestLocalProviderRejectsEmptyText(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestCacheAvoidsProviderCalls(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, &calls, 4)

	cache := NewCache(100)
	p, err := NewOpenAIProvider("sk-test", srv.URL, "", cache)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	first, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
	require.NoError(t, err)
	second, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Size())
}

func TestCacheReturnsCopies(t *testing.T) {
	cache := NewCache(10)
	cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "h"})

	got, ok := cache.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestOpenAIProviderBatchOrder(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, &calls, 3)

	p, err := NewOpenAIProvider("sk-test", srv.URL, "test-embed", nil)
	require.NoError(t, err)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"alpha", "beta"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	// slots encode input order in the fake server
	assert.Equal(t, float32(0), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(1), resp.Embeddings[1].Vector[0])
}

func TestOpenAIProviderRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeEmbeddingResponse(w, r, 2)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL, "", nil)
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "retry me"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestGenAIProviderRequiresKey(t *testing.T) {
	_, err := NewGenAIProvider(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestGenAIProviderCloseIsNoop(t *testing.T) {
	var g GenAIProvider
	assert.NoError(t, g.Close())
}

func TestBatchValidation(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"ok", ""}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFactorySelectsProvider(t *testing.T) {
	ctx := context.Background()

	local, err := New(ctx, Config{Provider: "local"})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, local.Provider())

	_, err = New(ctx, Config{Provider: "bogus"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestDetectProviderEnvOverride(t *testing.T) {
	t.Setenv("CODESTORY_EMBEDDING_PROVIDER", "local")
	t.Setenv("OPENAI_API_KEY", "sk-ignored")
	assert.Equal(t, ProviderLocal, DetectProvider())
}

func TestNormalizeVectorZero(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

// embeddingServer returns dim-dimensional vectors whose first slot encodes
// the input index.
func embeddingServer(t *testing.T, calls *atomic.Int32, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEmbeddingResponse(w, r, dim)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbeddingResponse(w http.ResponseWriter, r *http.Request, dim int) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	data := make([]map[string]any, len(req.Input))
	for i := range req.Input {
		vec := make([]float32, dim)
		vec[0] = float32(i)
		data[i] = map[string]any{"embedding": vec, "index": i}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
}
