package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0, 1e-8}
	assert.Equal(t, original, deserializeVector(serializeVector(original)))
	assert.Empty(t, deserializeVector(nil))
}

func TestSearchVectorRanking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIndex(t, store, "task-1", 3)

	for _, e := range []*Entry{
		{TaskID: "task-1", Path: "far.go", Summary: "far", Vector: []float32{0, 0, 1}},
		{TaskID: "task-1", Path: "near.go", Summary: "near", Vector: []float32{1, 0, 0}},
		{TaskID: "task-1", Path: "mid.go", Summary: "mid", Vector: []float32{1, 1, 0}},
	} {
		require.NoError(t, store.AppendEntry(ctx, e))
	}

	results, err := store.SearchVector(ctx, "task-1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near.go", results[0].Path)
	assert.Equal(t, "mid.go", results[1].Path)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestSearchVectorTieBreaksOnPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIndex(t, store, "task-1", 2)

	// same vector means identical similarity; path decides order
	for _, path := range []string{"zeta.go", "alpha.go", "mid.go"} {
		require.NoError(t, store.AppendEntry(ctx, &Entry{
			TaskID: "task-1", Path: path, Vector: []float32{1, 1},
		}))
	}

	results, err := store.SearchVector(ctx, "task-1", []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha.go", results[0].Path)
	assert.Equal(t, "mid.go", results[1].Path)
	assert.Equal(t, "zeta.go", results[2].Path)
}

func TestSearchVectorLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIndex(t, store, "task-1", 2)

	require.NoError(t, store.AppendEntry(ctx, &Entry{TaskID: "task-1", Path: "a", Vector: []float32{1, 0}}))

	results, err := store.SearchVector(ctx, "task-1", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchVector(ctx, "task-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchVectorEmptyIndex(t *testing.T) {
	store := newTestStore(t)
	seedIndex(t, store, "task-1", 2)

	results, err := store.SearchVector(context.Background(), "task-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
