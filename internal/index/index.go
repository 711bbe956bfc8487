// Package index builds and queries the per-task semantic index. The Indexer
// embeds file digests and appends them to storage, sealing the index once
// every entry is written; the Retriever answers queries against sealed
// indexes only, caching recent query results.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codestory/internal/embedder"
	"codestory/internal/storage"
	"codestory/pkg/types"
)

const (
	// DefaultWorkers is the embedding fan-out within the index stage.
	DefaultWorkers = 4
	// embedBatchSize is the number of digests per embedding call.
	embedBatchSize = 20
)

// Indexer writes digests into a task's semantic index.
type Indexer struct {
	store    storage.Store
	embedder embedder.Embedder
	logger   *zap.Logger
	workers  int
}

// NewIndexer creates an Indexer over the given store and embedder.
func NewIndexer(store storage.Store, emb embedder.Embedder, logger *zap.Logger, workers int) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Indexer{store: store, embedder: emb, logger: logger, workers: workers}
}

// Build embeds every digest and writes the task's index, sealing it at the
// end. onProgress, if set, receives the cumulative count of indexed files.
// The index is created fresh; a pre-existing index for the task is an error
// since each submission owns exactly one run.
func (ix *Indexer) Build(ctx context.Context, taskID string, digests []*types.Digest, onProgress func(done int)) error {
	if err := ix.store.CreateIndex(ctx, &storage.Index{
		TaskID:    taskID,
		Provider:  ix.embedder.Provider(),
		Model:     ix.embedder.Model(),
		Dimension: ix.embedder.Dimension(),
	}); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	batches := splitDigests(digests, embedBatchSize)

	type batchResult struct {
		digests    []*types.Digest
		embeddings []*embedder.Embedding
	}
	results := make([]batchResult, len(batches))

	// Embedding calls fan out; appends happen serially afterwards so entry
	// writes never interleave with provider latency.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, d := range batch {
				texts[j] = d.EmbeddingText()
			}
			resp, err := ix.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("embed batch of %d: %w", len(batch), err)
			}
			if len(resp.Embeddings) != len(batch) {
				return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
			}
			results[i] = batchResult{digests: batch, embeddings: resp.Embeddings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	done := 0
	for _, res := range results {
		for j, d := range res.digests {
			entry := &storage.Entry{
				TaskID:    taskID,
				Path:      d.Path,
				Language:  d.Language,
				Symbols:   d.Symbols,
				Imports:   d.Imports,
				Summary:   d.Summary,
				Preview:   d.Preview,
				LineCount: d.LineCount,
				Truncated: d.Truncated,
				Vector:    res.embeddings[j].Vector,
			}
			if err := ix.store.AppendEntry(ctx, entry); err != nil {
				return fmt.Errorf("append %s: %w", d.Path, err)
			}
			done++
		}
		if onProgress != nil {
			onProgress(done)
		}
	}

	if err := ix.store.SealIndex(ctx, taskID); err != nil {
		return fmt.Errorf("seal index: %w", err)
	}

	ix.logger.Info("index sealed",
		zap.String("task", taskID),
		zap.Int("entries", done),
		zap.String("provider", ix.embedder.Provider()))
	return nil
}

// Drop removes a task's index, for eviction and failed runs.
func (ix *Indexer) Drop(ctx context.Context, taskID string) error {
	return ix.store.DeleteIndex(ctx, taskID)
}

func splitDigests(digests []*types.Digest, size int) [][]*types.Digest {
	var batches [][]*types.Digest
	for start := 0; start < len(digests); start += size {
		end := min(start+size, len(digests))
		batches = append(batches, digests[start:end])
	}
	return batches
}
