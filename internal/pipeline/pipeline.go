// Package pipeline drives the analysis lifecycle: validate the upload
// synchronously, then run extract, redact, summarize, index and finalize
// stages on a bounded worker pool, advancing task status and progress as
// fixed bands per stage. Artifact generation runs on demand once a task is
// ready, deduplicated so identical concurrent requests share one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"codestory/internal/archive"
	"codestory/internal/artifact"
	"codestory/internal/index"
	"codestory/internal/redact"
	"codestory/internal/storage"
	"codestory/internal/summarize"
	"codestory/internal/task"
	"codestory/pkg/types"
)

// Stage progress bands. Each stage ends at its upper bound; within a stage
// progress interpolates by completed work.
const (
	progressExtractEnd   = 10
	progressRedactEnd    = 15
	progressSummarizeEnd = 70
	progressIndexEnd     = 95
	progressDone         = 100
)

// Config bounds the orchestrator.
type Config struct {
	MaxUploadBytes int64
	Workers        int
}

// Orchestrator owns task execution. It is the only writer to the task
// store.
type Orchestrator struct {
	cfg        Config
	tasks      *task.Store
	extractor  *archive.Extractor
	summarizer *summarize.Summarizer
	indexer    *index.Indexer
	retriever  *index.Retriever
	artifacts  *artifact.Service
	logger     *zap.Logger

	sem     chan struct{}
	flights singleflight.Group
}

// New creates the orchestrator.
func New(cfg Config, tasks *task.Store, extractor *archive.Extractor, summarizer *summarize.Summarizer,
	indexer *index.Indexer, retriever *index.Retriever, artifacts *artifact.Service, logger *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		tasks:      tasks,
		extractor:  extractor,
		summarizer: summarizer,
		indexer:    indexer,
		retriever:  retriever,
		artifacts:  artifacts,
		logger:     logger,
		sem:        make(chan struct{}, cfg.Workers),
	}
}

// Submit validates the upload synchronously and enqueues the analysis run.
// Validation failures return immediately and never create a task.
func (o *Orchestrator) Submit(fileName string, data []byte) (*types.Task, error) {
	if len(data) == 0 {
		return nil, types.ErrEmptyUpload
	}
	if o.cfg.MaxUploadBytes > 0 && int64(len(data)) > o.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d byte limit",
			types.ErrSizeLimitExceeded, len(data), o.cfg.MaxUploadBytes)
	}
	if !strings.HasSuffix(strings.ToLower(fileName), ".zip") || !archive.IsZip(data) {
		return nil, fmt.Errorf("%w: only zip archives are accepted", types.ErrUnsupportedFormat)
	}

	t := &types.Task{
		ID:       uuid.NewString(),
		FileName: fileName,
		Status:   types.StatusQueued,
		Message:  "queued for analysis",
	}
	if err := o.tasks.Create(t); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.tasks.SetCancel(t.ID, cancel)

	go o.run(runCtx, t.ID, data)

	o.logger.Info("task submitted",
		zap.String("task", t.ID),
		zap.String("file", fileName),
		zap.Int("bytes", len(data)))
	return o.tasks.Get(t.ID)
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(taskID string) (*types.Task, error) {
	return o.tasks.Get(taskID)
}

// Structure returns the enriched file tree and diagram source. Available
// only once the task is ready.
func (o *Orchestrator) Structure(taskID string) (*types.Structure, error) {
	t, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !t.Status.AtLeastReady() {
		return nil, fmt.Errorf("%w: task is %s", types.ErrNotReady, t.Status)
	}
	tree, err := o.tasks.Tree(taskID)
	if err != nil {
		return nil, err
	}
	diagram, err := o.tasks.Diagram(taskID)
	if err != nil {
		return nil, err
	}
	return &types.Structure{Tree: tree, DiagramSource: diagram}, nil
}

// History lists task snapshots newest-first.
func (o *Orchestrator) History(limit int) []*types.Task {
	return o.tasks.History(limit)
}

// Cancel interrupts a running task. The run loop records the cancellation
// as the task's terminal failure. Cancelling a task whose pipeline already
// finished is a no-op.
func (o *Orchestrator) Cancel(taskID string) error {
	return o.tasks.Cancel(taskID)
}

// RequestArtifact returns the artifact for (kind, params), generating it on
// first request. Identical concurrent requests share a single generation.
// Tasks below ready return ErrNotReady; failed tasks return ErrTaskTerminal.
func (o *Orchestrator) RequestArtifact(ctx context.Context, taskID string, kind types.ArtifactKind, p artifact.Params) (*types.Artifact, error) {
	t, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == types.StatusFailed {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskTerminal, taskID)
	}
	if !t.Status.AtLeastReady() {
		return nil, fmt.Errorf("%w: task is %s", types.ErrNotReady, t.Status)
	}

	paramsHash := p.Hash()
	if cached, ok := o.tasks.GetArtifact(taskID, kind, paramsHash); ok {
		return cached, nil
	}

	flightKey := taskID + "|" + string(kind) + "|" + paramsHash
	result, err, _ := o.flights.Do(flightKey, func() (interface{}, error) {
		// a racing flight may have cached meanwhile
		if cached, ok := o.tasks.GetArtifact(taskID, kind, paramsHash); ok {
			return cached, nil
		}

		o.maybeAdvance(taskID, types.StatusGenerating, progressDone, "generating "+string(kind))

		generated, err := o.artifacts.Generate(ctx, taskID, kind, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrGenerationFailed, err)
		}
		if err := o.tasks.PutArtifact(taskID, kind, paramsHash, generated); err != nil {
			return nil, err
		}

		o.maybeAdvance(taskID, types.StatusCompleted, progressDone, "artifacts available")
		return generated, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Artifact), nil
}

// CachedArtifact returns the artifact for (kind, params) only if a prior
// request already generated it. It never triggers generation.
func (o *Orchestrator) CachedArtifact(taskID string, kind types.ArtifactKind, p artifact.Params) (*types.Artifact, bool, error) {
	if _, err := o.tasks.Get(taskID); err != nil {
		return nil, false, err
	}
	cached, ok := o.tasks.GetArtifact(taskID, kind, p.Hash())
	return cached, ok, nil
}

// Search runs a semantic query against a ready task's index.
func (o *Orchestrator) Search(ctx context.Context, taskID, query string, limit int) ([]storage.VectorResult, error) {
	if _, err := o.tasks.Get(taskID); err != nil {
		return nil, err
	}
	return o.retriever.Retrieve(ctx, taskID, query, limit)
}

// run executes the pipeline stages for one task.
func (o *Orchestrator) run(ctx context.Context, taskID string, data []byte) {
	// bounded pool; tasks wait here as queued
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		o.fail(taskID, types.StageExtract, ctx.Err())
		return
	}

	defer o.tasks.SetCancel(taskID, nil)

	tree, err := o.stageExtract(ctx, taskID, data)
	if err != nil {
		o.fail(taskID, types.StageExtract, err)
		return
	}

	digests, err := o.stageRedact(ctx, taskID, tree)
	if err != nil {
		o.fail(taskID, types.StageRedact, err)
		o.cleanup(taskID)
		return
	}

	if err := o.stageSummarize(ctx, taskID, digests); err != nil {
		o.fail(taskID, types.StageSummarize, err)
		o.cleanup(taskID)
		return
	}

	if err := o.stageIndex(ctx, taskID, digests); err != nil {
		o.fail(taskID, types.StageIndex, err)
		o.cleanup(taskID)
		return
	}

	if err := o.stageFinalize(ctx, taskID, tree, digests); err != nil {
		o.fail(taskID, types.StageFinalize, err)
		o.cleanup(taskID)
		return
	}

	o.logger.Info("task ready",
		zap.String("task", taskID),
		zap.Int("files", len(digests)))
}

func (o *Orchestrator) stageExtract(ctx context.Context, taskID string, data []byte) (*types.FileNode, error) {
	if err := o.tasks.Advance(taskID, types.StatusExtracting, 0, "unpacking archive"); err != nil {
		return nil, err
	}

	t, err := o.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	tree, err := o.extractor.Extract(taskID, t.FileName, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := o.tasks.SetTree(taskID, tree); err != nil {
		return nil, err
	}
	return tree, o.tasks.Advance(taskID, types.StatusExtracting, progressExtractEnd, "archive unpacked")
}

// stageRedact reads every file, strips credentials and identifiers, and
// builds the structural digest. Files with unsupported encodings or on the
// skip lists are left out rather than failing the task.
func (o *Orchestrator) stageRedact(ctx context.Context, taskID string, tree *types.FileNode) ([]*types.Digest, error) {
	files := tree.Files()
	var digests []*types.Digest

	for i, node := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if summarize.ShouldSkip(node.Path) {
			continue
		}

		content, err := readFile(node)
		if err != nil {
			o.logger.Warn("unreadable file skipped",
				zap.String("task", taskID), zap.String("path", node.Path), zap.Error(err))
			continue
		}

		cleaned := redact.File(node.Path, string(content))
		digest, err := summarize.BuildDigest(node.Path, []byte(cleaned))
		if err != nil {
			if errors.Is(err, types.ErrUnsupportedEncoding) {
				continue
			}
			return nil, err
		}
		digests = append(digests, digest)

		progress := progressExtractEnd + (progressRedactEnd-progressExtractEnd)*(i+1)/len(files)
		if err := o.tasks.Advance(taskID, types.StatusExtracting, progress, "preparing files"); err != nil {
			return nil, err
		}
	}

	if len(digests) == 0 {
		return nil, fmt.Errorf("%w: no analyzable files in archive", types.ErrEmptyArchive)
	}
	return digests, o.tasks.Advance(taskID, types.StatusExtracting, progressRedactEnd, "files prepared")
}

func (o *Orchestrator) stageSummarize(ctx context.Context, taskID string, digests []*types.Digest) error {
	if err := o.tasks.Advance(taskID, types.StatusSummarizing, progressRedactEnd, "summarizing files"); err != nil {
		return err
	}

	total := len(digests)
	err := o.summarizer.Summarize(ctx, digests, func(done int) {
		progress := progressRedactEnd + (progressSummarizeEnd-progressRedactEnd)*done/total
		_ = o.tasks.Advance(taskID, types.StatusSummarizing, progress,
			fmt.Sprintf("summarized %d of %d files", done, total))
	})
	if err != nil {
		return err
	}
	return o.tasks.Advance(taskID, types.StatusSummarizing, progressSummarizeEnd, "summaries complete")
}

func (o *Orchestrator) stageIndex(ctx context.Context, taskID string, digests []*types.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.tasks.Advance(taskID, types.StatusIndexing, progressSummarizeEnd, "building semantic index"); err != nil {
		return err
	}

	total := len(digests)
	err := o.indexer.Build(ctx, taskID, digests, func(done int) {
		progress := progressSummarizeEnd + (progressIndexEnd-progressSummarizeEnd)*done/total
		_ = o.tasks.Advance(taskID, types.StatusIndexing, progress,
			fmt.Sprintf("indexed %d of %d files", done, total))
	})
	if err != nil {
		return err
	}
	return o.tasks.Advance(taskID, types.StatusIndexing, progressIndexEnd, "index sealed")
}

// stageFinalize enriches the file tree with generated summaries, builds the
// architecture diagram, and marks the task ready.
func (o *Orchestrator) stageFinalize(ctx context.Context, taskID string, tree *types.FileNode, digests []*types.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	byPath := make(map[string]*types.Digest, len(digests))
	for _, d := range digests {
		byPath[d.Path] = d
	}
	_ = tree.Walk(func(node *types.FileNode) error {
		if d, ok := byPath[node.Path]; ok {
			node.Summary = d.Summary
			node.Description = summarize.FallbackSummary(d)
		}
		return nil
	})

	if err := o.tasks.Advance(taskID, types.StatusIndexing, progressIndexEnd+2, "building architecture diagram"); err != nil {
		return err
	}

	// generation degrades to a deterministic diagram internally, so the
	// only failures left are plumbing ones
	arch, err := o.artifacts.Generate(ctx, taskID, types.ArtifactArchitectureGraph, artifact.Params{})
	if err != nil {
		o.logger.Warn("architecture diagram unavailable",
			zap.String("task", taskID), zap.Error(err))
	} else {
		if err := o.tasks.PutArtifact(taskID, types.ArtifactArchitectureGraph, artifact.Params{}.Hash(), arch); err != nil {
			return err
		}
		if err := o.tasks.SetDiagram(taskID, arch.ArchitectureGraph.DiagramSource); err != nil {
			return err
		}
	}

	return o.tasks.Advance(taskID, types.StatusReady, progressDone, "analysis complete")
}

// fail records the terminal failure unless the task already failed (a
// cancelled run may race its own failure record).
func (o *Orchestrator) fail(taskID string, stage types.Stage, err error) {
	reason := "pipeline failure"
	if errors.Is(err, context.Canceled) || errors.Is(err, types.ErrTaskCancelled) {
		reason = types.ReasonCancelled
	}

	failErr := o.tasks.Fail(taskID, types.ErrorRecord{
		Stage:  stage,
		Reason: reason,
		Cause:  err.Error(),
	})
	if failErr != nil && !errors.Is(failErr, types.ErrTaskTerminal) {
		o.logger.Error("could not record task failure",
			zap.String("task", taskID), zap.Error(failErr))
	}

	o.logger.Warn("task failed",
		zap.String("task", taskID),
		zap.String("stage", string(stage)),
		zap.Error(err))
}

// maybeAdvance moves the task forward, swallowing the regression error a
// second artifact request would hit once the task is already completed.
func (o *Orchestrator) maybeAdvance(taskID string, status types.TaskStatus, progress int, message string) {
	if err := o.tasks.Advance(taskID, status, progress, message); err != nil {
		o.logger.Debug("status unchanged",
			zap.String("task", taskID), zap.String("status", string(status)), zap.Error(err))
	}
}

// cleanup drops the partial index and extraction area of a failed run.
func (o *Orchestrator) cleanup(taskID string) {
	_ = o.extractor.Cleanup(taskID)
	_ = o.indexer.Drop(context.Background(), taskID)
}

func readFile(node *types.FileNode) ([]byte, error) {
	rc, err := node.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
