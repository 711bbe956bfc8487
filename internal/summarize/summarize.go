package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codestory/internal/llm"
	"codestory/pkg/types"
)

const (
	// DefaultBatchFiles caps files per generation call.
	DefaultBatchFiles = 20
	// DefaultBatchBudget caps combined digest bytes per generation call.
	DefaultBatchBudget = 24 * 1024
	// DefaultWorkers is the fan-out across batches.
	DefaultWorkers = 4
)

const summarySystemPrompt = "You are a senior engineer explaining a codebase to a newcomer. " +
	"For each file you receive, write one or two plain sentences describing what the file does. " +
	"Respond with a single JSON object mapping each file path to its summary. No other text."

// Summarizer enriches digests with plain-language summaries.
type Summarizer struct {
	generator llm.Generator
	logger    *zap.Logger

	batchFiles  int
	batchBudget int
	workers     int
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithBatchLimits overrides the per-call file count and byte budget.
func WithBatchLimits(files, budgetBytes int) Option {
	return func(s *Summarizer) {
		if files > 0 {
			s.batchFiles = files
		}
		if budgetBytes > 0 {
			s.batchBudget = budgetBytes
		}
	}
}

// WithWorkers overrides the batch fan-out.
func WithWorkers(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a Summarizer over the given generator.
func New(generator llm.Generator, logger *zap.Logger, opts ...Option) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Summarizer{
		generator:   generator,
		logger:      logger,
		batchFiles:  DefaultBatchFiles,
		batchBudget: DefaultBatchBudget,
		workers:     DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize fills the Summary field of every digest, batching files to
// bound call count and fanning batches out across workers. A failed batch
// falls back to deterministic summaries instead of failing the task; the
// returned error is non-nil only when the context is cancelled.
// onProgress, if set, receives the cumulative count of summarized files.
func (s *Summarizer) Summarize(ctx context.Context, digests []*types.Digest, onProgress func(done int)) error {
	if len(digests) == 0 {
		return nil
	}

	batches := s.splitBatches(digests)

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.summarizeBatch(gctx, batch)

			mu.Lock()
			done += len(batch)
			current := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(current)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// a cancelled run must not look like a completed one even when every
	// batch degraded to fallback summaries
	return ctx.Err()
}

// splitBatches groups digests respecting both the file count and the byte
// budget. A single oversized digest still gets its own batch.
func (s *Summarizer) splitBatches(digests []*types.Digest) [][]*types.Digest {
	var batches [][]*types.Digest
	var current []*types.Digest
	currentBytes := 0

	for _, d := range digests {
		cost := len(d.Preview) + len(d.Comment) + len(d.Path)
		if len(current) > 0 && (len(current) >= s.batchFiles || currentBytes+cost > s.batchBudget) {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, d)
		currentBytes += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// summarizeBatch asks the generator for summaries and applies them. Any
// failure or missing path degrades to a deterministic fallback summary.
func (s *Summarizer) summarizeBatch(ctx context.Context, batch []*types.Digest) {
	prompt := buildBatchPrompt(batch)

	text, err := s.generator.Generate(ctx, llm.GenerateRequest{
		System: summarySystemPrompt,
		Prompt: prompt,
	})

	summaries := map[string]string{}
	if err != nil {
		s.logger.Warn("summary generation failed, using fallbacks",
			zap.Int("files", len(batch)), zap.Error(err))
	} else if err := llm.ExtractJSON(text, &summaries); err != nil {
		s.logger.Warn("unparseable summary response, using fallbacks",
			zap.Int("files", len(batch)), zap.Error(err))
	}

	for _, d := range batch {
		if summary, ok := summaries[d.Path]; ok && strings.TrimSpace(summary) != "" {
			d.Summary = strings.TrimSpace(summary)
		} else {
			d.Summary = FallbackSummary(d)
		}
	}
}

// buildBatchPrompt serializes a batch into the generation request.
func buildBatchPrompt(batch []*types.Digest) string {
	type fileInfo struct {
		Path     string   `json:"path"`
		Language string   `json:"language,omitempty"`
		Symbols  []string `json:"symbols,omitempty"`
		Imports  []string `json:"imports,omitempty"`
		Comment  string   `json:"comment,omitempty"`
		Excerpt  string   `json:"excerpt,omitempty"`
	}

	infos := make([]fileInfo, len(batch))
	for i, d := range batch {
		infos[i] = fileInfo{
			Path:     d.Path,
			Language: d.Language,
			Symbols:  d.Symbols,
			Imports:  d.Imports,
			Comment:  d.Comment,
			Excerpt:  firstChars(d.Preview, 1500),
		}
	}

	payload, _ := json.Marshal(infos)
	return fmt.Sprintf("Summarize each of these %d files:\n%s", len(batch), payload)
}

// FallbackSummary builds a deterministic summary from digest structure,
// used when the generator is unavailable or skips a file.
func FallbackSummary(d *types.Digest) string {
	var b strings.Builder

	switch d.Language {
	case "config":
		b.WriteString("Configuration file")
	case "doc":
		b.WriteString("Documentation file")
	case "markup", "style":
		b.WriteString("Presentation file")
	case "":
		b.WriteString("Source file")
	default:
		b.WriteString(strings.ToUpper(d.Language[:1]) + d.Language[1:] + " source file")
	}

	if len(d.Symbols) > 0 {
		shown := d.Symbols
		if len(shown) > 5 {
			shown = shown[:5]
		}
		b.WriteString(" defining ")
		b.WriteString(strings.Join(shown, ", "))
	}
	if d.Comment != "" {
		b.WriteString(". ")
		b.WriteString(firstChars(d.Comment, 120))
	}
	b.WriteString(".")
	return b.String()
}
