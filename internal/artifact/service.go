// Package artifact generates the explanation artifacts for a ready task:
// the layered architecture graph, scenario chat scripts, and the glossary.
// Every generator grounds its prompt in retrieved index entries, validates
// and repairs the model's JSON, and degrades to a deterministic template
// when the collaborator is unavailable. Generation is idempotent per
// (task, kind, params); callers cache by Params.Hash.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"codestory/internal/index"
	"codestory/internal/llm"
	"codestory/internal/storage"
	"codestory/pkg/types"
)

const (
	// contextEntryLimit caps how many index entries feed one prompt.
	contextEntryLimit = 30
	// retrievalK is the top-K for scenario-driven retrieval.
	retrievalK = 12
)

// Params narrows artifact generation. Only chat scripts use Scenario;
// other kinds ignore it.
type Params struct {
	Scenario string
}

// Hash returns the cache key component for these params.
func (p Params) Hash() string {
	h := sha256.Sum256([]byte("scenario=" + p.Scenario))
	return hex.EncodeToString(h[:8])
}

// Service generates artifacts from a task's sealed index.
type Service struct {
	generator llm.Generator
	retriever *index.Retriever
	store     storage.Store
	logger    *zap.Logger
}

// New creates the artifact service.
func New(generator llm.Generator, retriever *index.Retriever, store storage.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		generator: generator,
		retriever: retriever,
		store:     store,
		logger:    logger,
	}
}

// Generate builds one artifact. The result always passes
// types.Artifact.Validate; generation failures degrade to deterministic
// fallbacks rather than erroring, so the only error paths are an unready
// index and cancellation.
func (s *Service) Generate(ctx context.Context, taskID string, kind types.ArtifactKind, p Params) (*types.Artifact, error) {
	switch kind {
	case types.ArtifactArchitectureGraph:
		return s.generateArchitecture(ctx, taskID)
	case types.ArtifactChatScript:
		return s.generateChatScript(ctx, taskID, p.Scenario)
	case types.ArtifactGlossary:
		return s.generateGlossary(ctx, taskID)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownArtifactKind, kind)
	}
}

// entriesContext assembles prompt context from index entries, capped at
// contextEntryLimit.
func entriesContext(entries []*storage.Entry) string {
	if len(entries) > contextEntryLimit {
		entries = entries[:contextEntryLimit]
	}

	var b strings.Builder
	for _, e := range entries {
		writeContextLine(&b, e.Path, e.Language, e.Symbols, e.Summary)
	}
	return b.String()
}

// retrievedContext assembles prompt context from the entries most similar
// to the query.
func (s *Service) retrievedContext(ctx context.Context, taskID, query string) (string, error) {
	results, err := s.retriever.Retrieve(ctx, taskID, query, retrievalK)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range results {
		writeContextLine(&b, r.Path, r.Language, nil, r.Summary)
	}
	return b.String(), nil
}

func writeContextLine(b *strings.Builder, path, language string, symbols []string, summary string) {
	b.WriteString("- ")
	b.WriteString(path)
	if language != "" {
		b.WriteString(" (")
		b.WriteString(language)
		b.WriteString(")")
	}
	if len(symbols) > 0 {
		shown := symbols
		if len(shown) > 8 {
			shown = shown[:8]
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(shown, ", "))
		b.WriteString("]")
	}
	if summary != "" {
		b.WriteString(": ")
		b.WriteString(summary)
	}
	b.WriteString("\n")
}
