package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"codestory/internal/archive"
	"codestory/internal/artifact"
	"codestory/internal/config"
	"codestory/internal/embedder"
	"codestory/internal/index"
	"codestory/internal/llm"
	"codestory/internal/pipeline"
	"codestory/internal/storage"
	"codestory/internal/summarize"
	"codestory/internal/task"
)

const sweepInterval = 10 * time.Minute

// app bundles the wired pipeline and everything that needs teardown.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	orch      *pipeline.Orchestrator
	tasks     *task.Store

	store     storage.Store
	generator llm.Generator
	embedder  embedder.Embedder
}

// buildApp wires the full stack from configuration.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	dbPath, err := databasePath(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", dbPath, err)
	}

	emb, err := embedder.New(ctx, embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	generator := newGenerator(cfg, logger)

	extractor := archive.New(cfg.Upload.WorkDir, logger)
	summarizer := summarize.New(generator, logger,
		summarize.WithBatchLimits(cfg.Pipeline.BatchFiles, cfg.Pipeline.BatchBudgetBytes),
		summarize.WithWorkers(cfg.Pipeline.SummarizeWorkers))
	indexer := index.NewIndexer(store, emb, logger, cfg.Pipeline.IndexWorkers)
	retriever := index.NewRetriever(store, emb, logger)
	artifacts := artifact.New(generator, retriever, store, logger)

	ttl, err := cfg.RetentionTTL()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	tasks := task.NewStore(ttl, logger, func(taskID string) {
		_ = indexer.Drop(context.Background(), taskID)
		_ = extractor.Cleanup(taskID)
		retriever.Invalidate(taskID)
	})

	orch := pipeline.New(pipeline.Config{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Workers:        cfg.Pipeline.Workers,
	}, tasks, extractor, summarizer, indexer, retriever, artifacts, logger)

	logger.Info("pipeline wired",
		zap.String("db", dbPath),
		zap.String("embedding_provider", emb.Provider()),
		zap.String("model", generator.Model()),
		zap.String("build_mode", storage.BuildMode),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable))

	return &app{
		cfg:       cfg,
		logger:    logger,
		orch:      orch,
		tasks:     tasks,
		store:     store,
		generator: generator,
		embedder:  emb,
	}, nil
}

func (a *app) close() {
	_ = a.generator.Close()
	_ = a.embedder.Close()
	_ = a.store.Close()
	_ = a.logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGenerator picks the chat completion provider, or a disabled stand-in
// when no key is configured so every stage degrades to its fallback output.
func newGenerator(cfg *config.Config, logger *zap.Logger) llm.Generator {
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured, summaries and artifacts use deterministic fallbacks")
		return llm.NewDisabledProvider()
	}

	timeout, err := cfg.LLMTimeout()
	if err != nil {
		timeout = 60 * time.Second
	}
	provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: timeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("LLM provider unavailable, falling back to deterministic output", zap.Error(err))
		return llm.NewDisabledProvider()
	}
	return provider
}

func databasePath(cfg *config.Config) (string, error) {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".codestory")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(dir, "codestory.db"), nil
}
