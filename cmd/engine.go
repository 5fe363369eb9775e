package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatforge/knowledge/internal/chunkstore"
	"github.com/chatforge/knowledge/internal/config"
	"github.com/chatforge/knowledge/internal/database"
	"github.com/chatforge/knowledge/internal/embedding"
	"github.com/chatforge/knowledge/internal/knowledge"
	"github.com/chatforge/knowledge/internal/reindex"
	"github.com/chatforge/knowledge/internal/retrieval"
	"github.com/chatforge/knowledge/internal/usage"
	"github.com/chatforge/knowledge/internal/vectorstore"
)

// buildEngine wires the full engine from configuration. The returned
// cleanup closes both pools.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*knowledge.Engine, func(), error) {
	relPool, err := database.Open(ctx, cfg.Storage.RelationalDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("relational store: %w", err)
	}
	if err := database.Migrate(cfg.Storage.RelationalDSN); err != nil {
		relPool.Close()
		return nil, nil, fmt.Errorf("migrate relational store: %w", err)
	}

	vecPool, err := database.OpenVector(ctx, cfg.Storage.VectorDSN)
	if err != nil {
		relPool.Close()
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}
	cleanup := func() {
		vecPool.Close()
		relPool.Close()
	}

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	vectors := vectorstore.New(ctx, vecPool, logger.With("component", "vectorstore"))
	chunks := chunkstore.New(relPool, logger.With("component", "chunkstore"))
	usageStore := usage.New(relPool)

	searcher := retrieval.New(embedder, vectors, chunks, usageStore,
		logger.With("component", "retrieval"))
	rebuilder := reindex.New(chunks, vectors, embedder, reindex.Config{
		Concurrency:   cfg.Reindex.Concurrency,
		EmbedRate:     cfg.Reindex.EmbedRate,
		ProgressEvery: cfg.Reindex.ProgressEvery,
	}, logger.With("component", "reindex"))

	engine := knowledge.NewEngine(searcher, rebuilder, vectors, chunks,
		logger.With("component", "engine"))
	return engine, cleanup, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embedding.Client, error) {
	embedLogger := logger.With("component", "embedding")
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAIClient(embedding.OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}, embedLogger)
	case config.ProviderGemini:
		return embedding.NewGeminiClient(ctx, embedding.GeminiConfig{
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}, embedLogger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Embedding.Provider)
	}
}
