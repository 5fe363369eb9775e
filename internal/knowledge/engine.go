// Package knowledge is the engine facade: the surface the surrounding
// API layer calls. It wires retrieval, reindexing, the vector store
// adapter, and the relational chunk store behind four plain operations
// (Search, Rebuild, Stats, HealthCheck) plus the deletion paths that
// keep vectors from outliving their chunks.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatforge/knowledge/internal/reindex"
	"github.com/chatforge/knowledge/internal/retrieval"
	"github.com/chatforge/knowledge/internal/vectorstore"
)

// Searcher answers similarity queries.
type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
}

// Rebuilder rebuilds a knowledge base's vectors.
type Rebuilder interface {
	Rebuild(ctx context.Context, knowledgeBaseID string) (*reindex.Report, error)
}

// VectorAdmin is the slice of the vector store adapter the facade
// drives directly: stats, health, and the deletion lifecycle.
type VectorAdmin interface {
	Delete(ctx context.Context, tenantID string, ids []string) error
	DropCollection(ctx context.Context, tenantID string) error
	Stats(ctx context.Context, tenantID string) (vectorstore.Stats, error)
	HealthCheck(ctx context.Context) vectorstore.Health
}

// ChunkDeleter removes chunk rows from the relational store.
type ChunkDeleter interface {
	DeleteChunk(ctx context.Context, id string) error
}

// Engine is the knowledge retrieval engine. Safe for concurrent use.
type Engine struct {
	searcher  Searcher
	rebuilder Rebuilder
	vectors   VectorAdmin
	chunks    ChunkDeleter
	logger    *slog.Logger
}

// NewEngine wires the engine from its collaborators.
func NewEngine(searcher Searcher, rebuilder Rebuilder, vectors VectorAdmin, chunks ChunkDeleter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		searcher:  searcher,
		rebuilder: rebuilder,
		vectors:   vectors,
		chunks:    chunks,
		logger:    logger,
	}
}

// Search answers one similarity query, falling back to lexical search
// when the vector backend is unavailable.
func (e *Engine) Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	return e.searcher.Search(ctx, req)
}

// Rebuild re-embeds and re-upserts all chunks of a knowledge base.
func (e *Engine) Rebuild(ctx context.Context, knowledgeBaseID string) (*reindex.Report, error) {
	return e.rebuilder.Rebuild(ctx, knowledgeBaseID)
}

// Stats reports the tenant's vector collection size and status.
func (e *Engine) Stats(ctx context.Context, tenantID string) (vectorstore.Stats, error) {
	return e.vectors.Stats(ctx, tenantID)
}

// HealthCheck reports vector backend reachability.
func (e *Engine) HealthCheck(ctx context.Context) vectorstore.Health {
	return e.vectors.HealthCheck(ctx)
}

// DeleteChunk removes a chunk row and its vector in one logical
// operation. The row goes first: a vector without a row is invisible
// (enrichment drops it), but a row without a vector would silently
// vanish from semantic search. If the vector delete fails the error is
// returned so the caller can retry; both deletes are idempotent.
func (e *Engine) DeleteChunk(ctx context.Context, tenantID, chunkID string) error {
	if err := e.chunks.DeleteChunk(ctx, chunkID); err != nil {
		return fmt.Errorf("delete chunk %s: %w", chunkID, err)
	}
	if err := e.vectors.Delete(ctx, tenantID, []string{chunkID}); err != nil {
		return fmt.Errorf("delete vector for chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeleteTenant drops the tenant's entire vector collection. The
// relational cascade (knowledge bases, documents, chunks) is owned by
// the CRUD layer; this removes the vector side of it.
func (e *Engine) DeleteTenant(ctx context.Context, tenantID string) error {
	if err := e.vectors.DropCollection(ctx, tenantID); err != nil {
		return fmt.Errorf("drop collection for tenant %s: %w", tenantID, err)
	}
	e.logger.Info("tenant collection dropped", "tenant", tenantID)
	return nil
}
