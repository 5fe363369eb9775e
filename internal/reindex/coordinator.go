// Package reindex rebuilds a knowledge base's vectors from its current
// relational chunks: after a configuration change, a bulk import, or an
// explicit operator request.
//
// A rebuild is best-effort, not all-or-nothing. Each chunk is embedded
// and upserted independently under a bounded worker pool; a single
// chunk's failure lands in the report's FailedChunkIDs and the pass
// continues. Re-running a rebuild converges to the same vector set
// because upserts are keyed by chunk id. No checkpoint is persisted, so
// a retry reprocesses every chunk — a documented trade-off.
package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chatforge/knowledge/internal/domain"
	"github.com/chatforge/knowledge/internal/embedding"
	"github.com/chatforge/knowledge/internal/vectorstore"
)

const (
	// DefaultConcurrency bounds simultaneous embed+upsert operations so
	// a rebuild cannot overwhelm the embedding backend or vector store.
	DefaultConcurrency = 4

	// DefaultProgressEvery is how many processed chunks pass between
	// progress reports, so long rebuilds never appear hung.
	DefaultProgressEvery = 25
)

// ChunkSource is the slice of the relational store a rebuild reads.
type ChunkSource interface {
	GetKnowledgeBase(ctx context.Context, id string) (domain.KnowledgeBase, error)
	ListDocumentsByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Document, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// VectorWriter is the slice of the vector store adapter a rebuild
// writes through.
type VectorWriter interface {
	EnsureCollection(ctx context.Context, tenantID string, dims int) error
	Upsert(ctx context.Context, tenantID string, records []vectorstore.Record) error
}

// ProgressFunc observes a running rebuild. Called from worker
// goroutines; implementations must be safe for concurrent use.
type ProgressFunc func(processed, total int)

// Config tunes a Coordinator.
type Config struct {
	// Concurrency is the worker pool size. <= 0 means
	// DefaultConcurrency. Deliberately neither 1 nor unbounded.
	Concurrency int

	// EmbedRate caps embedding calls per second across workers.
	// 0 means unlimited.
	EmbedRate float64

	// ProgressEvery is the reporting interval in chunks. <= 0 means
	// DefaultProgressEvery.
	ProgressEvery int

	// OnProgress, when set, receives incremental progress.
	OnProgress ProgressFunc
}

// Report summarizes one rebuild pass.
type Report struct {
	KnowledgeBaseID string        `json:"knowledge_base_id"`
	Indexed         int           `json:"indexed"`
	Total           int           `json:"total"`
	FailedChunkIDs  []string      `json:"failed_chunk_ids,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Coordinator runs rebuilds. Safe for concurrent use; each Rebuild
// call is an independent unit of work.
type Coordinator struct {
	source   ChunkSource
	vectors  VectorWriter
	embedder embedding.Client
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Coordinator.
func New(source ChunkSource, vectors VectorWriter, embedder embedding.Client, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}

	limit := rate.Inf
	if cfg.EmbedRate > 0 {
		limit = rate.Limit(cfg.EmbedRate)
	}

	return &Coordinator{
		source:   source,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Rebuild re-embeds and re-upserts every chunk of the knowledge base.
// Chunks are enumerated in stable order: documents by creation time,
// chunks by order index. Cancellation is honored between chunks, never
// mid-chunk.
func (c *Coordinator) Rebuild(ctx context.Context, knowledgeBaseID string) (*Report, error) {
	start := time.Now()
	logger := c.logger.With("rebuild_id", uuid.NewString(), "knowledge_base", knowledgeBaseID)

	kb, err := c.source.GetKnowledgeBase(ctx, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", knowledgeBaseID, err)
	}
	if err := embedding.ValidateDimensions(c.embedder, kb.EmbeddingDimensions); err != nil {
		return nil, err
	}
	if err := c.vectors.EnsureCollection(ctx, kb.TenantID, kb.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", knowledgeBaseID, err)
	}

	work, err := c.collect(ctx, kb)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", knowledgeBaseID, err)
	}

	total := len(work)
	logger.Info("rebuild started",
		"tenant", kb.TenantID, "chunks", total, "concurrency", c.cfg.Concurrency)

	var (
		processed atomic.Int64
		mu        sync.Mutex
		failed    []string
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

scheduling:
	for _, chunk := range work {
		// Cancellation check before each chunk's work is started; an
		// already-running chunk always finishes.
		select {
		case <-ctx.Done():
			break scheduling
		default:
		}

		g.Go(func() error {
			if err := c.processChunk(groupCtx, kb, chunk); err != nil {
				logger.Warn("chunk failed, continuing rebuild", "chunk", chunk.ID, "error", err)
				mu.Lock()
				failed = append(failed, chunk.ID)
				mu.Unlock()
			}

			done := int(processed.Add(1))
			if done%c.cfg.ProgressEvery == 0 || done == total {
				logger.Info("rebuild progress", "processed", done, "total", total)
				if c.cfg.OnProgress != nil {
					c.cfg.OnProgress(done, total)
				}
			}
			return nil
		})
	}

	// Workers never return errors (per-chunk failures are collected),
	// so Wait only propagates a canceled group context.
	_ = g.Wait()

	report := &Report{
		KnowledgeBaseID: knowledgeBaseID,
		Indexed:         int(processed.Load()) - len(failed),
		Total:           total,
		FailedChunkIDs:  failed,
		Duration:        time.Since(start),
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("rebuild canceled", "indexed", report.Indexed, "total", total)
		return report, err
	}

	logger.Info("rebuild finished",
		"indexed", report.Indexed, "total", total,
		"failed", len(failed), "duration", report.Duration)
	return report, nil
}

// workItem pairs a chunk with its parent document for payload building.
type workItem struct {
	domain.Chunk
	doc domain.Document
}

// collect enumerates all chunks of the knowledge base in stable order.
func (c *Coordinator) collect(ctx context.Context, kb domain.KnowledgeBase) ([]workItem, error) {
	docs, err := c.source.ListDocumentsByKnowledgeBase(ctx, kb.ID)
	if err != nil {
		return nil, err
	}

	var work []workItem
	for _, doc := range docs {
		chunks, err := c.source.ListChunksByDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunks {
			work = append(work, workItem{Chunk: chunk, doc: doc})
		}
	}
	return work, nil
}

// processChunk embeds and upserts one chunk. Failures come back as a
// *domain.ChunkError tagged with the operation that produced them.
func (c *Coordinator) processChunk(ctx context.Context, kb domain.KnowledgeBase, item workItem) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.ChunkError{ChunkID: item.ID, Op: "embed", Err: err}
	}

	vector, err := c.embedder.Embed(ctx, item.Content)
	if err != nil {
		return &domain.ChunkError{ChunkID: item.ID, Op: "embed", Err: err}
	}

	record := vectorstore.Record{
		ID:     item.ID,
		Vector: vector,
		Payload: vectorstore.Payload{
			ChunkID:         item.ID,
			DocumentID:      item.DocumentID,
			KnowledgeBaseID: kb.ID,
			Content:         item.Content,
			OrderIndex:      item.OrderIndex,
			CharCount:       item.CharCount,
			TokenCount:      item.TokenCount,
		},
	}
	if err := c.vectors.Upsert(ctx, kb.TenantID, []vectorstore.Record{record}); err != nil {
		return &domain.ChunkError{ChunkID: item.ID, Op: "upsert", Err: err}
	}
	return nil
}
