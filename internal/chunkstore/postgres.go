// Package chunkstore is the relational source of truth for chunk
// content and metadata. The ingestion CRUD layer owns the schema; this
// package consumes it through a narrow set of read operations plus the
// chunk delete and the full-text candidate query the lexical fallback
// path runs on.
//
// Retrieval and reindexing depend on consumer-defined interfaces that
// *Store satisfies, so tests swap in the in-memory fake from testutil.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatforge/knowledge/internal/domain"
)

// LookupTimeout bounds a single relational lookup.
const LookupTimeout = 2 * time.Second

// Store reads chunks, documents, and knowledge bases from PostgreSQL.
// Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// GetKnowledgeBase loads one knowledge base by id.
func (s *Store) GetKnowledgeBase(ctx context.Context, id string) (domain.KnowledgeBase, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	var kb domain.KnowledgeBase
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, chunk_strategy, chunk_size, chunk_overlap,
		       embedding_model, embedding_dimensions, similarity_threshold,
		       max_results, created_at
		FROM knowledge_bases WHERE id = $1`, id).
		Scan(&kb.ID, &kb.TenantID, &kb.Name, &kb.ChunkStrategy, &kb.ChunkSize,
			&kb.ChunkOverlap, &kb.EmbeddingModel, &kb.EmbeddingDimensions,
			&kb.SimilarityThreshold, &kb.MaxResults, &kb.CreatedAt)
	if err != nil {
		return domain.KnowledgeBase{}, wrapRowErr("knowledge base", id, err)
	}
	return kb, nil
}

// GetDocument loads one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	var doc domain.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, knowledge_base_id, title, filename, doc_type, status, created_at
		FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Title, &doc.Filename,
			&doc.Type, &doc.Status, &doc.CreatedAt)
	if err != nil {
		return domain.Document{}, wrapRowErr("document", id, err)
	}
	return doc, nil
}

// GetChunk loads one chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (domain.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	var c domain.Chunk
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_id, order_index, content, char_count, token_count, created_at
		FROM chunks WHERE id = $1`, id).
		Scan(&c.ID, &c.DocumentID, &c.OrderIndex, &c.Content,
			&c.CharCount, &c.TokenCount, &c.CreatedAt)
	if err != nil {
		return domain.Chunk{}, wrapRowErr("chunk", id, err)
	}
	return c, nil
}

// ListDocumentsByKnowledgeBase returns a knowledge base's documents in
// creation order, which is the stable enumeration order reindexing
// depends on.
func (s *Store) ListDocumentsByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, knowledge_base_id, title, filename, doc_type, status, created_at
		FROM documents
		WHERE knowledge_base_id = $1
		ORDER BY created_at, id`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list documents for knowledge base %s: %w", kbID, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Title, &doc.Filename,
			&doc.Type, &doc.Status, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListChunksByDocument returns a document's chunks ordered by their
// order index, 0..n-1.
func (s *Store) ListChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, order_index, content, char_count, token_count, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY order_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OrderIndex, &c.Content,
			&c.CharCount, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunk removes one chunk row. The engine layer deletes the
// corresponding vector in the same logical operation.
func (s *Store) DeleteChunk(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	return nil
}

// SearchChunkText returns full-text match candidates for the fallback
// path, scoped by tenant and (optionally) knowledge base ids — the
// same eligibility set the vector path's payload filter enforces.
// Candidates come back in ts_rank order; the retrieval service re-ranks
// them with its own lexical scorer.
func (s *Store) SearchChunkText(ctx context.Context, tenantID string, kbIDs []string, query string, limit int) ([]domain.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	var kbFilter []string
	if len(kbIDs) > 0 {
		kbFilter = kbIDs
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.order_index, c.content,
		       c.char_count, c.token_count, c.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id
		WHERE kb.tenant_id = $1
		  AND ($2::text[] IS NULL OR kb.id = ANY($2))
		  AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', $3)
		ORDER BY ts_rank(to_tsvector('simple', c.content), plainto_tsquery('simple', $3)) DESC, c.id
		LIMIT $4`, tenantID, kbFilter, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OrderIndex, &c.Content,
			&c.CharCount, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func wrapRowErr(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}
