// Package vectorstore owns one vector collection per tenant in
// PostgreSQL with the pgvector extension. Collections are lazily
// created on first write and named deterministically from the tenant
// id, so a cross-tenant query is impossible to express: every method
// takes the tenant id as its first parameter and resolves its own
// collection from it.
//
// The adapter probes connectivity once at construction. While the
// backend is unreachable it stays in a degraded state and every call
// short-circuits with domain.ErrBackendUnavailable; a rate-limited
// reconnection probe restores it to healthy.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/chatforge/knowledge/internal/domain"
)

// SearchTimeout bounds a single vector search.
const SearchTimeout = 3 * time.Second

// pgUndefinedTable is the PostgreSQL error code for a missing relation.
// A tenant that has never written gets it on read; that is not an
// error, the collection simply does not exist yet.
const pgUndefinedTable = "42P01"

// Payload is stored alongside each vector and carries enough fields to
// filter and rank without a round trip to the relational store.
type Payload struct {
	ChunkID         string            `json:"chunk_id"`
	DocumentID      string            `json:"document_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Content         string            `json:"content"`
	OrderIndex      int               `json:"order_index"`
	CharCount       int               `json:"char_count"`
	TokenCount      int               `json:"token_count"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Record is one vector keyed by chunk identity.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one raw search result, ordered by descending similarity.
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// SearchParams scope a search within a tenant collection.
type SearchParams struct {
	Limit            int
	ScoreThreshold   float32
	KnowledgeBaseIDs []string // empty means all knowledge bases of the tenant
}

// Stats describes a tenant collection.
type Stats struct {
	Count  int64  `json:"count"`
	Status string `json:"status"` // "ready" or "degraded"
}

// Health is the adapter-level health report.
type Health struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Store is the vector store adapter. It is safe for concurrent use;
// the underlying pgx pool is the shared long-lived resource.
type Store struct {
	pool   *pgxpool.Pool
	gate   *healthGate
	logger *slog.Logger
}

// New creates a Store and probes connectivity once. An unreachable
// backend does not fail construction: the store starts degraded and
// recovers through the gate's reconnection probe.
func New(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		pool:   pool,
		gate:   newHealthGate(pool),
		logger: logger,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("vector backend unreachable at startup, starting degraded", "error", err)
		s.gate.markDegraded()
	}

	return s
}

// EnsureCollection creates the tenant's collection if absent.
// Idempotent: an existing collection with the same dimensionality is
// left untouched. The distance metric is cosine, fixed at creation.
func (s *Store) EnsureCollection(ctx context.Context, tenantID string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("%w: vector dimensions must be positive, got %d", domain.ErrConfig, dims)
	}
	if !s.gate.available(ctx) {
		return domain.ErrBackendUnavailable
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          text PRIMARY KEY,
			embedding   vector(%d) NOT NULL,
			payload     jsonb NOT NULL,
			inserted_at timestamptz NOT NULL DEFAULT now()
		)`, table, dims)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return s.fail("ensure collection", err)
	}

	idx := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{CollectionName(tenantID) + "_embedding_idx"}.Sanitize(), table)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return s.fail("ensure collection index", err)
	}

	s.gate.recordSuccess()
	return nil
}

// Upsert writes records into the tenant collection, replacing any
// prior vector and payload stored under the same id.
func (s *Store) Upsert(ctx context.Context, tenantID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if !s.gate.available(ctx) {
		return domain.ErrBackendUnavailable
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, table)

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", rec.ID, err)
		}
		batch.Queue(sql, rec.ID, pgvector.NewVector(rec.Vector), payload)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return s.fail("upsert", err)
	}

	s.gate.recordSuccess()
	s.logger.Debug("upserted vectors", "tenant", tenantID, "records", len(records))
	return nil
}

// Delete removes the given ids from the tenant collection. Deleting an
// absent id, or deleting from a tenant that never wrote, is not an
// error.
func (s *Store) Delete(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if !s.gate.available(ctx) {
		return domain.ErrBackendUnavailable
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		if isUndefinedTable(err) {
			return nil
		}
		return s.fail("delete", err)
	}

	s.gate.recordSuccess()
	return nil
}

// DropCollection removes the tenant's entire collection. Used when a
// tenant or its last knowledge base is deleted. Idempotent.
func (s *Store) DropCollection(ctx context.Context, tenantID string) error {
	if !s.gate.available(ctx) {
		return domain.ErrBackendUnavailable
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return s.fail("drop collection", err)
	}

	s.gate.recordSuccess()
	return nil
}

// Search returns hits ordered by descending cosine similarity, ties
// broken deterministically by id. A tenant with no collection yields
// zero hits.
func (s *Store) Search(ctx context.Context, tenantID string, vector []float32, params SearchParams) ([]Hit, error) {
	if !s.gate.available(ctx) {
		return nil, domain.ErrBackendUnavailable
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	queryCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	var kbFilter []string
	if len(params.KnowledgeBaseIDs) > 0 {
		kbFilter = params.KnowledgeBaseIDs
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	sql := fmt.Sprintf(`
		SELECT id, payload, (1 - (embedding <=> $1))::float4 AS score
		FROM %s
		WHERE ($2::text[] IS NULL OR payload->>'knowledge_base_id' = ANY($2))
		  AND (1 - (embedding <=> $1)) >= $3
		ORDER BY embedding <=> $1, id
		LIMIT $4`, table)

	rows, err := s.pool.Query(queryCtx, sql,
		pgvector.NewVector(vector), kbFilter, params.ScoreThreshold, params.Limit)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, s.fail("search", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit     Hit
			payload []byte
		)
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			s.logger.Warn("malformed vector payload, skipping hit", "id", hit.ID, "error", err)
			continue
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, s.fail("search", err)
	}

	s.gate.recordSuccess()
	return hits, nil
}

// Stats reports the tenant collection's vector count and the adapter
// state. A missing collection counts zero.
func (s *Store) Stats(ctx context.Context, tenantID string) (Stats, error) {
	if !s.gate.available(ctx) {
		return Stats{Status: "degraded"}, domain.ErrBackendUnavailable
	}

	table := pgx.Identifier{CollectionName(tenantID)}.Sanitize()
	var count int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&count)
	if err != nil {
		if isUndefinedTable(err) {
			return Stats{Count: 0, Status: "ready"}, nil
		}
		return Stats{}, s.fail("stats", err)
	}

	s.gate.recordSuccess()
	return Stats{Count: count, Status: "ready"}, nil
}

// HealthCheck pings the backend unless the gate is already degraded.
func (s *Store) HealthCheck(ctx context.Context) Health {
	if s.gate.isDegraded() {
		return Health{Healthy: false, Detail: "vector backend degraded"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		s.gate.recordFailure()
		return Health{Healthy: false, Detail: err.Error()}
	}
	return Health{Healthy: true}
}

// fail records the failure with the gate and wraps connectivity errors
// as ErrBackendUnavailable so retrieval can trigger its fallback.
func (s *Store) fail(op string, err error) error {
	s.gate.recordFailure()
	s.logger.Warn("vector store operation failed", "op", op, "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out", domain.ErrBackendUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, op, err)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
