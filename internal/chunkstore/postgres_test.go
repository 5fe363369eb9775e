package chunkstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatforge/knowledge/internal/chunkstore"
	"github.com/chatforge/knowledge/internal/domain"
	"github.com/chatforge/knowledge/internal/log"
	"github.com/chatforge/knowledge/internal/testutil"
)

func seedRelational(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO knowledge_bases (id, tenant_id, name, embedding_dimensions) VALUES ($1, $2, $3, $4)`,
			[]any{"kb1", "acme", "Engineering", 1536}},
		{`INSERT INTO knowledge_bases (id, tenant_id, name, embedding_dimensions) VALUES ($1, $2, $3, $4)`,
			[]any{"kb2", "globex", "Other Tenant", 1536}},
		{`INSERT INTO documents (id, knowledge_base_id, title, filename) VALUES ($1, $2, $3, $4)`,
			[]any{"doc1", "kb1", "Runbook", "runbook.md"}},
		{`INSERT INTO documents (id, knowledge_base_id, title, filename) VALUES ($1, $2, $3, $4)`,
			[]any{"doc2", "kb2", "Secret Plans", "plans.md"}},
		{`INSERT INTO chunks (id, document_id, order_index, content, char_count, token_count) VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{"chunk1", "doc1", 0, "postgres connection pooling guidance", 36, 9}},
		{`INSERT INTO chunks (id, document_id, order_index, content, char_count, token_count) VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{"chunk2", "doc1", 1, "index maintenance and vacuum schedules", 38, 10}},
		{`INSERT INTO chunks (id, document_id, order_index, content, char_count, token_count) VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{"chunk3", "doc2", 0, "postgres pooling notes of another tenant", 40, 10}},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestStoreLookups(t *testing.T) {
	db := testutil.SetupPostgres(t)
	seedRelational(t, db.Pool)
	store := chunkstore.New(db.Pool, log.NewNop())
	ctx := context.Background()

	kb, err := store.GetKnowledgeBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("GetKnowledgeBase: %v", err)
	}
	if kb.TenantID != "acme" || kb.Name != "Engineering" {
		t.Errorf("kb = %+v", kb)
	}
	if kb.ChunkStrategy != domain.StrategyRecursive || kb.ChunkSize != 1000 {
		t.Errorf("kb defaults = %s/%d, want recursive/1000", kb.ChunkStrategy, kb.ChunkSize)
	}

	doc, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Title != "Runbook" || doc.Type != domain.DocumentTypeFile {
		t.Errorf("doc = %+v", doc)
	}

	chunk, err := store.GetChunk(ctx, "chunk2")
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if chunk.OrderIndex != 1 || chunk.DocumentID != "doc1" {
		t.Errorf("chunk = %+v", chunk)
	}
}

func TestStoreNotFound(t *testing.T) {
	db := testutil.SetupPostgres(t)
	store := chunkstore.New(db.Pool, log.NewNop())
	ctx := context.Background()

	if _, err := store.GetKnowledgeBase(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetKnowledgeBase = %v, want ErrNotFound", err)
	}
	if _, err := store.GetDocument(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDocument = %v, want ErrNotFound", err)
	}
	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetChunk = %v, want ErrNotFound", err)
	}
}

func TestStoreListings(t *testing.T) {
	db := testutil.SetupPostgres(t)
	seedRelational(t, db.Pool)
	store := chunkstore.New(db.Pool, log.NewNop())
	ctx := context.Background()

	docs, err := store.ListDocumentsByKnowledgeBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("ListDocumentsByKnowledgeBase: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc1" {
		t.Errorf("docs = %v", docs)
	}

	chunks, err := store.ListChunksByDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("ListChunksByDocument: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, c := range chunks {
		if c.OrderIndex != i {
			t.Errorf("chunk %d has order index %d", i, c.OrderIndex)
		}
	}
}

func TestStoreSearchChunkText(t *testing.T) {
	db := testutil.SetupPostgres(t)
	seedRelational(t, db.Pool)
	store := chunkstore.New(db.Pool, log.NewNop())
	ctx := context.Background()

	// Tenant scoped: the other tenant's matching chunk must not appear.
	chunks, err := store.SearchChunkText(ctx, "acme", nil, "postgres pooling", 10)
	if err != nil {
		t.Fatalf("SearchChunkText: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "chunk1" {
		t.Fatalf("candidates = %v, want only chunk1", chunks)
	}

	// Knowledge base filter excludes everything outside kb2, and kb2
	// belongs to another tenant, so nothing matches.
	chunks, err = store.SearchChunkText(ctx, "acme", []string{"kb2"}, "postgres pooling", 10)
	if err != nil {
		t.Fatalf("SearchChunkText filtered: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("candidates = %v, want none", chunks)
	}

	// No term matches.
	chunks, err = store.SearchChunkText(ctx, "acme", nil, "kubernetes", 10)
	if err != nil {
		t.Fatalf("SearchChunkText miss: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("candidates = %v, want none", chunks)
	}
}

func TestStoreDeleteChunk(t *testing.T) {
	db := testutil.SetupPostgres(t)
	seedRelational(t, db.Pool)
	store := chunkstore.New(db.Pool, log.NewNop())
	ctx := context.Background()

	if err := store.DeleteChunk(ctx, "chunk1"); err != nil {
		t.Fatalf("DeleteChunk: %v", err)
	}
	if _, err := store.GetChunk(ctx, "chunk1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetChunk after delete = %v, want ErrNotFound", err)
	}
	// Idempotent.
	if err := store.DeleteChunk(ctx, "chunk1"); err != nil {
		t.Errorf("repeat DeleteChunk: %v", err)
	}
}
