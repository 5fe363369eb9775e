package reindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chatforge/knowledge/internal/domain"
	"github.com/chatforge/knowledge/internal/log"
	"github.com/chatforge/knowledge/internal/testutil"
)

const (
	rebuildDims   = 64
	rebuildChunks = 120
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rebuildFixture struct {
	source   *testutil.MemChunkStore
	vectors  *testutil.MemVectorStore
	embedder *testutil.StaticEmbedder
}

// newRebuildFixture seeds one knowledge base with 120 chunks spread
// over four documents.
func newRebuildFixture(t *testing.T) *rebuildFixture {
	t.Helper()

	f := &rebuildFixture{
		source:   testutil.NewMemChunkStore(),
		vectors:  testutil.NewMemVectorStore(),
		embedder: testutil.NewStaticEmbedder(rebuildDims),
	}

	f.source.AddKnowledgeBase(domain.KnowledgeBase{
		ID:                  "kb-docs",
		TenantID:            "acme",
		Name:                "Docs",
		EmbeddingDimensions: rebuildDims,
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 4; d++ {
		docID := fmt.Sprintf("doc-%d", d)
		f.source.AddDocument(domain.Document{
			ID:              docID,
			KnowledgeBaseID: "kb-docs",
			Title:           fmt.Sprintf("Manual volume %d", d),
			CreatedAt:       base.Add(time.Duration(d) * time.Minute),
		})
		for i := 0; i < rebuildChunks/4; i++ {
			n := d*rebuildChunks/4 + i
			f.source.AddChunk(domain.Chunk{
				ID:         fmt.Sprintf("chunk-%03d", n),
				DocumentID: docID,
				OrderIndex: i,
				Content:    chunkContent(n),
			})
		}
	}
	return f
}

func chunkContent(n int) string {
	return fmt.Sprintf("section %03d of the operations manual", n)
}

func (f *rebuildFixture) coordinator(cfg Config) *Coordinator {
	return New(f.source, f.vectors, f.embedder, cfg, log.NewNop())
}

func TestRebuildAllChunks(t *testing.T) {
	f := newRebuildFixture(t)

	report, err := f.coordinator(Config{}).Rebuild(context.Background(), "kb-docs")
	if err != nil {
		t.Fatalf("Rebuild error: %v", err)
	}
	if report.Total != rebuildChunks || report.Indexed != rebuildChunks {
		t.Errorf("indexed %d/%d, want %d/%d", report.Indexed, report.Total, rebuildChunks, rebuildChunks)
	}
	if len(report.FailedChunkIDs) != 0 {
		t.Errorf("failed chunks = %v, want none", report.FailedChunkIDs)
	}
	if report.Duration <= 0 {
		t.Error("duration not recorded")
	}
	if got := f.vectors.Count("acme"); got != rebuildChunks {
		t.Errorf("vector count = %d, want %d", got, rebuildChunks)
	}
}

func TestRebuildContinuesPastChunkFailures(t *testing.T) {
	f := newRebuildFixture(t)
	failing := map[string]bool{"chunk-007": true, "chunk-042": true, "chunk-099": true}
	f.embedder.FailFor(chunkContent(7))
	f.embedder.FailFor(chunkContent(42))
	f.embedder.FailFor(chunkContent(99))

	coord := f.coordinator(Config{})
	report, err := coord.Rebuild(context.Background(), "kb-docs")
	if err != nil {
		t.Fatalf("Rebuild error: %v", err)
	}
	if report.Total != rebuildChunks {
		t.Errorf("total = %d, want %d", report.Total, rebuildChunks)
	}
	if report.Indexed != rebuildChunks-3 {
		t.Errorf("indexed = %d, want %d", report.Indexed, rebuildChunks-3)
	}
	if len(report.FailedChunkIDs) != 3 {
		t.Fatalf("failed = %v, want 3 ids", report.FailedChunkIDs)
	}
	for _, id := range report.FailedChunkIDs {
		if !failing[id] {
			t.Errorf("unexpected failed chunk %s", id)
		}
	}
	if got := f.vectors.Count("acme"); got != rebuildChunks-3 {
		t.Errorf("vector count = %d, want %d", got, rebuildChunks-3)
	}

	// A retry after the backend recovers converges: every chunk indexed,
	// no duplicates from the chunks that already succeeded.
	f.embedder.ClearFailures()
	report, err = coord.Rebuild(context.Background(), "kb-docs")
	if err != nil {
		t.Fatalf("retry Rebuild error: %v", err)
	}
	if report.Indexed != rebuildChunks || len(report.FailedChunkIDs) != 0 {
		t.Errorf("retry indexed %d with failures %v", report.Indexed, report.FailedChunkIDs)
	}
	if got := f.vectors.Count("acme"); got != rebuildChunks {
		t.Errorf("vector count after retry = %d, want %d", got, rebuildChunks)
	}
}

func TestRebuildReportsProgress(t *testing.T) {
	f := newRebuildFixture(t)

	var mu sync.Mutex
	var calls [][2]int
	cfg := Config{
		ProgressEvery: 25,
		OnProgress: func(processed, total int) {
			mu.Lock()
			calls = append(calls, [2]int{processed, total})
			mu.Unlock()
		},
	}

	if _, err := f.coordinator(cfg).Rebuild(context.Background(), "kb-docs"); err != nil {
		t.Fatalf("Rebuild error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) == 0 {
		t.Fatal("progress callback never fired")
	}
	var sawFinal bool
	for _, c := range calls {
		if c[1] != rebuildChunks {
			t.Errorf("progress total = %d, want %d", c[1], rebuildChunks)
		}
		if c[0] == rebuildChunks {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("no progress call for the final chunk")
	}
}

func TestRebuildDimensionMismatch(t *testing.T) {
	f := newRebuildFixture(t)
	f.source.AddKnowledgeBase(domain.KnowledgeBase{
		ID:                  "kb-wide",
		TenantID:            "acme",
		EmbeddingDimensions: rebuildDims * 2,
	})

	_, err := f.coordinator(Config{}).Rebuild(context.Background(), "kb-wide")
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("Rebuild = %v, want ErrConfig", err)
	}
}

func TestRebuildUnknownKnowledgeBase(t *testing.T) {
	f := newRebuildFixture(t)

	_, err := f.coordinator(Config{}).Rebuild(context.Background(), "kb-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Rebuild = %v, want ErrNotFound", err)
	}
}

func TestRebuildBackendUnavailable(t *testing.T) {
	f := newRebuildFixture(t)
	f.vectors.SetUnavailable(true)

	_, err := f.coordinator(Config{}).Rebuild(context.Background(), "kb-docs")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("Rebuild = %v, want ErrBackendUnavailable", err)
	}
}

func TestProcessChunkTagsFailingOperation(t *testing.T) {
	f := newRebuildFixture(t)
	coord := f.coordinator(Config{})
	kb, err := f.source.GetKnowledgeBase(context.Background(), "kb-docs")
	if err != nil {
		t.Fatalf("GetKnowledgeBase: %v", err)
	}
	item := workItem{
		Chunk: domain.Chunk{ID: "chunk-000", DocumentID: "doc-0", Content: chunkContent(0)},
		doc:   domain.Document{ID: "doc-0", KnowledgeBaseID: "kb-docs"},
	}

	f.embedder.FailFor(chunkContent(0))
	err = coord.processChunk(context.Background(), kb, item)
	var chunkErr *domain.ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("embed failure = %T, want *domain.ChunkError", err)
	}
	if chunkErr.Op != "embed" || chunkErr.ChunkID != "chunk-000" {
		t.Errorf("chunk error = %+v, want op embed on chunk-000", chunkErr)
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("embed failure does not unwrap to its cause: %v", err)
	}

	f.embedder.ClearFailures()
	f.vectors.SetUnavailable(true)
	err = coord.processChunk(context.Background(), kb, item)
	if !errors.As(err, &chunkErr) {
		t.Fatalf("upsert failure = %T, want *domain.ChunkError", err)
	}
	if chunkErr.Op != "upsert" {
		t.Errorf("chunk error = %+v, want op upsert", chunkErr)
	}
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("upsert failure does not unwrap to its cause: %v", err)
	}
}

func TestRebuildCanceled(t *testing.T) {
	f := newRebuildFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.coordinator(Config{}).Rebuild(ctx, "kb-docs")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Rebuild = %v, want context.Canceled", err)
	}
	if report == nil {
		t.Fatal("canceled rebuild returned no report")
	}
	if report.Indexed != 0 {
		t.Errorf("indexed = %d before any chunk was scheduled, want 0", report.Indexed)
	}
}
