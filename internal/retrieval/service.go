// Package retrieval orchestrates similarity search: it embeds the
// query, runs a filtered vector search, enriches raw hits with
// document and knowledge-base metadata, and records usage.
//
// When the vector backend (or the embedding backend feeding it) is
// unavailable, the service falls back to lexical full-text ranking
// over the relational chunk store, scoped by the same tenant and
// knowledge-base filter. Fallback results carry a fixed,
// visibly lower-confidence score and Strategy "fallback" so consumers
// can adjust confidence messaging. Only when both paths fail does the
// caller see domain.ErrRetrievalFailed — never a partial result.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatforge/knowledge/internal/domain"
	"github.com/chatforge/knowledge/internal/embedding"
	"github.com/chatforge/knowledge/internal/vectorstore"
)

const (
	// DefaultLimit caps results when the caller does not ask for more.
	DefaultLimit = 10

	// DefaultThreshold is the minimum cosine similarity for vector hits.
	DefaultThreshold float32 = 0.7

	// FallbackScore is the fixed score attached to lexical fallback
	// results. Deliberately below any sensible similarity threshold so
	// semantic and lexical hits are never confused.
	FallbackScore float32 = 0.3

	// candidateMultiplier oversamples full-text candidates so the
	// lexical ranker has room to reorder before truncating to limit.
	candidateMultiplier = 4
)

// ChunkStore is the slice of the relational store the service needs.
type ChunkStore interface {
	GetChunk(ctx context.Context, id string) (domain.Chunk, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	GetKnowledgeBase(ctx context.Context, id string) (domain.KnowledgeBase, error)
	SearchChunkText(ctx context.Context, tenantID string, kbIDs []string, query string, limit int) ([]domain.Chunk, error)
}

// VectorSearcher is the slice of the vector store adapter the service
// needs.
type VectorSearcher interface {
	Search(ctx context.Context, tenantID string, vector []float32, params vectorstore.SearchParams) ([]vectorstore.Hit, error)
}

// UsageRecorder appends one usage increment per successful search.
type UsageRecorder interface {
	Record(ctx context.Context, tenantID string) error
}

// Request is one similarity query.
type Request struct {
	TenantID         string
	Query            string
	KnowledgeBaseIDs []string // empty means all of the tenant's knowledge bases
	Limit            int      // <= 0 means DefaultLimit
	Threshold        float32  // <= 0 means DefaultThreshold
	IncludeContent   bool     // false strips chunk bodies from the response
}

// Response is a ranked, enriched result set from one search path.
type Response struct {
	Results  []domain.SearchResult `json:"results"`
	Strategy domain.SearchStrategy `json:"strategy"`
}

// Service runs retrieval requests. Safe for concurrent use; requests
// share nothing beyond the injected collaborators.
type Service struct {
	embedder embedding.Client
	vectors  VectorSearcher
	chunks   ChunkStore
	usage    UsageRecorder
	logger   *slog.Logger
}

// New creates a Service.
func New(embedder embedding.Client, vectors VectorSearcher, chunks ChunkStore, usage UsageRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		vectors:  vectors,
		chunks:   chunks,
		usage:    usage,
		logger:   logger,
	}
}

// Search answers one similarity query. The vector path is tried first;
// an unavailable embedding or vector backend routes the query through
// the lexical fallback with identical tenant/KB scoping.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrConfig)
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrConfig)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Threshold <= 0 {
		req.Threshold = DefaultThreshold
	}

	resp, vectorErr := s.vectorSearch(ctx, req)
	if vectorErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("vector path unavailable, falling back to lexical search",
			"tenant", req.TenantID, "error", vectorErr)

		var fallbackErr error
		resp, fallbackErr = s.fallbackSearch(ctx, req)
		if fallbackErr != nil {
			return nil, fmt.Errorf("%w: vector path: %v; fallback path: %v",
				domain.ErrRetrievalFailed, vectorErr, fallbackErr)
		}
	}

	// Exactly one increment per successful search, either path. A
	// failed increment must not turn found results into an error, but
	// it loses a billable event, so it is an ERROR, not a warning.
	if err := s.usage.Record(ctx, req.TenantID); err != nil {
		s.logger.Error("failed to record usage", "tenant", req.TenantID, "error", err)
	}

	return resp, nil
}

func (s *Service) vectorSearch(ctx context.Context, req Request) (*Response, error) {
	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.Search(ctx, req.TenantID, vector, vectorstore.SearchParams{
		Limit:            req.Limit,
		ScoreThreshold:   req.Threshold,
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	kbNames := make(map[string]string)
	for _, hit := range hits {
		result, ok := s.enrich(ctx, hit.Payload.ChunkID, kbNames)
		if !ok {
			// Stale vector: the chunk or document row is gone. Dropped
			// silently; the row is the source of truth.
			continue
		}
		result.Score = hit.Score
		result.Strategy = domain.SearchStrategySemantic
		if !req.IncludeContent {
			result.Content = ""
		}
		results = append(results, result)
	}

	return &Response{Results: results, Strategy: domain.SearchStrategySemantic}, nil
}

func (s *Service) fallbackSearch(ctx context.Context, req Request) (*Response, error) {
	candidates, err := s.chunks.SearchChunkText(ctx, req.TenantID, req.KnowledgeBaseIDs,
		req.Query, req.Limit*candidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("full-text candidates: %w", err)
	}

	ranked := rankLexical(req.Query, candidates, req.Limit)

	results := make([]domain.SearchResult, 0, len(ranked))
	kbNames := make(map[string]string)
	for _, chunk := range ranked {
		result, ok := s.enrich(ctx, chunk.ID, kbNames)
		if !ok {
			continue
		}
		result.Score = FallbackScore
		result.Strategy = domain.SearchStrategyFallback
		if !req.IncludeContent {
			result.Content = ""
		}
		results = append(results, result)
	}

	return &Response{Results: results, Strategy: domain.SearchStrategyFallback}, nil
}

// enrich joins one raw hit against the relational store. A missing
// chunk or document means the hit is stale and is dropped, not errored:
// vectors are at-most eventually consistent with their rows.
func (s *Service) enrich(ctx context.Context, chunkID string, kbNames map[string]string) (domain.SearchResult, bool) {
	chunk, err := s.chunks.GetChunk(ctx, chunkID)
	if err != nil {
		s.logger.Debug("dropping hit without chunk row", "chunk", chunkID, "error", err)
		return domain.SearchResult{}, false
	}

	doc, err := s.chunks.GetDocument(ctx, chunk.DocumentID)
	if err != nil {
		s.logger.Debug("dropping hit without document row", "chunk", chunkID, "error", err)
		return domain.SearchResult{}, false
	}

	kbName, ok := kbNames[doc.KnowledgeBaseID]
	if !ok {
		kb, err := s.chunks.GetKnowledgeBase(ctx, doc.KnowledgeBaseID)
		if err != nil {
			s.logger.Debug("dropping hit without knowledge base row", "chunk", chunkID, "error", err)
			return domain.SearchResult{}, false
		}
		kbName = kb.Name
		kbNames[doc.KnowledgeBaseID] = kbName
	}

	return domain.SearchResult{
		ChunkID:           chunk.ID,
		DocumentID:        doc.ID,
		DocumentTitle:     doc.Title,
		DocumentFilename:  doc.Filename,
		DocumentType:      doc.Type,
		KnowledgeBaseID:   doc.KnowledgeBaseID,
		KnowledgeBaseName: kbName,
		OrderIndex:        chunk.OrderIndex,
		Content:           chunk.Content,
	}, true
}
