package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/chatforge/knowledge/internal/domain"
)

// MemChunkStore is an in-memory relational chunk store. It satisfies
// the consumer interfaces of retrieval, reindex, and the engine facade.
type MemChunkStore struct {
	mu             sync.RWMutex
	knowledgeBases map[string]domain.KnowledgeBase
	documents      map[string]domain.Document
	chunks         map[string]domain.Chunk
}

// NewMemChunkStore creates an empty store.
func NewMemChunkStore() *MemChunkStore {
	return &MemChunkStore{
		knowledgeBases: make(map[string]domain.KnowledgeBase),
		documents:      make(map[string]domain.Document),
		chunks:         make(map[string]domain.Chunk),
	}
}

// AddKnowledgeBase seeds one knowledge base.
func (s *MemChunkStore) AddKnowledgeBase(kb domain.KnowledgeBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledgeBases[kb.ID] = kb
}

// AddDocument seeds one document.
func (s *MemChunkStore) AddDocument(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
}

// AddChunk seeds one chunk.
func (s *MemChunkStore) AddChunk(chunk domain.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.ID] = chunk
}

// RemoveChunk deletes a chunk row directly, bypassing the engine, to
// simulate an out-of-band delete that leaves a stale vector behind.
func (s *MemChunkStore) RemoveChunk(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, id)
}

func (s *MemChunkStore) GetKnowledgeBase(_ context.Context, id string) (domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kb, ok := s.knowledgeBases[id]
	if !ok {
		return domain.KnowledgeBase{}, fmt.Errorf("knowledge base %s: %w", id, domain.ErrNotFound)
	}
	return kb, nil
}

func (s *MemChunkStore) GetDocument(_ context.Context, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemChunkStore) GetChunk(_ context.Context, id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return chunk, nil
}

func (s *MemChunkStore) ListDocumentsByKnowledgeBase(_ context.Context, kbID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.KnowledgeBaseID == kbID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *MemChunkStore) ListChunksByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chunks []domain.Chunk
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].OrderIndex < chunks[j].OrderIndex })
	return chunks, nil
}

func (s *MemChunkStore) DeleteChunk(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, id)
	return nil
}

// SearchChunkText mimics the SQL full-text candidate query: chunks of
// the tenant (optionally restricted to knowledge bases) containing any
// query term.
func (s *MemChunkStore) SearchChunkText(_ context.Context, tenantID string, kbIDs []string, query string, limit int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kbFilter := make(map[string]bool, len(kbIDs))
	for _, id := range kbIDs {
		kbFilter[id] = true
	}

	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []domain.Chunk
	for _, chunk := range s.chunks {
		doc, ok := s.documents[chunk.DocumentID]
		if !ok {
			continue
		}
		kb, ok := s.knowledgeBases[doc.KnowledgeBaseID]
		if !ok || kb.TenantID != tenantID {
			continue
		}
		if len(kbFilter) > 0 && !kbFilter[kb.ID] {
			continue
		}
		content := strings.ToLower(chunk.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				out = append(out, chunk)
				break
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
