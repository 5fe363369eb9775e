// Package domain holds the shared types of the knowledge retrieval
// engine: knowledge bases, documents, chunks, search results, and the
// error taxonomy every layer agrees on.
//
// The package has no dependencies beyond the standard library so that
// chunker, embedding, vectorstore, and retrieval can all import it
// without cycles.
package domain

import "time"

// ChunkStrategy selects how a document's text is split into chunks.
type ChunkStrategy string

const (
	// StrategyFixed cuts every ChunkSize characters.
	StrategyFixed ChunkStrategy = "fixed"

	// StrategyRecursive tries paragraph, then sentence, then character
	// boundaries, preferring the largest unit that fits.
	StrategyRecursive ChunkStrategy = "recursive"

	// StrategySemantic groups whole sentences until the size budget is
	// hit, never splitting a sentence.
	StrategySemantic ChunkStrategy = "semantic"
)

// Valid reports whether s is a known chunking strategy.
func (s ChunkStrategy) Valid() bool {
	switch s {
	case StrategyFixed, StrategyRecursive, StrategySemantic:
		return true
	}
	return false
}

// DocumentType categorizes the origin of a document's content.
type DocumentType string

const (
	DocumentTypeFile     DocumentType = "file"
	DocumentTypeURL      DocumentType = "url"
	DocumentTypeRichText DocumentType = "rich_text"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// KnowledgeBase is a named container of documents owned by one tenant.
// Its chunking and embedding configuration is immutable per reindex
// epoch: changing it invalidates existing vectors and requires Rebuild.
type KnowledgeBase struct {
	ID       string
	TenantID string
	Name     string

	ChunkStrategy       ChunkStrategy
	ChunkSize           int
	ChunkOverlap        int
	EmbeddingModel      string
	EmbeddingDimensions int
	SimilarityThreshold float32
	MaxResults          int

	CreatedAt time.Time
}

// Document belongs to exactly one knowledge base.
type Document struct {
	ID              string
	KnowledgeBaseID string
	Title           string
	Filename        string
	Type            DocumentType
	Status          DocumentStatus
	CreatedAt       time.Time
}

// Chunk is the unit of embedding and retrieval: a bounded slice of a
// document's text. OrderIndex is 0-based and contiguous within the
// document, which is what lets retrieval reconstruct original order.
type Chunk struct {
	ID         string
	DocumentID string
	OrderIndex int
	Content    string
	CharCount  int
	TokenCount int
	CreatedAt  time.Time
}

// SearchStrategy marks which path produced a search result, so that
// downstream consumers can adjust confidence messaging.
type SearchStrategy string

const (
	// SearchStrategySemantic means the result came from vector search.
	SearchStrategySemantic SearchStrategy = "semantic"

	// SearchStrategyFallback means the vector backend was unavailable
	// and the result came from lexical full-text ranking.
	SearchStrategyFallback SearchStrategy = "fallback"
)

// SearchResult is one enriched retrieval hit.
type SearchResult struct {
	ChunkID           string         `json:"chunk_id"`
	DocumentID        string         `json:"document_id"`
	DocumentTitle     string         `json:"document_title"`
	DocumentFilename  string         `json:"document_filename,omitempty"`
	DocumentType      DocumentType   `json:"document_type"`
	KnowledgeBaseID   string         `json:"knowledge_base_id"`
	KnowledgeBaseName string         `json:"knowledge_base_name"`
	OrderIndex        int            `json:"order_index"`
	Score             float32        `json:"score"`
	Strategy          SearchStrategy `json:"strategy"`

	// Content is populated only when the caller asked for it.
	Content string `json:"content,omitempty"`
}
