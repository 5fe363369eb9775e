package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retrieval engine.
//
// Callers check these with errors.Is(); layers wrap them with
// fmt.Errorf("...: %w", err) to add context without losing identity.
var (
	// ErrConfig indicates an invalid chunking or embedding
	// configuration (bad overlap, dimension mismatch). Never retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the embedding backend could not
	// be reached or timed out after the client's bounded retries.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrBackendUnavailable indicates the vector store is unreachable
	// or degraded. Triggers the lexical fallback in retrieval.
	ErrBackendUnavailable = errors.New("vector backend unavailable")

	// ErrRetrievalFailed indicates both the vector and fallback paths
	// failed. The caller gets no partial result.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrNotFound indicates a requested row does not exist in the
	// relational store.
	ErrNotFound = errors.New("not found")
)

// ChunkError records a single chunk's failure during reindexing. It is
// aggregated into the rebuild report and never aborts the pass.
type ChunkError struct {
	ChunkID string
	Op      string // "embed" or "upsert"
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s: %s failed: %v", e.ChunkID, e.Op, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
