// Package testutil provides the shared test doubles and integration
// infrastructure of the engine: a deterministic embedder, in-memory
// chunk and vector stores, and a PostgreSQL testcontainer with the
// pgvector extension.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/chatforge/knowledge/internal/domain"
)

// StaticEmbedder produces deterministic embeddings from token hashes:
// the same text always maps to the same unit vector, and texts sharing
// words land close in cosine space. No network, no randomness.
type StaticEmbedder struct {
	dims  int
	model string

	mu       sync.Mutex
	failFor  map[string]bool // texts that fail with ErrEmbeddingUnavailable
	failAll  bool
	embedded int
}

// NewStaticEmbedder creates an embedder with the given dimensionality.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	return &StaticEmbedder{
		dims:    dims,
		model:   "static-test-embedder",
		failFor: make(map[string]bool),
	}
}

// FailFor makes embedding the exact text fail until cleared.
func (e *StaticEmbedder) FailFor(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failFor[text] = true
}

// ClearFailures restores normal operation.
func (e *StaticEmbedder) ClearFailures() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failFor = make(map[string]bool)
	e.failAll = false
}

// SetUnavailable makes every embedding call fail, simulating an
// unreachable backend.
func (e *StaticEmbedder) SetUnavailable(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAll = down
}

// EmbedCount reports how many texts were embedded successfully.
func (e *StaticEmbedder) EmbedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.embedded
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.failAll || e.failFor[text] {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: static embedder configured to fail", domain.ErrEmbeddingUnavailable)
	}
	e.embedded++
	e.mu.Unlock()

	vec := make([]float32, e.dims)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	} else {
		vec[0] = 1 // empty text still gets a unit vector
	}
	return vec, nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) Model() string { return e.model }
