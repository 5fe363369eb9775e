// Package embedding wraps external text-embedding providers behind a
// single Client interface. Implementations are long-lived and safe for
// concurrent use; callers never construct one per request.
//
// Transient backend failures surface as domain.ErrEmbeddingUnavailable
// after the client's bounded retries are exhausted. Dimensionality is
// fixed per model and validated against the knowledge base
// configuration by the caller — never silently truncated or padded.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/chatforge/knowledge/internal/domain"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 5 * time.Second

// Client generates fixed-length float vectors for text.
type Client interface {
	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	// Batching is an optimization; correctness only requires order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector length this client produces.
	Dimensions() int

	// Model reports the backing model name.
	Model() string
}

// ValidateDimensions checks that a client's output matches the
// dimensionality a knowledge base was configured with.
func ValidateDimensions(c Client, want int) error {
	if got := c.Dimensions(); got != want {
		return fmt.Errorf("%w: model %s produces %d dimensions, knowledge base configured for %d",
			domain.ErrConfig, c.Model(), got, want)
	}
	return nil
}
