package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestChunkError(t *testing.T) {
	cause := fmt.Errorf("timeout: %w", ErrEmbeddingUnavailable)
	err := &ChunkError{ChunkID: "chunk-42", Op: "embed", Err: cause}

	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Error("ChunkError does not unwrap to its cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "chunk-42") || !strings.Contains(msg, "embed") {
		t.Errorf("message %q missing chunk id or operation", msg)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrConfig, ErrEmbeddingUnavailable, ErrBackendUnavailable, ErrRetrievalFailed, ErrNotFound}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v matches %v", a, b)
			}
		}
	}
}
