package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chatforge/knowledge/internal/domain"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestWithRetryRecoversAfterFailure(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry = %v, want nil", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("backend down")
	})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("withRetry = %v, want ErrEmbeddingUnavailable", err)
	}
	// One initial attempt plus exactly two retries.
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetry(ctx, func(context.Context) error {
		attempts++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("withRetry = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestWithRetryCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- withRetry(ctx, func(context.Context) error {
			attempts++
			return fmt.Errorf("still down")
		})
	}()

	// Let the first attempt fail and enter its backoff wait.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("withRetry = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("withRetry did not return after cancellation")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

type fixedDimsClient struct {
	dims  int
	model string
}

func (c fixedDimsClient) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, c.dims), nil
}

func (c fixedDimsClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, c.dims)
	}
	return out, nil
}

func (c fixedDimsClient) Dimensions() int { return c.dims }

func (c fixedDimsClient) Model() string { return c.model }

func TestValidateDimensions(t *testing.T) {
	client := fixedDimsClient{dims: 1536, model: "test-model"}

	if err := ValidateDimensions(client, 1536); err != nil {
		t.Errorf("matching dimensions: %v, want nil", err)
	}
	if err := ValidateDimensions(client, 768); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("mismatched dimensions: %v, want ErrConfig", err)
	}
}
