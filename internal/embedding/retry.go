package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/chatforge/knowledge/internal/domain"
)

// retry policy for unavailable backends: exactly two retries with
// exponential backoff. A failed first attempt waits 200ms, a failed
// second waits 800ms, then the error propagates.
const (
	maxRetries        = 2
	initialRetryDelay = 200 * time.Millisecond
	backoffMultiplier = 4
)

// withRetry runs fn, retrying transient failures per the policy above.
// Context cancellation is honored both before each attempt and while
// waiting out a backoff delay.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	delay := initialRetryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt >= maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= backoffMultiplier
	}

	return fmt.Errorf("%w: %d retries exhausted: %v", domain.ErrEmbeddingUnavailable, maxRetries, lastErr)
}
