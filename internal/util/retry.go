// ABOUTME: Retry utilities for model calls with exponential backoff
// ABOUTME: Shared by every generation backend and the embeddings client
package util

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MaxBackoff caps the delay before jitter is applied
const MaxBackoff = 30 * time.Second

// CalculateBackoff returns base * 2^attempt, capped at MaxBackoff, with ±25% jitter.
// Attempts at or below zero wait nothing.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// keep the shift in range
	attempt = min(attempt, 30)

	backoff := min(baseDelay*time.Duration(1<<uint(attempt)), MaxBackoff)
	if backoff < 4 {
		return backoff
	}
	return backoff - backoff/4 + time.Duration(rand.Int64N(int64(backoff)/2))
}

// Retry calls fn up to maxRetries+1 times, sleeping with CalculateBackoff between
// attempts. It stops early when ctx is done and returns the last error wrapped.
func Retry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(CalculateBackoff(baseDelay, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}
