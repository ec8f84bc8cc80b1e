// ABOUTME: Tests for backoff calculation and the Retry loop
// ABOUTME: Covers bounds, jitter, the delay cap, exhaustion and cancellation
package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{"negative attempt", time.Second, -3, 0, 0},
		{"zero attempt", time.Second, 0, 0, 0},
		{"first retry", 100 * time.Millisecond, 1, 150 * time.Millisecond, 250 * time.Millisecond},
		{"third retry", 100 * time.Millisecond, 3, 600 * time.Millisecond, time.Second},
		{"capped", time.Second, 10, MaxBackoff * 3 / 4, MaxBackoff * 5 / 4},
		{"huge attempt", time.Millisecond, 1000, MaxBackoff * 3 / 4, MaxBackoff * 5 / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				got := CalculateBackoff(tt.base, tt.attempt)
				if got < tt.min || got > tt.max {
					t.Fatalf("CalculateBackoff(%v, %d) = %v, want in [%v, %v]", tt.base, tt.attempt, got, tt.min, tt.max)
				}
			}
		})
	}
}

func TestCalculateBackoff_Jitters(t *testing.T) {
	first := CalculateBackoff(time.Second, 2)
	for i := 0; i < 100; i++ {
		if CalculateBackoff(time.Second, 2) != first {
			return
		}
	}
	t.Error("CalculateBackoff() returned the same value 101 times, want jitter")
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context, attempt int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Second, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
