package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{sarama.ErrLeaderNotAvailable, true},
		{sarama.ErrRequestTimedOut, true},
		{sarama.ErrNotController, true},
		{sarama.ErrOffsetsLoadInProgress, true},
		{fmt.Errorf("wrapped: %w", sarama.ErrRequestTimedOut), true},
		{sarama.ErrTopicAlreadyExists, false},
		{sarama.ErrUnknownTopicOrPartition, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	if backoff(0) != initialBackoff {
		t.Errorf("backoff(0) = %v, want %v", backoff(0), initialBackoff)
	}
	for attempt := 0; attempt < 10; attempt++ {
		if d := backoff(attempt); d > maxBackoff {
			t.Errorf("backoff(%d) = %v exceeds cap %v", attempt, d, maxBackoff)
		}
	}
}

func TestDoWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), 3, func() error {
		calls++
		return sarama.ErrTopicAlreadyExists
	})
	if !errors.Is(err, sarama.ErrTopicAlreadyExists) {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestDoWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return sarama.ErrRequestTimedOut
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := doWithRetry(ctx, 10, func() error {
		return sarama.ErrRequestTimedOut
	})
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, sarama.ErrRequestTimedOut) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDoWithRetryValue(t *testing.T) {
	calls := 0
	val, err := doWithRetryValue(context.Background(), 3, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, sarama.ErrLeaderNotAvailable
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}
