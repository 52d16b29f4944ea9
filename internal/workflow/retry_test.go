package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strathearn/conductor/internal/workflow"
)

func fastPolicy(attempts int) workflow.RetryPolicy {
	return workflow.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxAttempts:     attempts,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt != 1 {
			t.Errorf("attempt = %d, want 1", attempt)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return workflow.Transient(errors.New("flaky"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	fatal := workflow.Fatal(errors.New("bad input"))

	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Fatalf("Do error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := workflow.Transient(errors.New("still down"))

	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return transient
	})

	if !errors.Is(err, transient) {
		t.Fatalf("Do error = %v, want %v", err, transient)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	policy := workflow.RetryPolicy{MaxAttempts: 0}
	_ = policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return workflow.Transient(errors.New("nope"))
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastPolicy(3).Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDoStopsRetryingAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := fastPolicy(5).Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return workflow.Transient(errors.New("flaky"))
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestInterval(t *testing.T) {
	policy := workflow.RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     10,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{6, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Interval(tt.attempt); got != tt.want {
			t.Errorf("Interval(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestIntervalNoCap(t *testing.T) {
	policy := workflow.RetryPolicy{InitialInterval: time.Second}

	if got := policy.Interval(3); got != 4*time.Second {
		t.Errorf("Interval(3) = %s, want 4s", got)
	}
}
