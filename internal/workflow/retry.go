package workflow

import (
	"context"
	"time"
)

// RetryPolicy bounds repeated attempts of a single operation with
// exponential backoff. MaxAttempts counts the first attempt plus retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// Default retry policies. Status writes retry quickly; the heavier
// extraction and vectorization stages back off further between attempts.
var (
	statusRetryPolicy = RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     3,
	}

	heavyStagePolicy = RetryPolicy{
		InitialInterval: 5 * time.Second,
		MaxInterval:     2 * time.Minute,
		MaxAttempts:     3,
	}

	lightStagePolicy = RetryPolicy{
		InitialInterval: 5 * time.Second,
		MaxInterval:     time.Minute,
		MaxAttempts:     3,
	}
)

// Do invokes fn until it succeeds, exhausts MaxAttempts, returns a
// non-retryable error, or ctx is cancelled. The attempt number passed to
// fn is 1-based.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = fn(ctx, attempt); err == nil {
			return nil
		}

		if !Retryable(err) || attempt == attempts {
			return err
		}

		if waitErr := sleep(ctx, p.Interval(attempt)); waitErr != nil {
			return waitErr
		}
	}

	return err
}

// Interval returns the backoff delay after the given 1-based attempt:
// InitialInterval doubled per attempt, capped at MaxInterval.
func (p RetryPolicy) Interval(attempt int) time.Duration {
	interval := p.InitialInterval
	for i := 1; i < attempt; i++ {
		interval *= 2
		if p.MaxInterval > 0 && interval >= p.MaxInterval {
			return p.MaxInterval
		}
	}

	if p.MaxInterval > 0 && interval > p.MaxInterval {
		return p.MaxInterval
	}
	return interval
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
