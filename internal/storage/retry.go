package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmynk/divvy/internal/metrics"
)

// RetryPolicy bounds retries of transient storage failures. The wait before
// retry n is n × Step.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

// DefaultRetryPolicy is three attempts, 500ms apart then 1s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Step: 500 * time.Millisecond}
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var n int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * p.Step, false
	})
	return retry.WithMaxRetries(uint64(attempts-1), linear)
}

// Do runs fn until it succeeds or the attempts are used up, returning the
// last error. ErrNotFound and context errors are returned immediately.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.StorageRetries.WithLabelValues(op).Inc()
		}

		err := fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		slog.Warn("Storage operation failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"error", err,
		)
		return retry.RetryableError(err)
	})
}

func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
