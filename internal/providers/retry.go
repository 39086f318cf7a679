package providers

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	maxDelay           = 8 * time.Second
)

// RetryingCompletion wraps a CompletionProvider with exponential backoff plus
// jitter on overload-class errors. All other errors propagate immediately.
type RetryingCompletion struct {
	next        CompletionProvider
	maxAttempts int
	baseDelay   time.Duration
	log         *logrus.Logger

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration) error
}

// WithRetry wraps next with a bounded retry policy. maxAttempts <= 0 selects
// the default cap.
func WithRetry(next CompletionProvider, maxAttempts int, log *logrus.Logger) *RetryingCompletion {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &RetryingCompletion{
		next:        next,
		maxAttempts: maxAttempts,
		baseDelay:   defaultBaseDelay,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Complete performs the completion, retrying overloads with backoff.
func (r *RetryingCompletion) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			r.log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			}).Warn("inference endpoint overloaded, backing off")
			if err := r.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		text, err := r.next.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if !IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// backoff returns base * 2^(attempt-1) with up to 50% jitter, capped.
func (r *RetryingCompletion) backoff(attempt int) time.Duration {
	delay := r.baseDelay << (attempt - 1)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
