package helpers

import (
	"context"
	"math/rand"
	"time"
)

// -----------------------------------------------------------------------------
// Backoff
// -----------------------------------------------------------------------------

// Backoff produces exponentially growing, capped, fully jittered delays.
// Not safe for concurrent use; each retry loop owns its own.
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	attempt int
	jitter  func(time.Duration) time.Duration
}

// -----------------------------------------------------------------------------

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{
		Min: min,
		Max: max,
		jitter: func(d time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(d) + 1))
		},
	}
}

// -----------------------------------------------------------------------------

// Ceiling returns the un-jittered delay for the current attempt.
func (b *Backoff) Ceiling() time.Duration {
	d := b.Min
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

// -----------------------------------------------------------------------------

// Next returns the delay to wait before the next attempt and advances the
// attempt counter. The delay is drawn uniformly from [0, ceiling].
func (b *Backoff) Next() time.Duration {
	ceiling := b.Ceiling()
	b.attempt++
	return b.jitter(ceiling)
}

// -----------------------------------------------------------------------------

func (b *Backoff) Reset() {
	b.attempt = 0
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// Sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// -----------------------------------------------------------------------------

// RetryWithBackoff calls fn until it succeeds, ctx is cancelled, or maxRetries
// attempts have failed (maxRetries <= 0 means retry forever). onRetry, when
// non-nil, is told about every failure before the wait.
func RetryWithBackoff(ctx context.Context, b *Backoff, maxRetries int, fn func() error, onRetry func(attempt int, err error, wait time.Duration)) error {
	var lastErr error
	for attempt := 1; maxRetries <= 0 || attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			b.Reset()
			return nil
		}
		if maxRetries > 0 && attempt == maxRetries {
			break
		}

		wait := b.Next()
		if onRetry != nil {
			onRetry(attempt, lastErr, wait)
		}
		if !Sleep(ctx, wait) {
			return lastErr
		}
	}
	return lastErr
}
