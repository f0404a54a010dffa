package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
)

// RetryStrategy defines exponential backoff retry logic for directory lookups.
type RetryStrategy struct {
	MaxAttempts int           // Default: 3
	BaseBackoff time.Duration // Default: 200ms
	MaxBackoff  time.Duration // Default: 2 seconds
	Jitter      bool          // Enable jitter (default: true)
}

// NewRetryStrategy creates a RetryStrategy with defaults suitable for
// request-scoped lookups.
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the duration to wait before the given attempt number.
// Attempts are 1-based: 200ms, 400ms, 800ms... capped at MaxBackoff.
func (s *RetryStrategy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return s.BaseBackoff
	}

	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.BaseBackoff
	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		jitterRange := backoff / 10
		if jitterRange > 0 {
			backoff += time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// Do runs fn up to MaxAttempts times with exponential backoff between
// attempts. Not-found results are returned immediately; exhausted retries
// surface as apperr.ErrUpstreamUnavailable so the caller can safely retry
// the whole operation.
func (s *RetryStrategy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || errors.Is(lastErr, apperr.ErrNotFound) {
			return lastErr
		}

		if attempt == s.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Backoff(attempt)):
		}
	}

	return fmt.Errorf("%w: directory lookup failed after %d attempts: %v",
		apperr.ErrUpstreamUnavailable, s.MaxAttempts, lastErr)
}
