package helpers

import (
	"time"

	"stock-streamer/src/logger"
)

// -----------------------------------------------------------------------------
// Retry Policy
// -----------------------------------------------------------------------------

// RetryPolicy is the uniform retry configuration shared by the session
// manager and the upstream client.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the bounded policy used for upstream calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	}
}

// Delay returns the backoff before the given retry. The first call of
// an operation is attempt 1, so the wait grows linearly: base, 2*base...
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// -----------------------------------------------------------------------------

// Do runs fn up to MaxAttempts times. A nil error stops the loop.
// retryable decides whether a failure is transient; a non-transient
// failure is returned immediately without consuming further attempts.
func (p RetryPolicy) Do(operation string, log *logger.Logger, retryable func(error) bool, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if log != nil {
			log.Warning("%s failed (attempt %d/%d): %v. Retrying in %v",
				operation, attempt, p.MaxAttempts, err, delay)
		}
		time.Sleep(delay)
	}

	return lastErr
}
