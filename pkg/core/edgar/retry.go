package edgar

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// maxBackoff caps a single wait between attempts.
const maxBackoff = 10 * time.Second

// retryable reports whether err is worth another attempt: 429, 5xx and
// network failures. Other 4xx and context errors are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoff returns the wait before retry number attempt (1-based): the base
// delay doubled per attempt, capped, with up to 25% jitter either way.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 20 {
		attempt = 20
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half)) - d/4 //nolint:gosec // jitter doesn't need crypto-strength randomness
	}
	return d
}

// withRetry runs fn, retrying up to maxRetries times on retryable errors.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(baseDelay, attempt+1)):
		}
	}
	return err
}
