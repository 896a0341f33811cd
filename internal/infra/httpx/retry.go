package httpx

import (
	"context"
	"net/http"
	"time"
)

// Policy parameterizes the shared retry loop. The scattered per-call-site
// backoff loops this replaces all reduce to a Policy value.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// RetryableStatus reports whether an HTTP status is worth another
	// attempt. Nil falls back to DefaultRetryable.
	RetryableStatus func(code int) bool
}

// DefaultRetryable retries on 429 and any 5xx.
func DefaultRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.RetryableStatus == nil {
		p.RetryableStatus = DefaultRetryable
	}
	return p
}

// Do runs fn up to MaxAttempts times with exponential backoff. fn returns the
// HTTP status it saw (0 when the request never got a response) and an error.
// A nil error ends the loop; a non-retryable status ends it with the error.
// Only read paths should go through Do: write paths surface their first
// failure to the caller instead of being silently retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) (status int, err error)) error {
	p = p.normalized()
	delay := p.BaseDelay
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		status, err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if status != 0 && !p.RetryableStatus(status) {
			return err
		}
	}
	return lastErr
}
