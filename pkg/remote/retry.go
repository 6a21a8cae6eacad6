package remote

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryTransport wraps another Transport with exponential backoff. It retries
// transport errors, HTTP 429 and 5xx replies; other replies are returned
// as-is. Clone never retries on its own.
type RetryTransport struct {
	Next        Transport
	MaxAttempts int           // total attempts (default 3)
	Backoff     time.Duration // first delay, doubled per attempt (default 1s)
}

// Get implements Transport.
func (t *RetryTransport) Get(ctx context.Context, path string) (*Response, error) {
	maxAttempts := t.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoff := t.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastResp *Response
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		resp, err := t.Next.Get(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			lastResp = nil
			continue
		}
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastResp = resp
		lastErr = nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

// URL forwards to the wrapped transport when it knows its URL.
func (t *RetryTransport) URL() string {
	if u, ok := t.Next.(interface{ URL() string }); ok {
		return u.URL()
	}
	return ""
}

// isRetryableStatus returns true for HTTP status codes that should be retried.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
