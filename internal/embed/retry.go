package embed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smartdocs/retrieval/internal/log"
)

// RetryPolicy retries transient failures with exponential backoff. The first
// retry waits BaseDelay, each later retry multiplies the wait by
// BackoffFactor.
type RetryPolicy struct {
	MaxTries      int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns the stock policy: 3 tries, 1.5s base delay,
// doubling between tries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:      3,
		BaseDelay:     1500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Do runs fn up to MaxTries times, sleeping between attempts. It stops early
// on success, on a non-retryable error, or when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, logger log.Logger, op string, fn func() error) error {
	tries := p.MaxTries
	if tries < 1 {
		tries = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == tries {
			return lastErr
		}

		logger.Warn("retrying after transient failure",
			"op", op,
			"attempt", attempt,
			"max_tries", tries,
			"delay", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
	return lastErr
}

// retryable classifies provider errors. Cancellation and client-side API
// errors (bad request, bad credentials) never retry; timeouts, throttling,
// network failures, and server errors do.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return true
		default:
			return apiErr.HTTPStatusCode >= 500
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown failures are treated as transient.
	return true
}
