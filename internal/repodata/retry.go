package repodata

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// RetryPolicy controls exponential backoff for transient fetch
// failures (5xx, truncated body, connection reset).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors conda's conservative default: a handful
// of attempts with capped exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// Delay returns the backoff delay before attempt (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 32 {
		shift = 32
	}
	d := p.BaseDelay << uint(shift)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// Retryable reports whether a fetch outcome (status code and/or error)
// should be retried under this policy. An error carrying a rerrors kind
// is retried only when that kind is retryable, so permanent failures
// (invalid path, unsupported scheme, permanent fetch errors) are not.
func Retryable(statusCode int, err error) bool {
	if err != nil {
		var rerr *rerrors.Error
		if errors.As(err, &rerr) {
			return rerr.Retryable()
		}
		var netErr net.Error
		if isNetError(err, &netErr) {
			return true
		}
		return true // connection reset / truncated body surface as generic errors here
	}
	return statusCode >= 500 && statusCode < 600
}

func isNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

// Do runs fn, retrying per policy while ctx is not done and Retryable
// reports true for the returned status/error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) (statusCode int, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := fn(attempt)
		if err == nil && !(status >= 500 && status < 600) {
			return nil
		}
		lastErr = err
		if !Retryable(status, err) || attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = &http.ProtocolError{ErrorString: "exhausted retries"}
	}
	return lastErr
}
