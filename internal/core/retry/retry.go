package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// TransientError marks a remote-call failure that is expected to succeed on
// retry (rate limit, timeout, temporary unavailability). Anything not wrapped
// as transient is surfaced after the first attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so that Policy.Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// TransientStatus reports whether an HTTP status code is retryable.
func TransientStatus(code int) bool {
	return code == 429 || code >= 500
}

// IsTransient reports whether err should be retried. Besides the explicit
// TransientError wrapper, SDK errors that carry an HTTP status (Google API
// clients, smithy-based AWS clients) are classified by that status.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return TransientStatus(ge.Code)
	}
	var hs interface{ HTTPStatusCode() int }
	if errors.As(err, &hs) {
		return TransientStatus(hs.HTTPStatusCode())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Policy retries an operation with exponential backoff and jitter. Only
// errors classified as transient are retried; everything else is returned
// after one attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	logger *zap.Logger
}

func NewPolicy(maxAttempts int, base, max time.Duration, logger *zap.Logger) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: max, logger: logger}
}

// Do runs fn up to MaxAttempts times. Backoff between attempts is
// base × 2^(attempt-1) capped at MaxDelay, plus up to 20% random jitter.
// The sleep is context-aware and never blocks unrelated work.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt)
			p.logger.Info("retrying remote call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 2)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.2 * float64(delay))
	return delay + jitter
}
