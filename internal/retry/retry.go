// Package retry provides bounded retry with backoff for externally-flaky
// operations (login, navigation, element discovery, submission, generation).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Class describes how an error should be handled by the retry loop.
type Class int

const (
	// ClassFatal errors propagate immediately without consuming retry budget.
	ClassFatal Class = iota
	// ClassRetryable errors are retried with linear backoff: one re-render is
	// usually all they need.
	ClassRetryable
	// ClassTimeout errors indicate transient load and back off exponentially.
	ClassTimeout
)

// Classifier maps an error to its retry class.
type Classifier func(error) Class

// Policy defines the bounds of a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is called before each re-attempt sleep, for observability.
	OnRetry func(name string, attempt int, delay time.Duration, err error)
}

// DefaultPolicy mirrors the production defaults: three attempts, five seconds
// between them.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   5 * time.Second,
	MaxDelay:    60 * time.Second,
}

// DefaultClassifier treats context cancellation as fatal and everything else
// as generically retryable. Callers with a richer taxonomy supply their own.
func DefaultClassifier(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	return ClassRetryable
}

// Delay computes the backoff before re-attempt number attempt (0-based count
// of completed attempts).
func (p Policy) Delay(class Class, attempt int) time.Duration {
	var d time.Duration
	if class == ClassTimeout {
		d = p.BaseDelay << attempt
	} else {
		d = p.BaseDelay * time.Duration(attempt+1)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op up to p.MaxAttempts times, sleeping per the error class between
// attempts. Fatal-class errors propagate immediately; after exhaustion the
// last attempt's error is returned.
func Do[T any](ctx context.Context, name string, p Policy, classify Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if classify == nil {
		classify = DefaultClassifier
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s cancelled: %w", name, err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := classify(err)
		if class == ClassFatal {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(class, attempt)
		if p.OnRetry != nil {
			p.OnRetry(name, attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, p.MaxAttempts, lastErr)
}
