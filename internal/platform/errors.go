package platform

import (
	"errors"
	"fmt"

	"github.com/replypilot/replypilot/internal/retry"
)

// ErrorType classifies adapter failures for retry and escalation decisions.
type ErrorType int8

const (
	// ErrAuthFailed: credentials rejected. Terminal, never retried within a
	// run since credentials are assumed stable.
	ErrAuthFailed ErrorType = iota
	// ErrNavigationFailed: a page or view failed to open. Retryable.
	ErrNavigationFailed
	// ErrElementTimeout: an expected element did not appear in time. Retryable
	// with timeout-class backoff.
	ErrElementTimeout
	// ErrSubmissionRejected: the platform refused the reply text itself.
	// Terminal; escalates to manual handling.
	ErrSubmissionRejected
)

// String returns the taxonomy code persisted as error_reason.
func (t ErrorType) String() string {
	switch t {
	case ErrAuthFailed:
		return "auth_failed"
	case ErrNavigationFailed:
		return "navigation_failed"
	case ErrElementTimeout:
		return "element_timeout"
	case ErrSubmissionRejected:
		return "submission_rejected"
	default:
		return "unknown"
	}
}

// Error is an adapter failure tagged with its taxonomy type.
type Error struct {
	Type ErrorType
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged adapter error.
func NewError(t ErrorType, msg string, cause error) *Error {
	return &Error{Type: t, Msg: msg, Err: cause}
}

// TypeOf extracts the taxonomy type. ok is false for untagged errors.
func TypeOf(err error) (ErrorType, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// Classify maps adapter errors onto retry classes. Untagged errors fall back
// to the default classifier.
func Classify(err error) retry.Class {
	t, ok := TypeOf(err)
	if !ok {
		return retry.DefaultClassifier(err)
	}
	switch t {
	case ErrNavigationFailed:
		return retry.ClassRetryable
	case ErrElementTimeout:
		return retry.ClassTimeout
	default:
		return retry.ClassFatal
	}
}
