// Package ai provides common error types shared by the speech capabilities
// (recognition and synthesis) the voice core is built on.
package ai

import (
	"errors"
)

var (
	// ErrRecoverable indicates a temporary failure that the caller may surface
	// and let the user retry. The voice core never retries on its own.
	// Examples: a recognizer that stopped after silence, a dropped bridge.
	ErrRecoverable = errors.New("recoverable speech capability error")

	// ErrFatal indicates a permanent failure for the current voice session.
	// Examples: microphone permission denied, network recognizer refused.
	ErrFatal = errors.New("fatal speech capability error")

	// ErrCapabilityUnavailable is returned when the runtime does not provide
	// recognition or synthesis at all. It is always fatal.
	ErrCapabilityUnavailable = &RetryableError{
		Underlying: errors.New("capability unavailable"),
		Retryable:  false,
		Message:    "speech capability not available",
	}
)

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal for the voice path.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// RetryableError wraps an underlying error with a recoverable/fatal classification.
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" || e.Underlying == nil {
		return e.Message
	}
	return e.Underlying.Error()
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *RetryableError) Unwrap() []error {
	class := ErrFatal
	if e.Retryable {
		class = ErrRecoverable
	}
	if e.Underlying == nil {
		return []error{class}
	}
	return []error{class, e.Underlying}
}

// NewRecoverableError creates a recoverable error with context
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  true,
		Message:    message,
	}
}

// NewFatalError creates a fatal error with context
func NewFatalError(underlying error, message string) error {
	return &RetryableError{
		Underlying: underlying,
		Retryable:  false,
		Message:    message,
	}
}
