// Package domainerrors provides coded errors for the registrar core.
// Services wrap infrastructure errors with a stable code so callers can
// branch on outcomes (capacity, duplicate, circuit open, timeout, ...)
// without parsing error text. Sentinel errors for raw infrastructure facts
// live in pkg/platform/sentinel; this package is the domain-facing layer.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are part of the public contract:
// handlers and callers switch on them.
type Code string

const (
	// CodeInvalidInput marks malformed input at a trust boundary.
	CodeInvalidInput Code = "invalid_input"

	// CodeCapacityExceeded is the terminal business outcome for a full
	// course. Never retryable.
	CodeCapacityExceeded Code = "capacity_exceeded"

	// CodeDuplicateEnrollment is the terminal business outcome for a
	// student already enrolled in the course. Never retryable.
	CodeDuplicateEnrollment Code = "duplicate_enrollment"

	// CodeTransient marks a failure worth retrying (downstream hiccup,
	// connection reset, store briefly unavailable).
	CodeTransient Code = "transient"

	// CodePermanent marks a failure that retrying cannot fix.
	CodePermanent Code = "permanent"

	// CodeValidation marks a per-record validation failure during sync.
	// Non-fatal to the batch.
	CodeValidation Code = "validation"

	// CodeIntegrity marks a per-record referential-integrity failure
	// (source references an unresolvable foreign entity).
	CodeIntegrity Code = "integrity_violation"

	// CodeCircuitOpen is returned without touching the downstream
	// dependency while its circuit is open.
	CodeCircuitOpen Code = "circuit_open"

	// CodeTimeout marks an attempt that could not complete within its
	// deadline. Terminal for that attempt.
	CodeTimeout Code = "timeout"

	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a concurrent-modification conflict.
	CodeConflict Code = "conflict"

	// CodeInternal is the catch-all for unexpected internal failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from the outermost coded error in the chain.
// Uncoded errors report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// IsRetryable reports whether the error is worth another attempt.
// Capacity, duplicate, validation, and circuit-open outcomes are terminal;
// only transient failures qualify.
func IsRetryable(err error) bool {
	return HasCode(err, CodeTransient)
}
