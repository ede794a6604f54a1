// Package platform provides the ambient stack shared by every kernel
// component: structured logging, a small typed-error taxonomy, and
// environment-driven configuration loading.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in the kernel's error handling design.
// Components compare against these with errors.Is; callers that need the
// kind without caring about the wrapped detail use the IsX helpers below.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrStorageFailure     = errors.New("storage failure")
	ErrTimeout            = errors.New("operation timeout")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrMaxAttemptsReached = errors.New("maximum attempts reached")
	ErrCancelled          = errors.New("operation cancelled")
	ErrOperationFailure   = errors.New("operation failed")
	ErrRecoveryFailed     = errors.New("recovery plan failed")
)

// KernelError carries structured context around a wrapped error, the way
// a caller-facing diagnostic should: which operation, what kind of
// failure, which entity, and the underlying cause.
type KernelError struct {
	Op      string // e.g. "ledger.Begin", "breaker.Execute"
	Kind    string // taxonomy kind: invalid_input, not_found, storage_failure, timeout, ...
	ID      string // key/operation name involved, if any
	Message string
	Err     error
}

func (e *KernelError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *KernelError) Unwrap() error { return e.Err }

// NewKernelError builds a KernelError wrapping err under op/kind.
func NewKernelError(op, kind string, err error) *KernelError {
	return &KernelError{Op: op, Kind: kind, Err: err}
}

// IsNotFound reports whether err represents a missing token or record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents malformed caller input.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsStorageFailure reports whether err represents a disk I/O failure.
func IsStorageFailure(err error) bool { return errors.Is(err, ErrStorageFailure) }

// IsTimeout reports whether err represents a deadline exceeded, either
// the kernel's own sentinel or the standard context.DeadlineExceeded.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCircuitOpen reports whether err represents a breaker admission denial.
func IsCircuitOpen(err error) bool { return errors.Is(err, ErrCircuitOpen) }

// IsCancelled reports whether err represents a fired cancellation signal.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Retryable reports whether an error kind should ever be transparently
// retried. InvalidInput, NotFound, StorageFailure, CircuitOpen and
// Cancelled are never transparently retried per the kernel's error
// handling design; everything else may be, subject to policy.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsInvalidInput(err), IsNotFound(err), IsStorageFailure(err),
		IsCircuitOpen(err), IsCancelled(err):
		return false
	default:
		return true
	}
}
