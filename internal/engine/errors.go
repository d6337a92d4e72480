package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running a tick.
//
// Runtime errors include:
//   - System failure: a system returned an error (the tick continues)
//   - System panic: a system panicked (recovered, the tick continues)
//   - Contract halt: a hard violation rolled the tick back
//   - Reentrant transition: an era tried to transition twice
//   - Quota exceeded: a tick produced more mutations than allowed
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Tick is the tick the error occurred in.
	Tick int64

	// SystemID identifies the failing system, if any.
	SystemID string

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSystemFailed indicates a system returned an error.
	ErrCodeSystemFailed RuntimeErrorCode = "SYSTEM_FAILED"

	// ErrCodeSystemPanic indicates a system panicked.
	ErrCodeSystemPanic RuntimeErrorCode = "SYSTEM_PANIC"

	// ErrCodeContractHalt indicates a hard contract violation.
	ErrCodeContractHalt RuntimeErrorCode = "CONTRACT_HALT"

	// ErrCodeReentrantTransition indicates an era transitioned twice.
	ErrCodeReentrantTransition RuntimeErrorCode = "REENTRANT_TRANSITION"

	// ErrCodeQuotaExceeded indicates a tick exceeded the mutation quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// ErrHalted is returned by Step once the run has halted.
var ErrHalted = errors.New("run halted")

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.SystemID != "" {
		return fmt.Sprintf("%s: %s (tick=%d, system=%s)", e.Code, e.Message, e.Tick, e.SystemID)
	}
	return fmt.Sprintf("%s: %s (tick=%d)", e.Code, e.Message, e.Tick)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// IsHaltError returns true if the error halted the run.
// Uses errors.As to handle wrapped errors.
func IsHaltError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeContractHalt || re.Code == ErrCodeQuotaExceeded
	}
	return false
}

// IsSystemError returns true if the error came from a single system.
// Uses errors.As to handle wrapped errors.
func IsSystemError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		switch re.Code {
		case ErrCodeSystemFailed, ErrCodeSystemPanic, ErrCodeReentrantTransition:
			return true
		}
	}
	return false
}

// NewSystemError wraps an error returned by a system.
func NewSystemError(tick int64, systemID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeSystemFailed,
		Message:  err.Error(),
		Tick:     tick,
		SystemID: systemID,
		err:      err,
	}
}

// NewPanicError records a recovered system panic.
func NewPanicError(tick int64, systemID string, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeSystemPanic,
		Message:  fmt.Sprintf("panic: %v", recovered),
		Tick:     tick,
		SystemID: systemID,
	}
}

// NewHaltError creates a RuntimeError for a hard contract violation.
func NewHaltError(tick int64, hard int, first string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeContractHalt,
		Message: fmt.Sprintf("%d hard violation(s): %s", hard, first),
		Tick:    tick,
		Details: map[string]string{
			"hard_violations": fmt.Sprintf("%d", hard),
		},
		err: ErrHalted,
	}
}
