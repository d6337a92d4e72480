package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxMutations is the default mutation quota per tick.
// It stops runaway rule sets before they exhaust memory.
const DefaultMaxMutations = 100000

// QuotaEnforcer limits the number of graph mutations in one tick.
//
// The engine checks the quota after every system. A tick over quota is
// rolled back and the run halts, like a hard contract violation.
type QuotaEnforcer struct {
	maxMutations int
}

// NewQuotaEnforcer creates an enforcer; maxMutations <= 0 disables it.
func NewQuotaEnforcer(maxMutations int) *QuotaEnforcer {
	return &QuotaEnforcer{maxMutations: maxMutations}
}

// Check validates the tick's mutation count so far.
//
// Returns MutationsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(tick int64, systemID string, mutations int) error {
	if q.maxMutations <= 0 || mutations <= q.maxMutations {
		return nil
	}
	return &MutationsExceededError{
		Tick:      tick,
		SystemID:  systemID,
		Mutations: mutations,
		Limit:     q.maxMutations,
	}
}

// MaxMutations returns the limit.
func (q *QuotaEnforcer) MaxMutations() int {
	return q.maxMutations
}

// MutationsExceededError is returned when a tick exceeds the quota.
type MutationsExceededError struct {
	Tick      int64
	SystemID  string // The system that crossed the limit
	Mutations int
	Limit     int
}

// Error implements the error interface.
func (e *MutationsExceededError) Error() string {
	return fmt.Sprintf("tick %d exceeded mutation quota after system %s: %d mutations > %d limit",
		e.Tick, e.SystemID, e.Mutations, e.Limit)
}

// IsMutationsExceededError returns true if the error is a MutationsExceededError.
// Uses errors.As to handle wrapped errors.
func IsMutationsExceededError(err error) bool {
	var me *MutationsExceededError
	return errors.As(err, &me)
}

// newQuotaError wraps a quota failure as a halting RuntimeError.
func newQuotaError(err *MutationsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("%d mutations > %d limit", err.Mutations, err.Limit),
		Tick:     err.Tick,
		SystemID: err.SystemID,
		Details: map[string]string{
			"mutations": fmt.Sprintf("%d", err.Mutations),
			"limit":     fmt.Sprintf("%d", err.Limit),
		},
		err: err,
	}
}
