/*
errors.go - Centralized error types for the analysis engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these with context and test them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Input errors - Unknown period token, unknown business
  2. Computation faults - NaN/Inf averages; fatal to a refresh
  3. Persistence faults - Store failures; fatal to a refresh

  Contention and insufficient data are NOT errors. They are outcome
  variants reported by the refresh package.

SEE ALSO:
  - refresh/outcome.go: Outcome variants for expected terminal states
  - narrative/validate.go: Schema validation failures
*/
package review

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned for a period token other than 30d, 90d or ytd.
	ErrInvalidPeriod = errors.New("invalid period: must be 30d, 90d or ytd")

	// ErrBusinessNotFound is returned when a referenced business doesn't exist.
	ErrBusinessNotFound = errors.New("business not found")

	// ErrComputation is returned when an aggregate is not a finite number.
	ErrComputation = errors.New("invalid computed aggregate")

	// ErrPersistence is returned when the store fails during a refresh.
	ErrPersistence = errors.New("persistence failure")

	// ErrUnknownTheme is returned when a row references a theme outside the table.
	ErrUnknownTheme = errors.New("unknown theme")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ComputationError reports which aggregate was not finite.
type ComputationError struct {
	Field string
	Value float64
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("NaN values in computed metrics: %s = %v", e.Field, e.Value)
}

func (e *ComputationError) Unwrap() error {
	return ErrComputation
}

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) || errors.Is(err, ErrUnknownTheme)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBusinessNotFound)
}
