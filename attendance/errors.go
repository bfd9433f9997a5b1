/*
errors.go - Centralized error types for the attendance engine

PURPOSE:

	All error types in one place for consistency and discoverability.
	Callers match with errors.Is/errors.As; the api package maps these
	to HTTP status codes.

ERROR CATEGORIES:
 1. Input errors - bad state strings, unknown periods
 2. Race detection - cutoff lost an optimistic check (not a failure)
 3. Store errors - persistence-level failures, fatal per operation

NOTE ON MALFORMED LOGS:

	Orphan Inactive events and duplicate Active events are NOT errors.
	The reconciler defines them as no-ops, so no error type exists for
	them here.

SEE ALSO:
  - reconciler.go: Tolerates malformed sequences by construction
  - cutoff.go: Returns ErrCutoffSuperseded internally, swallowed as
    success-by-other-writer
*/
package attendance

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidState is returned when a tap state string is not one of
	// the two known variants.
	ErrInvalidState = errors.New("invalid tap state")

	// ErrUnknownPeriod is returned when a tap names a period the student
	// is not enrolled in.
	ErrUnknownPeriod = errors.New("unknown period for student")

	// ErrStudentNotFound is returned when a referenced student does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrCutoffSuperseded is returned by the enforcer's optimistic check
	// when the latest event changed between inspection and append. It is
	// treated as success-by-other-writer, never surfaced to callers.
	ErrCutoffSuperseded = errors.New("cutoff superseded by concurrent writer")

	// ErrNonUTCTimestamp is returned when a caller hands the engine a
	// timestamp that is not UTC-normalized. Naive/local instants are not
	// accepted internally.
	ErrNonUTCTimestamp = errors.New("timestamp must be UTC")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownPeriodError identifies which period was rejected for which student.
type UnknownPeriodError struct {
	StudentID StudentID
	Period    string
}

func (e *UnknownPeriodError) Error() string {
	return fmt.Sprintf("student %s is not enrolled in period %s", e.StudentID, e.Period)
}

func (e *UnknownPeriodError) Unwrap() error { return ErrUnknownPeriod }

// StoreError wraps a persistence failure with the operation that failed.
// Batch callers catch these per student and continue.
type StoreError struct {
	Op  string
	At  time.Time
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRaceDetected reports whether the error is the enforcer's optimistic
// check firing. Callers treat it as "the other writer already handled it".
func IsRaceDetected(err error) bool {
	return errors.Is(err, ErrCutoffSuperseded)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnknownPeriod) ||
		errors.Is(err, ErrNonUTCTimestamp)
}
