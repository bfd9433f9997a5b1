/*
log.go - Append-only event log contract

PURPOSE:

	The event log is the immutable source of truth for attendance. Every
	tap and every injected cutoff is recorded here. Billable time is
	always computed by replaying events - there is no separate "seconds
	worked" counter that can get out of sync.

CRITICAL INVARIANTS:
 1. APPEND-ONLY: No Update. The only delete is PurgeStudent, which
    removes a student's entire history when the account is removed.
 2. ORDERED: Reads for one (student, period) come back in ascending
    At order. No ordering is guaranteed across students or periods.
 3. TOLERANT: The store does not enforce Active/Inactive alternation.
    The reconciler treats malformed sequences as no-ops.

WHY APPEND-ONLY?
  - Audit trail: Every payroll amount can be explained from the log
  - Correctness: Repeated payroll and cutoff runs replay the same
    history and cannot corrupt it
  - Concurrency: Any number of readers share the log safely; writers
    only ever add

IMPLEMENTATIONS:
  - store/sqlite: Production store
  - attendance/store: In-memory store for tests

SEE ALSO:
  - reconciler.go: Reads the log through Since/Window
  - cutoff.go: Uses Latest twice for the optimistic no-duplicate check
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE - Append-only persistence contract
// =============================================================================

// EventStore persists tap events. Append-only: no update operation
// exists, and the single delete is the cascading purge of one student.
type EventStore interface {
	// Append persists one event and returns its assigned ID.
	// Fatal on store failure; surfaced to the caller.
	Append(ctx context.Context, ev TapEvent) (EventID, error)

	// Latest returns the most recent event by At for student+period,
	// or nil if the student has never tapped that period.
	Latest(ctx context.Context, student StudentID, period string) (*TapEvent, error)

	// LatestAt returns the most recent event with At <= at, or nil.
	// Used to seed anchored reconciliation (was the student mid-session
	// at the last payroll boundary?).
	LatestAt(ctx context.Context, student StudentID, period string, at time.Time) (*TapEvent, error)

	// Since returns events with At > after, ascending. A nil after
	// returns the full history.
	Since(ctx context.Context, student StudentID, period string, after *time.Time) ([]TapEvent, error)

	// Window returns events with from <= At < to, ascending.
	// Used for daily-cap checks.
	Window(ctx context.Context, student StudentID, period string, from, to time.Time) ([]TapEvent, error)

	// PurgeStudent removes the student's entire event history.
	// The ONLY deletion the log supports.
	PurgeStudent(ctx context.Context, student StudentID) error
}
