/*
ledger.go - External pay ledger contract

PURPOSE:

	The monetary ledger is an external collaborator: a generic append-only
	transaction table this engine writes payroll entries to but does not
	design. The engine depends on it for exactly two things:

	1. Posting one payroll run's entries atomically.
	2. Deriving the anchor: the timestamp of the most recent posted
	   payroll entry is the boundary before which time is already paid.

ANCHOR SEMANTICS:

	The anchor is never stored by this engine. It is read from the ledger
	and threaded explicitly through reconciliation calls, which keeps the
	reconciler a pure function and makes concurrent triggers safe: each
	run computes against the anchor it was handed.

FAILURE SEMANTICS:

	If a Post fails after aggregation, nothing was persisted by the
	aggregator itself - the whole run is side-effect-free and safe to
	retry wholesale.

SEE ALSO:
  - aggregator.go: Produces the amounts that become PayEntry rows
  - store/sqlite: Production implementation
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

// =============================================================================
// PAY LEDGER
// =============================================================================

// EntryKind tags ledger rows. Only payroll entries define anchors.
type EntryKind string

const (
	KindPayroll EntryKind = "payroll"
	KindManual  EntryKind = "manual"
)

// PayEntry is one posted ledger row.
type PayEntry struct {
	ID        string
	StudentID attendance.StudentID
	Amount    decimal.Decimal
	Kind      EntryKind
	Note      string
	PostedAt  time.Time // UTC; payroll entries share the run's now
}

// PayLedger is the engine's view of the external transaction table.
// Append-only from this side.
type PayLedger interface {
	// Post appends one run's entries atomically: all or none.
	Post(ctx context.Context, entries []PayEntry) error

	// LastPayrollAt returns the timestamp of the most recent payroll
	// entry across all students (the global anchor), or nil if no
	// payroll has ever run.
	LastPayrollAt(ctx context.Context) (*time.Time, error)

	// LastPayrollFor returns the most recent payroll timestamp for one
	// student, falling back to nil when the student has no payroll
	// history of their own.
	LastPayrollFor(ctx context.Context, student attendance.StudentID) (*time.Time, error)
}
