/*
aggregator.go - Payroll run over a cohort of students

PURPOSE:

	Combines reconciler output across every period a student belongs to,
	prices it with the resolved per-period rate, and produces one payable
	amount per student. Establishing the next anchor is the caller's job:
	posting the resulting entries to the pay ledger is what moves the
	boundary.

FAILURE ISOLATION:

	One student's store failure is caught, counted, and skipped; the
	batch continues. The result carries a partial-failure summary
	(paid / skipped / errored) instead of aborting.

PURITY:

	Run performs no persistence of its own. If the subsequent ledger post
	fails, rerunning the whole computation is safe: nothing was billed.

SEE ALSO:
  - attendance/reconciler.go: UnpaidSeconds per student+period
  - rates.go: Rate resolution chain
  - service.go: RunPayroll = Run + ledger post
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

// =============================================================================
// SUBJECT - One student and the periods they belong to
// =============================================================================

// Subject is the aggregator's view of a student: an ID plus period
// membership. Membership is external account data, resolved by the
// caller (Service reads it from the roster).
type Subject struct {
	ID      attendance.StudentID
	Periods []string
}

// =============================================================================
// RUN RESULT
// =============================================================================

// RunResult is one payroll computation. Amounts holds only students
// owed a positive amount; the counters summarize the whole batch.
type RunResult struct {
	Amounts map[attendance.StudentID]decimal.Decimal
	RunAt   time.Time

	Paid    int // students with a positive amount
	Skipped int // students contributing zero seconds
	Errored int // students skipped due to store failures

	// Errors maps failed students to the failure, for the batch report.
	Errors map[attendance.StudentID]error
}

// =============================================================================
// AGGREGATOR
// =============================================================================

const secondsPerHour = 3600

// Aggregator prices unpaid attendance. Side-effect free: callers post
// the result to the pay ledger themselves.
type Aggregator struct {
	Reconciler *attendance.Reconciler
	Rates      RateSource
}

func NewAggregator(events attendance.EventStore, rates RateSource) *Aggregator {
	return &Aggregator{
		Reconciler: attendance.NewReconciler(events),
		Rates:      rates,
	}
}

// Run computes the payable amount per subject since anchor. A nil
// anchor bills each subject's full history. Amounts are rounded to
// currency precision (2 places) per period contribution.
func (a *Aggregator) Run(ctx context.Context, subjects []Subject, anchor *time.Time, now time.Time) RunResult {
	result := RunResult{
		Amounts: make(map[attendance.StudentID]decimal.Decimal),
		Errors:  make(map[attendance.StudentID]error),
		RunAt:   now.UTC(),
	}

	for _, subject := range subjects {
		amount, err := a.runSubject(ctx, subject, anchor, now)
		if err != nil {
			// Isolated: one student's store error never aborts the batch.
			result.Errored++
			result.Errors[subject.ID] = err
			continue
		}
		if !amount.IsPositive() {
			result.Skipped++
			continue
		}
		result.Amounts[subject.ID] = amount
		result.Paid++
	}

	return result
}

func (a *Aggregator) runSubject(ctx context.Context, subject Subject, anchor *time.Time, now time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, period := range subject.Periods {
		seconds, err := a.Reconciler.UnpaidSeconds(ctx, subject.ID, period, anchor, now)
		if err != nil {
			return decimal.Zero, err
		}
		if seconds <= 0 {
			continue
		}
		total = total.Add(priceSeconds(seconds, a.Rates.Resolve(period)))
	}
	return total, nil
}

// priceSeconds converts billable seconds to currency at the period's
// hourly rate, rounded to cents.
func priceSeconds(seconds int64, rate PeriodRate) decimal.Decimal {
	return rate.HourlyRate.
		Mul(decimal.NewFromInt(seconds)).
		Div(decimal.NewFromInt(secondsPerHour)).
		Round(2)
}
