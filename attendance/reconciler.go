/*
reconciler.go - Pairing walk from events to billable seconds

PURPOSE:

	Turns a student's event history into unpaid billable seconds. This is
	the single correctness-critical algorithm in the system: payroll and
	cap enforcement are both built on it.

ALGORITHM (anchored walk):
 1. If an anchor is supplied and the student was mid-session at the
    anchor, billing re-seeds AT the anchor, not at the session's own
    start. Time before the anchor was already paid in a prior run.
 2. Walk events ascending: Active opens an interval (duplicate Active
    while open is a no-op), Inactive closes it (orphan Inactive with
    nothing open contributes zero).
 3. A trailing open interval bills up to now.

NO-DOUBLE-BILLING:

	Because the open session is re-anchored to the payroll boundary
	instead of re-paid from its original start, every second is counted
	exactly once across the lifetime of the student, regardless of how
	many payroll runs occur or when they happen:

	  unpaid(nil, t1) + unpaid(t1, t2) == unpaid(nil, t2)

SEE ALSO:
  - cutoff.go: Uses IntervalSeconds for daily-cap accounting
  - payroll/aggregator.go: Multiplies UnpaidSeconds by period rates
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler derives billable durations from the event log. It holds no
// state of its own; every call recomputes from events, so it is safe to
// call from any number of concurrent triggers.
type Reconciler struct {
	Events EventStore
}

func NewReconciler(events EventStore) *Reconciler {
	return &Reconciler{Events: events}
}

// UnpaidSeconds returns the billable seconds for student+period since
// anchor (all history when anchor is nil), counting a still-open session
// up to now. Returns whole seconds, floored.
func (r *Reconciler) UnpaidSeconds(ctx context.Context, student StudentID, period string, anchor *time.Time, now time.Time) (int64, error) {
	period = NormalizePeriod(period)

	// Anchor seeding: if the latest event at or before the anchor left
	// the student Active, the session straddles the payroll boundary.
	// Billing for this run starts at the anchor itself - the time before
	// it was paid by the previous run.
	var seed *time.Time
	if anchor != nil {
		prev, err := r.Events.LatestAt(ctx, student, period, *anchor)
		if err != nil {
			return 0, &StoreError{Op: "latest_at", At: *anchor, Err: err}
		}
		if prev != nil && prev.State == StateActive {
			t := anchor.UTC()
			seed = &t
		}
	}

	events, err := r.Events.Since(ctx, student, period, anchor)
	if err != nil {
		return 0, &StoreError{Op: "since", At: now, Err: err}
	}

	// The walk is a pure function of the log restricted to (anchor, now].
	// Live calls never see events past now; replays and backfilled reads
	// must not count them either.
	cut := len(events)
	for cut > 0 && events[cut-1].At.After(now) {
		cut--
	}

	return walkPairs(events[:cut], seed, &now), nil
}

// IntervalSeconds restricts the walk to [from, to). It takes no anchor
// and always starts from an empty state at the window start: sessions
// straddling the window boundary are not attributed to this window, and
// a trailing open interval contributes zero (the enforcer accounts for
// the live session separately).
func (r *Reconciler) IntervalSeconds(ctx context.Context, student StudentID, period string, from, to time.Time) (int64, error) {
	period = NormalizePeriod(period)

	events, err := r.Events.Window(ctx, student, period, from, to)
	if err != nil {
		return 0, &StoreError{Op: "window", At: from, Err: err}
	}

	return walkPairs(events, nil, nil), nil
}

// =============================================================================
// PAIRING WALK - Pure function over an event sequence
// =============================================================================

// walkPairs sums (inactive - active) over each Active/Inactive pair in
// an ascending event sequence. seed pre-opens an interval at the given
// instant (anchor re-seeding). When closeAt is non-nil a trailing open
// interval is closed there; when nil it contributes zero.
//
// Malformed sequences are defined, not exceptional: an Active while an
// interval is already open is ignored, an Inactive with nothing open is
// ignored.
func walkPairs(events []TapEvent, seed *time.Time, closeAt *time.Time) int64 {
	var total time.Duration
	open := seed

	for i := range events {
		ev := &events[i]
		switch ev.State {
		case StateActive:
			if open == nil {
				t := ev.At
				open = &t
			}
		case StateInactive:
			if open != nil {
				if d := ev.At.Sub(*open); d > 0 {
					total += d
				}
				open = nil
			}
		}
	}

	if open != nil && closeAt != nil {
		if d := closeAt.Sub(*open); d > 0 {
			total += d
		}
	}

	// Floored once at the end; sub-second precision is out of scope.
	return int64(total / time.Second)
}
