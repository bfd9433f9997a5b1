/*
cutoff.go - Daily-cap enforcement with backdated cutoffs

PURPOSE:

	Decides whether a student's open session has crossed the period's
	daily cap, and if so injects a synthetic Inactive event at the exact
	instant the cap was crossed - NOT at wall-clock "now". Any later
	reconciliation then bills precisely up to the cap and not a second
	more, no matter how late the enforcement check happened to run.

STATE MACHINE (per student+period, detected, never stored):

	Idle -> Active -> CappedPendingCutoff
	The last transition is computed on demand from the log and the cap.

BUSINESS-DAY WINDOW:

	Caps reset at midnight in a single configured business timezone. The
	window is computed once per call from that zone and converted
	immediately to UTC instants. Day length is whatever the zone says
	(23/24/25 hours around DST transitions); there is no repeated
	local/UTC round-tripping.

CONCURRENCY:

	The periodic sweep, inline status checks, and operator bulk actions
	may all call Enforce for the same student at once. Immediately before
	appending, the enforcer re-fetches the latest event and aborts if it
	changed since inspection. A detected conflict means the other writer
	already handled the session: silent no-op, not an error. This is an
	optimistic best-effort guard, not a distributed lock; a narrow window
	remains under very high concurrent trigger rates for one student,
	accepted given real-world trigger frequency.

SEE ALSO:
  - reconciler.go: IntervalSeconds supplies the already-billed figure
  - payroll/service.go: Wires the enforcer into all three triggers
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// CAP SOURCE - Per-period daily cap lookup
// =============================================================================

// CapSource resolves the daily cap for a period code.
// Zero means no cap configured: nothing to enforce.
type CapSource interface {
	DailyCapSeconds(period string) int64
}

// CapSourceFunc adapts a function to CapSource.
type CapSourceFunc func(period string) int64

func (f CapSourceFunc) DailyCapSeconds(period string) int64 { return f(period) }

// =============================================================================
// ENFORCER
// =============================================================================

// Enforcer injects backdated cutoff events when open sessions cross
// their period's daily cap.
type Enforcer struct {
	Events     EventStore
	Caps       CapSource
	Reconciler *Reconciler
	Zone       *time.Location // business timezone for daily resets
}

func NewEnforcer(events EventStore, caps CapSource, zone *time.Location) *Enforcer {
	return &Enforcer{
		Events:     events,
		Caps:       caps,
		Reconciler: NewReconciler(events),
		Zone:       zone,
	}
}

// Enforce checks every given period for the student and injects at most
// one cutoff per over-cap open session. Returns the injected cutoffs.
// Safe to call repeatedly and concurrently: with no new events between
// calls, a second call finds the session already Inactive and does
// nothing.
func (e *Enforcer) Enforce(ctx context.Context, student StudentID, periods []string, now time.Time) ([]CutoffAction, error) {
	now = now.UTC()

	var actions []CutoffAction
	for _, period := range periods {
		action, err := e.enforcePeriod(ctx, student, NormalizePeriod(period), now)
		if err != nil {
			if IsRaceDetected(err) {
				// The other writer already cut this session off.
				continue
			}
			return actions, err
		}
		if action != nil {
			actions = append(actions, *action)
		}
	}
	return actions, nil
}

func (e *Enforcer) enforcePeriod(ctx context.Context, student StudentID, period string, now time.Time) (*CutoffAction, error) {
	latest, err := e.Events.Latest(ctx, student, period)
	if err != nil {
		return nil, &StoreError{Op: "latest", At: now, Err: err}
	}
	if latest == nil || latest.State != StateActive {
		return nil, nil // nothing open, nothing to enforce
	}

	cap := e.Caps.DailyCapSeconds(period)
	if cap <= 0 {
		return nil, nil // no cap configured
	}

	windowStart, windowEnd := BusinessDay(now, e.Zone)

	// Closed pairs already inside today's window. The live session is
	// excluded by construction (trailing open intervals contribute zero
	// to IntervalSeconds) and added below only if it started today.
	accumulated, err := e.Reconciler.IntervalSeconds(ctx, student, period, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	sessionStart := latest.At
	if !sessionStart.Before(windowStart) && sessionStart.Before(windowEnd) {
		if live := now.Sub(sessionStart); live > 0 {
			accumulated += int64(live / time.Second)
		}
	}

	if accumulated < cap {
		return nil, nil
	}

	// The student should have stopped exactly overage seconds ago.
	overage := accumulated - cap
	cutoffAt := now.Add(-time.Duration(overage) * time.Second)
	if cutoffAt.Before(sessionStart) {
		// Prior accumulation alone already met the cap; the session
		// should never have opened. Cut at its own start.
		cutoffAt = sessionStart
	}

	// Optimistic check: re-fetch immediately before appending. If the
	// latest event moved since inspection, a concurrent trigger (or a
	// fresh tap) got there first.
	check, err := e.Events.Latest(ctx, student, period)
	if err != nil {
		return nil, &StoreError{Op: "latest", At: now, Err: err}
	}
	if check == nil || check.ID != latest.ID || check.State != StateActive {
		return nil, ErrCutoffSuperseded
	}

	id, err := e.Events.Append(ctx, TapEvent{
		StudentID: student,
		Period:    period,
		State:     StateInactive,
		At:        cutoffAt,
		Reason:    CutoffReason,
		Source:    SourceCutoff,
	})
	if err != nil {
		return nil, &StoreError{Op: "append", At: cutoffAt, Err: err}
	}

	return &CutoffAction{
		StudentID:    student,
		Period:       period,
		SessionStart: sessionStart,
		CapSeconds:   cap,
		Accumulated:  accumulated,
		CutoffAt:     cutoffAt,
		EventID:      id,
	}, nil
}

// =============================================================================
// BUSINESS-DAY WINDOW
// =============================================================================

// BusinessDay returns the [start, end) UTC instants of the business day
// containing now, per the given zone. Computed once from the zone and
// converted straight to UTC; around DST transitions the window is
// however long the zone makes it.
func BusinessDay(now time.Time, zone *time.Location) (time.Time, time.Time) {
	if zone == nil {
		zone = time.UTC
	}
	local := now.In(zone)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}
