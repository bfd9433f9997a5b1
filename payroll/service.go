/*
service.go - Exposed engine operations

PURPOSE:

	Composes the event log, reconciler, cutoff enforcer, aggregator, rate
	table, roster, and pay ledger into the four operations collaborators
	consume:

	  RecordTap    live check-in/out surface
	  LiveStatus   dashboards (inline cap check + unpaid seconds)
	  RunPayroll   operator and scheduled payroll actions
	  EnforceCaps  scheduled sweep and operator bulk action

	All three trigger surfaces (sweep, inline, operator) go through this
	one type, so enforcement behaves identically no matter who asked.

ANCHOR RESOLUTION:

	RunPayroll and LiveStatus resolve anchors from the pay ledger: the
	student's own last payroll entry when they have one, otherwise the
	global last payroll time. The resolved value is threaded explicitly
	into the reconciler - no shared mutable "last run" state exists.

SEE ALSO:
  - attendance/cutoff.go: Enforcement semantics and the race guard
  - api/handlers.go: HTTP surface over this service
  - api/sweeper.go: Background trigger
*/
package payroll

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

// =============================================================================
// ROSTER - External account data (period membership)
// =============================================================================

// Student is the roster's view of one account.
type Student struct {
	ID      attendance.StudentID
	Name    string
	Periods []string
}

// Roster supplies period membership per student. External account data;
// read-only to this engine.
type Roster interface {
	// PeriodsOf returns the normalized period codes the student belongs
	// to, or attendance.ErrStudentNotFound.
	PeriodsOf(ctx context.Context, student attendance.StudentID) ([]string, error)

	// List returns the full cohort (for sweeps and bulk payroll).
	List(ctx context.Context) ([]Student, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// PeriodStatus is one period's live state for dashboards.
type PeriodStatus struct {
	Active        bool
	UnpaidSeconds int64
}

// Service wires the attendance engine to its collaborators.
type Service struct {
	Events     attendance.EventStore
	Reconciler *attendance.Reconciler
	Enforcer   *attendance.Enforcer
	Aggregator *Aggregator
	Rates      RateSource
	Ledger     PayLedger
	Roster     Roster
}

// NewService builds a fully wired service. zone is the business
// timezone used solely for daily-cap window boundaries.
func NewService(events attendance.EventStore, rates RateSource, ledger PayLedger, roster Roster, zone *time.Location) *Service {
	caps, ok := rates.(attendance.CapSource)
	if !ok {
		caps = attendance.CapSourceFunc(func(period string) int64 {
			return rates.Resolve(period).DailyCapSeconds
		})
	}
	return &Service{
		Events:     events,
		Reconciler: attendance.NewReconciler(events),
		Enforcer:   attendance.NewEnforcer(events, caps, zone),
		Aggregator: NewAggregator(events, rates),
		Rates:      rates,
		Ledger:     ledger,
		Roster:     roster,
	}
}

// RecordTap appends one live state transition. Rejects period codes the
// student is not enrolled in. The event timestamp is now, normalized to
// UTC; reasons are kept only on Inactive transitions.
func (s *Service) RecordTap(ctx context.Context, student attendance.StudentID, period string, state attendance.TapState, reason string, now time.Time) (attendance.TapEvent, error) {
	period = attendance.NormalizePeriod(period)

	if err := s.checkMembership(ctx, student, period); err != nil {
		return attendance.TapEvent{}, err
	}

	if state != attendance.StateInactive {
		reason = ""
	}

	ev := attendance.TapEvent{
		StudentID: student,
		Period:    period,
		State:     state,
		At:        now.UTC(),
		Reason:    reason,
		Source:    attendance.SourceTap,
	}
	id, err := s.Events.Append(ctx, ev)
	if err != nil {
		return attendance.TapEvent{}, &attendance.StoreError{Op: "append", At: ev.At, Err: err}
	}
	ev.ID = id
	return ev, nil
}

// LiveStatus returns each period's active flag and unpaid seconds for
// one student. Runs an inline cap check first so an over-cap session is
// cut before it is reported.
func (s *Service) LiveStatus(ctx context.Context, student attendance.StudentID, now time.Time) (map[string]PeriodStatus, error) {
	periods, err := s.Roster.PeriodsOf(ctx, student)
	if err != nil {
		return nil, err
	}

	// Inline trigger: enforce before reading, so the status reflects
	// any cutoff this request itself caused.
	if _, err := s.Enforcer.Enforce(ctx, student, periods, now); err != nil {
		return nil, err
	}

	anchor, err := s.anchorFor(ctx, student)
	if err != nil {
		return nil, err
	}

	status := make(map[string]PeriodStatus, len(periods))
	for _, period := range periods {
		latest, err := s.Events.Latest(ctx, student, period)
		if err != nil {
			return nil, &attendance.StoreError{Op: "latest", At: now, Err: err}
		}
		seconds, err := s.Reconciler.UnpaidSeconds(ctx, student, period, anchor, now)
		if err != nil {
			return nil, err
		}
		status[period] = PeriodStatus{
			Active:        latest != nil && latest.State == attendance.StateActive,
			UnpaidSeconds: seconds,
		}
	}
	return status, nil
}

// RunPayroll reconciles the given students (the whole roster when nil),
// posts the resulting entries to the pay ledger, and returns the batch
// result. Posting is what establishes the next anchor; the computation
// itself is side-effect-free, so a failed post is safe to retry.
func (s *Service) RunPayroll(ctx context.Context, students []attendance.StudentID, anchor *time.Time, now time.Time) (RunResult, error) {
	subjects, err := s.resolveSubjects(ctx, students)
	if err != nil {
		return RunResult{}, err
	}

	// With no explicit anchor, each student is billed from their own
	// last payroll entry (global last-run time when they have none).
	var result RunResult
	if anchor != nil {
		result = s.Aggregator.Run(ctx, subjects, anchor, now)
	} else {
		result = s.runWithLedgerAnchors(ctx, subjects, now)
	}

	if len(result.Amounts) == 0 {
		return result, nil
	}

	entries := make([]PayEntry, 0, len(result.Amounts))
	for id, amount := range result.Amounts {
		entries = append(entries, PayEntry{
			ID:        fmt.Sprintf("pay-%s-%d", id, now.UTC().UnixNano()),
			StudentID: id,
			Amount:    amount,
			Kind:      KindPayroll,
			Note:      "attendance payroll",
			PostedAt:  now.UTC(),
		})
	}
	if err := s.Ledger.Post(ctx, entries); err != nil {
		// Nothing partial happened: the run can be retried wholesale.
		return result, fmt.Errorf("post payroll entries: %w", err)
	}
	return result, nil
}

func (s *Service) runWithLedgerAnchors(ctx context.Context, subjects []Subject, now time.Time) RunResult {
	merged := RunResult{
		Amounts: make(map[attendance.StudentID]decimal.Decimal),
		Errors:  make(map[attendance.StudentID]error),
		RunAt:   now.UTC(),
	}
	for _, subject := range subjects {
		anchor, err := s.anchorFor(ctx, subject.ID)
		if err != nil {
			merged.Errored++
			merged.Errors[subject.ID] = err
			continue
		}
		one := s.Aggregator.Run(ctx, []Subject{subject}, anchor, now)
		merged.Paid += one.Paid
		merged.Skipped += one.Skipped
		merged.Errored += one.Errored
		for id, amount := range one.Amounts {
			merged.Amounts[id] = amount
		}
		for id, err := range one.Errors {
			merged.Errors[id] = err
		}
	}
	return merged
}

// EnforceCaps runs cutoff enforcement for the given students (whole
// roster when nil). Per-student failures are logged and skipped so one
// bad record cannot stall the sweep.
func (s *Service) EnforceCaps(ctx context.Context, students []attendance.StudentID, now time.Time) ([]attendance.CutoffAction, error) {
	subjects, err := s.resolveSubjects(ctx, students)
	if err != nil {
		return nil, err
	}

	var actions []attendance.CutoffAction
	for _, subject := range subjects {
		got, err := s.Enforcer.Enforce(ctx, subject.ID, subject.Periods, now)
		if err != nil {
			log.Printf("[EnforceCaps] student %s: %v", subject.ID, err)
			continue
		}
		actions = append(actions, got...)
	}
	return actions, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) checkMembership(ctx context.Context, student attendance.StudentID, period string) error {
	periods, err := s.Roster.PeriodsOf(ctx, student)
	if err != nil {
		return err
	}
	for _, p := range periods {
		if attendance.NormalizePeriod(p) == period {
			return nil
		}
	}
	return &attendance.UnknownPeriodError{StudentID: student, Period: period}
}

// anchorFor resolves the billing boundary for one student: their own
// last payroll entry when they have history, else the global one.
func (s *Service) anchorFor(ctx context.Context, student attendance.StudentID) (*time.Time, error) {
	anchor, err := s.Ledger.LastPayrollFor(ctx, student)
	if err != nil {
		return nil, err
	}
	if anchor != nil {
		return anchor, nil
	}
	return s.Ledger.LastPayrollAt(ctx)
}

func (s *Service) resolveSubjects(ctx context.Context, students []attendance.StudentID) ([]Subject, error) {
	if students == nil {
		all, err := s.Roster.List(ctx)
		if err != nil {
			return nil, err
		}
		subjects := make([]Subject, len(all))
		for i, st := range all {
			subjects[i] = Subject{ID: st.ID, Periods: st.Periods}
		}
		return subjects, nil
	}

	subjects := make([]Subject, 0, len(students))
	for _, id := range students {
		periods, err := s.Roster.PeriodsOf(ctx, id)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, Subject{ID: id, Periods: periods})
	}
	return subjects, nil
}
