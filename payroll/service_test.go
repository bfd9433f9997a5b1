package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
	"github.com/timwonderer/classroom-economy-sub001/attendance/store"
	"github.com/timwonderer/classroom-economy-sub001/payroll"
)

// =============================================================================
// TEST SETUP - In-memory ledger and roster doubles
// =============================================================================

type memLedger struct {
	entries []payroll.PayEntry
}

func (l *memLedger) Post(_ context.Context, entries []payroll.PayEntry) error {
	l.entries = append(l.entries, entries...)
	return nil
}

func (l *memLedger) LastPayrollAt(_ context.Context) (*time.Time, error) {
	return l.last(func(payroll.PayEntry) bool { return true }), nil
}

func (l *memLedger) LastPayrollFor(_ context.Context, student attendance.StudentID) (*time.Time, error) {
	return l.last(func(e payroll.PayEntry) bool { return e.StudentID == student }), nil
}

func (l *memLedger) last(match func(payroll.PayEntry) bool) *time.Time {
	var latest *time.Time
	for _, e := range l.entries {
		if e.Kind != payroll.KindPayroll || !match(e) {
			continue
		}
		if latest == nil || e.PostedAt.After(*latest) {
			t := e.PostedAt
			latest = &t
		}
	}
	return latest
}

type memRoster map[attendance.StudentID]payroll.Student

func (r memRoster) PeriodsOf(_ context.Context, student attendance.StudentID) ([]string, error) {
	st, ok := r[student]
	if !ok {
		return nil, attendance.ErrStudentNotFound
	}
	return st.Periods, nil
}

func (r memRoster) List(_ context.Context) ([]payroll.Student, error) {
	students := make([]payroll.Student, 0, len(r))
	for _, st := range r {
		students = append(students, st)
	}
	return students, nil
}

func newTestService(t *testing.T, rates []payroll.PeriodRate) (*payroll.Service, *store.Memory, *memLedger) {
	t.Helper()
	mem := store.NewMemory()
	ledger := &memLedger{}
	roster := memRoster{
		"stu-1": {ID: "stu-1", Name: "Ada", Periods: []string{"P1", "P2"}},
		"stu-2": {ID: "stu-2", Name: "Grace", Periods: []string{"P1"}},
	}
	svc := payroll.NewService(mem, payroll.NewRateTable(rates), ledger, roster, time.UTC)
	return svc, mem, ledger
}

// =============================================================================
// RECORD TAP
// =============================================================================

func TestService_RecordTap_AppendsNormalizedEvent(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	ev, err := svc.RecordTap(ctx, "stu-1", " p1 ", attendance.StateActive, "", at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, "P1", ev.Period)
	assert.Equal(t, attendance.SourceTap, ev.Source)
	assert.NotEmpty(t, ev.ID)

	latest, err := mem.Latest(ctx, "stu-1", "P1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, attendance.StateActive, latest.State)
}

func TestService_RecordTap_UnknownPeriod_Rejected(t *testing.T) {
	// GIVEN: stu-2 is enrolled in P1 only
	// WHEN: Tapping into P2
	// THEN: The tap is rejected as a client error, nothing is appended

	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RecordTap(ctx, "stu-2", "P2", attendance.StateActive, "", at(9, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, attendance.ErrUnknownPeriod)
	assert.True(t, attendance.IsClientError(err))

	latest, err := mem.Latest(ctx, "stu-2", "P2")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestService_RecordTap_UnknownStudent_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.RecordTap(context.Background(), "ghost", "P1", attendance.StateActive, "", at(9, 0))
	assert.ErrorIs(t, err, attendance.ErrStudentNotFound)
}

func TestService_RecordTap_ReasonKeptOnlyOnInactive(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	in, err := svc.RecordTap(ctx, "stu-1", "P1", attendance.StateActive, "should be dropped", at(9, 0))
	require.NoError(t, err)
	assert.Empty(t, in.Reason)

	out, err := svc.RecordTap(ctx, "stu-1", "P1", attendance.StateInactive, "left early", at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, "left early", out.Reason)
}

// =============================================================================
// LIVE STATUS (inline enforcement trigger)
// =============================================================================

func TestService_LiveStatus_ReportsActiveAndUnpaid(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(9, 0))

	status, err := svc.LiveStatus(ctx, "stu-1", at(9, 30))
	require.NoError(t, err)
	require.Contains(t, status, "P1")
	require.Contains(t, status, "P2")

	assert.True(t, status["P1"].Active)
	assert.Equal(t, int64(1800), status["P1"].UnpaidSeconds)
	assert.False(t, status["P2"].Active)
	assert.Equal(t, int64(0), status["P2"].UnpaidSeconds)
}

func TestService_LiveStatus_EnforcesCapBeforeReporting(t *testing.T) {
	// GIVEN: A session over its 3600s cap, with no sweep having run
	// WHEN: A dashboard asks for live status at 09:30
	// THEN: The inline check cuts the session first; the report shows it
	//       inactive with exactly the cap's worth of unpaid time

	svc, mem, _ := newTestService(t, []payroll.PeriodRate{
		{Period: "P1", HourlyRate: decimal.RequireFromString("7.25"), DailyCapSeconds: 3600},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))

	status, err := svc.LiveStatus(ctx, "stu-1", at(9, 30))
	require.NoError(t, err)

	assert.False(t, status["P1"].Active)
	assert.Equal(t, int64(3600), status["P1"].UnpaidSeconds)

	latest, err := mem.Latest(ctx, "stu-1", "P1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, attendance.SourceCutoff, latest.Source)
	assert.Equal(t, at(9, 0), latest.At)
}

// =============================================================================
// RUN PAYROLL (anchor from the pay ledger)
// =============================================================================

func TestService_RunPayroll_PostsEntriesAndMovesAnchor(t *testing.T) {
	// GIVEN: A closed 2-hour session at 10.00/h
	// WHEN: Payroll runs, then runs again with no new attendance
	// THEN: The first run posts 20.00; the second pays nothing because
	//       the posted entry became the new anchor

	svc, mem, ledger := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("10.00")},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))
	tap(t, mem, "stu-1", "P1", attendance.StateInactive, at(10, 0))

	first, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Paid)
	assert.True(t, first.Amounts["stu-1"].Equal(decimal.RequireFromString("20.00")))

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, payroll.KindPayroll, ledger.entries[0].Kind)
	assert.Equal(t, attendance.StudentID("stu-1"), ledger.entries[0].StudentID)
	assert.Equal(t, at(12, 0), ledger.entries[0].PostedAt)

	second, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(13, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Paid)
	assert.Empty(t, second.Amounts)
	assert.Len(t, ledger.entries, 1)
}

func TestService_RunPayroll_BillsOnlyTimeSinceLastRun(t *testing.T) {
	// GIVEN: One paid run, then 30 more minutes of attendance
	// WHEN: Payroll runs again
	// THEN: Only the new 30 minutes are paid

	svc, mem, ledger := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("10.00")},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))
	tap(t, mem, "stu-1", "P1", attendance.StateInactive, at(9, 0))

	_, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(10, 0))
	require.NoError(t, err)

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(10, 30))
	tap(t, mem, "stu-1", "P1", attendance.StateInactive, at(11, 0))

	result, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(12, 0))
	require.NoError(t, err)
	assert.True(t, result.Amounts["stu-1"].Equal(decimal.RequireFromString("5.00")),
		"got %s", result.Amounts["stu-1"])
	assert.Len(t, ledger.entries, 2)
}

func TestService_RunPayroll_OpenSessionStraddlingRuns_NoDoubleBilling(t *testing.T) {
	// GIVEN: A session still open when the first payroll run happens
	// WHEN: A second run happens while the session is still open
	// THEN: Each run pays only its own slice of the session

	svc, mem, _ := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("10.00")},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))

	first, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(9, 0))
	require.NoError(t, err)
	assert.True(t, first.Amounts["stu-1"].Equal(decimal.RequireFromString("10.00")))

	second, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, nil, at(9, 30))
	require.NoError(t, err)
	assert.True(t, second.Amounts["stu-1"].Equal(decimal.RequireFromString("5.00")),
		"second run must bill only from the first run's anchor, got %s", second.Amounts["stu-1"])
}

func TestService_RunPayroll_ExplicitAnchorOverridesLedger(t *testing.T) {
	svc, mem, _ := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("10.00")},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))
	tap(t, mem, "stu-1", "P1", attendance.StateInactive, at(10, 0))

	anchor := at(9, 0)
	result, err := svc.RunPayroll(ctx, []attendance.StudentID{"stu-1"}, &anchor, at(12, 0))
	require.NoError(t, err)
	assert.True(t, result.Amounts["stu-1"].Equal(decimal.RequireFromString("10.00")),
		"got %s", result.Amounts["stu-1"])
}

func TestService_RunPayroll_NilStudents_CoversRoster(t *testing.T) {
	svc, mem, _ := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("10.00")},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(8, 0))
	tap(t, mem, "stu-1", "P1", attendance.StateInactive, at(9, 0))
	tap(t, mem, "stu-2", "P1", attendance.StateActive, at(8, 0))
	tap(t, mem, "stu-2", "P1", attendance.StateInactive, at(8, 30))

	result, err := svc.RunPayroll(ctx, nil, nil, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Paid)
	assert.True(t, result.Amounts["stu-1"].Equal(decimal.RequireFromString("10.00")))
	assert.True(t, result.Amounts["stu-2"].Equal(decimal.RequireFromString("5.00")))
}

// =============================================================================
// ENFORCE CAPS (operator bulk trigger)
// =============================================================================

func TestService_EnforceCaps_WholeRoster(t *testing.T) {
	// GIVEN: Two students over a 3600s cap, one under it
	// WHEN: A bulk enforcement pass runs
	// THEN: Exactly the over-cap sessions are cut

	svc, mem, _ := newTestService(t, []payroll.PeriodRate{
		{Period: payroll.GlobalPeriod, HourlyRate: decimal.RequireFromString("7.25"), DailyCapSeconds: 3600},
	})
	ctx := context.Background()

	tap(t, mem, "stu-1", "P1", attendance.StateActive, at(7, 0))
	tap(t, mem, "stu-2", "P1", attendance.StateActive, at(9, 45))

	actions, err := svc.EnforceCaps(ctx, nil, at(10, 0))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, attendance.StudentID("stu-1"), actions[0].StudentID)
	assert.Equal(t, at(8, 0), actions[0].CutoffAt)
}
