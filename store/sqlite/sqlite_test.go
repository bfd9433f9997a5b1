package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
	"github.com/timwonderer/classroom-economy-sub001/payroll"
	"github.com/timwonderer/classroom-economy-sub001/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(h, m int) time.Time {
	return time.Date(2026, time.March, 9, h, m, 0, 0, time.UTC)
}

func appendTap(t *testing.T, store *sqlite.Store, student string, period string, state attendance.TapState, when time.Time) attendance.EventID {
	t.Helper()
	id, err := store.Append(context.Background(), attendance.TapEvent{
		StudentID: attendance.StudentID(student),
		Period:    period,
		State:     state,
		At:        when,
		Source:    attendance.SourceTap,
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// EVENT LOG
// =============================================================================

func TestStore_AppendAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-1", "P1", attendance.StateInactive, at(10, 0))

	latest, err := store.Latest(ctx, "stu-1", "P1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, attendance.StateInactive, latest.State)
	assert.Equal(t, at(10, 0), latest.At)

	none, err := store.Latest(ctx, "stu-1", "P2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_BackdatedAppend_OrdersByTimestamp(t *testing.T) {
	// GIVEN: A tap at 10:00, then a backdated cutoff stamped 09:30
	// WHEN: Reading the log ascending
	// THEN: The cutoff sorts before the later tap; Latest is the tap

	store := newTestStore(t)
	ctx := context.Background()

	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(8, 0))
	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(10, 0))

	_, err := store.Append(ctx, attendance.TapEvent{
		StudentID: "stu-1",
		Period:    "P1",
		State:     attendance.StateInactive,
		At:        at(9, 30),
		Reason:    attendance.CutoffReason,
		Source:    attendance.SourceCutoff,
	})
	require.NoError(t, err)

	events, err := store.Since(ctx, "stu-1", "P1", nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, at(8, 0), events[0].At)
	assert.Equal(t, at(9, 30), events[1].At)
	assert.Equal(t, at(10, 0), events[2].At)

	latest, err := store.Latest(ctx, "stu-1", "P1")
	require.NoError(t, err)
	assert.Equal(t, at(10, 0), latest.At)
}

func TestStore_LatestAt_IgnoresLaterEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-1", "P1", attendance.StateInactive, at(10, 30))

	ev, err := store.LatestAt(ctx, "stu-1", "P1", at(10, 0))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, attendance.StateActive, ev.State)
	assert.Equal(t, at(9, 0), ev.At)

	none, err := store.LatestAt(ctx, "stu-1", "P1", at(8, 0))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_SinceAndWindow_Boundaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-1", "P1", attendance.StateInactive, at(10, 0))
	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(11, 0))

	// Since is strictly after the boundary.
	after := at(9, 0)
	events, err := store.Since(ctx, "stu-1", "P1", &after)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, at(10, 0), events[0].At)

	// Window is [from, to): inclusive start, exclusive end.
	events, err = store.Window(ctx, "stu-1", "P1", at(9, 0), at(11, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, at(9, 0), events[0].At)
	assert.Equal(t, at(10, 0), events[1].At)
}

func TestStore_PurgeStudent_RemovesAllPeriods(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-1", "P2", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-2", "P1", attendance.StateActive, at(9, 0))

	require.NoError(t, store.PurgeStudent(ctx, "stu-1"))

	gone, err := store.EventsOf(ctx, "stu-1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := store.EventsOf(ctx, "stu-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestStore_RoundTrip_PreservesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, attendance.TapEvent{
		StudentID: "stu-1",
		Period:    " p3 ",
		State:     attendance.StateInactive,
		At:        at(14, 45),
		Reason:    "left early",
		Source:    attendance.SourceAdmin,
	})
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "stu-1", "P3")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, "P3", latest.Period)
	assert.Equal(t, "left early", latest.Reason)
	assert.Equal(t, attendance.SourceAdmin, latest.Source)
	assert.False(t, latest.CreatedAt.IsZero())
}

// =============================================================================
// PAY LEDGER
// =============================================================================

func TestStore_Ledger_AnchorFromLatestPayrollRow(t *testing.T) {
	// GIVEN: Payroll entries for two students plus a manual adjustment
	// WHEN: Reading anchors
	// THEN: Manual entries never move the anchor; per-student and global
	//       anchors come from the latest 'payroll' rows

	store := newTestStore(t)
	ctx := context.Background()

	err := store.Post(ctx, []payroll.PayEntry{
		{ID: "pay-1", StudentID: "stu-1", Amount: decimal.RequireFromString("5.00"), Kind: payroll.KindPayroll, PostedAt: at(10, 0)},
		{ID: "pay-2", StudentID: "stu-2", Amount: decimal.RequireFromString("3.00"), Kind: payroll.KindPayroll, PostedAt: at(11, 0)},
	})
	require.NoError(t, err)

	err = store.Post(ctx, []payroll.PayEntry{
		{ID: "adj-1", StudentID: "stu-1", Amount: decimal.RequireFromString("1.00"), Kind: payroll.KindManual, Note: "bonus", PostedAt: at(12, 0)},
	})
	require.NoError(t, err)

	global, err := store.LastPayrollAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, at(11, 0), global.UTC())

	forOne, err := store.LastPayrollFor(ctx, "stu-1")
	require.NoError(t, err)
	require.NotNil(t, forOne)
	assert.Equal(t, at(10, 0), forOne.UTC())

	missing, err := store.LastPayrollFor(ctx, "stu-9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Ledger_EmptyAnchorIsNil(t *testing.T) {
	store := newTestStore(t)

	anchor, err := store.LastPayrollAt(context.Background())
	require.NoError(t, err)
	assert.Nil(t, anchor)
}

func TestStore_Ledger_DuplicateEntryID_RollsBackBatch(t *testing.T) {
	// GIVEN: A posted entry with id "pay-1"
	// WHEN: Posting a batch that reuses the id halfway through
	// THEN: The whole batch rolls back; the first batch is untouched

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Post(ctx, []payroll.PayEntry{
		{ID: "pay-1", StudentID: "stu-1", Amount: decimal.RequireFromString("5.00"), Kind: payroll.KindPayroll, PostedAt: at(10, 0)},
	}))

	err := store.Post(ctx, []payroll.PayEntry{
		{ID: "pay-2", StudentID: "stu-2", Amount: decimal.RequireFromString("2.00"), Kind: payroll.KindPayroll, PostedAt: at(11, 0)},
		{ID: "pay-1", StudentID: "stu-3", Amount: decimal.RequireFromString("3.00"), Kind: payroll.KindPayroll, PostedAt: at(11, 0)},
	})
	require.Error(t, err)

	entries, err := store.LedgerEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "pay-1", entries[0].ID)
}

// =============================================================================
// PERIOD RATES
// =============================================================================

func TestStore_Rates_UpsertAndResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRate(ctx, payroll.PeriodRate{
		Period:          "p1",
		HourlyRate:      decimal.RequireFromString("10.00"),
		DailyCapSeconds: 7200,
	}))
	require.NoError(t, store.SaveRate(ctx, payroll.PeriodRate{
		Period:     payroll.GlobalPeriod,
		HourlyRate: decimal.RequireFromString("5.00"),
	}))

	// Upsert replaces in place.
	require.NoError(t, store.SaveRate(ctx, payroll.PeriodRate{
		Period:          "P1",
		HourlyRate:      decimal.RequireFromString("12.00"),
		DailyCapSeconds: 3600,
	}))

	table, err := store.RateTable(ctx)
	require.NoError(t, err)
	assert.True(t, table.Resolve("P1").HourlyRate.Equal(decimal.RequireFromString("12.00")))
	assert.Equal(t, int64(3600), table.DailyCapSeconds("P1"))
	assert.True(t, table.Resolve("P7").HourlyRate.Equal(decimal.RequireFromString("5.00")))

	rates, err := store.ListRates(ctx)
	require.NoError(t, err)
	assert.Len(t, rates, 2)
}

// =============================================================================
// ROSTER
// =============================================================================

func TestStore_Roster_SaveGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStudent(ctx, payroll.Student{
		ID: "stu-1", Name: "Ada", Periods: []string{" p1 ", "p3"},
	}))

	st, err := store.GetStudent(ctx, "stu-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, []string{"P1", "P3"}, st.Periods)

	periods, err := store.PeriodsOf(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P3"}, periods)

	_, err = store.PeriodsOf(ctx, "ghost")
	assert.ErrorIs(t, err, attendance.ErrStudentNotFound)

	students, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func TestStore_DeleteStudent_CascadesEventPurge(t *testing.T) {
	// GIVEN: A student with history in two periods
	// WHEN: The student is deleted
	// THEN: The roster row and the full event history are gone together

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStudent(ctx, payroll.Student{
		ID: "stu-1", Name: "Ada", Periods: []string{"P1", "P2"},
	}))
	appendTap(t, store, "stu-1", "P1", attendance.StateActive, at(9, 0))
	appendTap(t, store, "stu-1", "P2", attendance.StateActive, at(10, 0))

	require.NoError(t, store.DeleteStudent(ctx, "stu-1"))

	st, err := store.GetStudent(ctx, "stu-1")
	require.NoError(t, err)
	assert.Nil(t, st)

	events, err := store.EventsOf(ctx, "stu-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}
