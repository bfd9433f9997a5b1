/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:

	Implements attendance.EventStore, payroll.PayLedger, the rate-config
	read model, and the student roster using SQLite. In production the
	same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:

	attendance.EventStore: Append-only tap event log
	payroll.PayLedger:     External transaction table + anchor derivation
	payroll.Roster:        Period membership per student

APPEND-ONLY ENFORCEMENT:

	No UPDATE statements exist for tap_events or pay_ledger. The single
	DELETE on tap_events is the cascading purge of one student's history
	when the account is removed.

KEY TABLES:

	tap_events:   Immutable attendance log, keyed (student, period, at)
	pay_ledger:   Append-only monetary entries; the latest 'payroll' row's
	              posted_at is the next reconciliation anchor
	period_rates: Per-period pay configuration ('*' = global fallback)
	students:     Roster read model (period membership)

CONCURRENCY:

	Uses sync.RWMutex for thread-safety and WAL mode for concurrent
	readers. The cutoff enforcer's optimistic latest-event check runs on
	top of this: the store itself needs no cross-key coordination because
	writers only append.

SEE ALSO:
  - attendance/log.go: EventStore contract
  - payroll/ledger.go: PayLedger contract
  - attendance/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
	"github.com/timwonderer/classroom-economy-sub001/payroll"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Tap events (append-only attendance log)
	CREATE TABLE IF NOT EXISTS tap_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL,
		period TEXT NOT NULL,
		state TEXT NOT NULL,
		at TEXT NOT NULL,
		reason TEXT,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: per-key ordered scans for reconciliation
	CREATE INDEX IF NOT EXISTS idx_tap_events_key_at
		ON tap_events(student_id, period, at);

	-- Pay ledger (append-only monetary entries; external collaborator)
	CREATE TABLE IF NOT EXISTS pay_ledger (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		note TEXT,
		posted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pay_ledger_student
		ON pay_ledger(student_id, posted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_pay_ledger_kind
		ON pay_ledger(kind, posted_at DESC);

	-- Period rate configuration ('*' row = global fallback)
	CREATE TABLE IF NOT EXISTS period_rates (
		period TEXT PRIMARY KEY,
		hourly_rate TEXT NOT NULL,
		daily_cap_seconds INTEGER NOT NULL DEFAULT 0,
		overtime_multiplier TEXT NOT NULL DEFAULT '0',
		pay_cycle_days INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Students (roster read model)
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		periods TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (attendance.EventStore interface)
// =============================================================================

const eventColumns = "id, student_id, period, state, at, reason, source, created_at"

// Append adds an event to the log.
func (s *Store) Append(ctx context.Context, ev attendance.TapEvent) (attendance.EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tap_events (student_id, period, state, at, reason, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.StudentID,
		attendance.NormalizePeriod(ev.Period),
		ev.State.String(),
		ev.At.UTC().Format(time.RFC3339),
		nullString(ev.Reason),
		string(ev.Source),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read event id: %w", err)
	}
	return attendance.EventID(fmt.Sprintf("%d", id)), nil
}

// Latest returns the most recent event for student+period, or nil.
func (s *Store) Latest(ctx context.Context, student attendance.StudentID, period string) (*attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + eventColumns + `
		FROM tap_events
		WHERE student_id = ? AND period = ?
		ORDER BY at DESC, id DESC
		LIMIT 1
	`
	return s.queryOneEvent(ctx, query, student, attendance.NormalizePeriod(period))
}

// LatestAt returns the most recent event with at <= the given instant, or nil.
func (s *Store) LatestAt(ctx context.Context, student attendance.StudentID, period string, at time.Time) (*attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + eventColumns + `
		FROM tap_events
		WHERE student_id = ? AND period = ? AND at <= ?
		ORDER BY at DESC, id DESC
		LIMIT 1
	`
	return s.queryOneEvent(ctx, query, student, attendance.NormalizePeriod(period),
		at.UTC().Format(time.RFC3339))
}

// Since returns events after the given instant (all when nil), ascending.
func (s *Store) Since(ctx context.Context, student attendance.StudentID, period string, after *time.Time) ([]attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if after == nil {
		query := `
			SELECT ` + eventColumns + `
			FROM tap_events
			WHERE student_id = ? AND period = ?
			ORDER BY at ASC, id ASC
		`
		return s.queryEvents(ctx, query, student, attendance.NormalizePeriod(period))
	}

	query := `
		SELECT ` + eventColumns + `
		FROM tap_events
		WHERE student_id = ? AND period = ? AND at > ?
		ORDER BY at ASC, id ASC
	`
	return s.queryEvents(ctx, query, student, attendance.NormalizePeriod(period),
		after.UTC().Format(time.RFC3339))
}

// Window returns events in [from, to), ascending.
func (s *Store) Window(ctx context.Context, student attendance.StudentID, period string, from, to time.Time) ([]attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + eventColumns + `
		FROM tap_events
		WHERE student_id = ? AND period = ? AND at >= ? AND at < ?
		ORDER BY at ASC, id ASC
	`
	return s.queryEvents(ctx, query, student, attendance.NormalizePeriod(period),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

// PurgeStudent removes a student's entire event history. The only
// deletion the log supports.
func (s *Store) PurgeStudent(ctx context.Context, student attendance.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM tap_events WHERE student_id = ?", student)
	return err
}

// EventsOf returns a student's full history across all periods,
// ascending (audit view).
func (s *Store) EventsOf(ctx context.Context, student attendance.StudentID) ([]attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + eventColumns + `
		FROM tap_events
		WHERE student_id = ?
		ORDER BY at ASC, id ASC
	`
	return s.queryEvents(ctx, query, student)
}

func (s *Store) queryOneEvent(ctx context.Context, query string, args ...any) (*attendance.TapEvent, error) {
	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]attendance.TapEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []attendance.TapEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (attendance.TapEvent, error) {
	var (
		ev        attendance.TapEvent
		id        int64
		state     string
		at        string
		reason    sql.NullString
		source    string
		createdAt string
	)

	err := rows.Scan(&id, &ev.StudentID, &ev.Period, &state, &at, &reason, &source, &createdAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.ID = attendance.EventID(fmt.Sprintf("%d", id))
	ev.State, err = attendance.ParseTapState(state)
	if err != nil {
		return ev, err
	}
	ev.At, _ = time.Parse(time.RFC3339, at)
	ev.Reason = reason.String
	ev.Source = attendance.EventSource(source)
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return ev, nil
}

// =============================================================================
// PAY LEDGER (payroll.PayLedger interface)
// =============================================================================

// Post appends one payroll run's entries atomically.
func (s *Store) Post(ctx context.Context, entries []payroll.PayEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pay_ledger (id, student_id, amount, kind, note, posted_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.StudentID, e.Amount.String(), string(e.Kind),
			nullString(e.Note), e.PostedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to post ledger entry: %w", err)
		}
	}

	return tx.Commit()
}

// LastPayrollAt returns the global anchor: the most recent posted
// payroll entry's timestamp, or nil when no payroll has ever run.
func (s *Store) LastPayrollAt(ctx context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastPayroll(ctx,
		"SELECT posted_at FROM pay_ledger WHERE kind = ? ORDER BY posted_at DESC LIMIT 1",
		string(payroll.KindPayroll))
}

// LastPayrollFor returns one student's most recent payroll timestamp, or nil.
func (s *Store) LastPayrollFor(ctx context.Context, student attendance.StudentID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastPayroll(ctx,
		"SELECT posted_at FROM pay_ledger WHERE kind = ? AND student_id = ? ORDER BY posted_at DESC LIMIT 1",
		string(payroll.KindPayroll), student)
}

func (s *Store) lastPayroll(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var postedAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&postedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, postedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse posted_at: %w", err)
	}
	return &t, nil
}

// LedgerEntries returns the most recent ledger rows (admin view).
func (s *Store) LedgerEntries(ctx context.Context, limit int) ([]payroll.PayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, amount, kind, note, posted_at
		FROM pay_ledger
		ORDER BY posted_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []payroll.PayEntry
	for rows.Next() {
		var (
			e        payroll.PayEntry
			amount   string
			kind     string
			note     sql.NullString
			postedAt string
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &amount, &kind, &note, &postedAt); err != nil {
			return nil, err
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		e.Kind = payroll.EntryKind(kind)
		e.Note = note.String
		e.PostedAt, _ = time.Parse(time.RFC3339, postedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// PERIOD RATES (configuration read model)
// =============================================================================

// SaveRate upserts one period's rate configuration.
func (s *Store) SaveRate(ctx context.Context, r payroll.PeriodRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO period_rates (period, hourly_rate, daily_cap_seconds, overtime_multiplier, pay_cycle_days, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(period) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			daily_cap_seconds = excluded.daily_cap_seconds,
			overtime_multiplier = excluded.overtime_multiplier,
			pay_cycle_days = excluded.pay_cycle_days,
			updated_at = excluded.updated_at`,
		attendance.NormalizePeriod(r.Period),
		r.HourlyRate.String(),
		r.DailyCapSeconds,
		r.OvertimeMultiplier.String(),
		r.PayCycleDays,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListRates returns every configured rate row.
func (s *Store) ListRates(ctx context.Context) ([]payroll.PeriodRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT period, hourly_rate, daily_cap_seconds, overtime_multiplier, pay_cycle_days
		FROM period_rates
		ORDER BY period`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []payroll.PeriodRate
	for rows.Next() {
		var (
			r        payroll.PeriodRate
			hourly   string
			overtime string
		)
		if err := rows.Scan(&r.Period, &hourly, &r.DailyCapSeconds, &overtime, &r.PayCycleDays); err != nil {
			return nil, err
		}
		if r.HourlyRate, err = decimal.NewFromString(hourly); err != nil {
			return nil, fmt.Errorf("failed to parse hourly_rate: %w", err)
		}
		if r.OvertimeMultiplier, err = decimal.NewFromString(overtime); err != nil {
			return nil, fmt.Errorf("failed to parse overtime_multiplier: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// RateTable loads the configured rates into an immutable resolver.
func (s *Store) RateTable(ctx context.Context) (*payroll.RateTable, error) {
	rates, err := s.ListRates(ctx)
	if err != nil {
		return nil, err
	}
	return payroll.NewRateTable(rates), nil
}

// =============================================================================
// STUDENT ROSTER (payroll.Roster interface)
// =============================================================================

// SaveStudent upserts a roster row. Period codes are normalized and
// stored comma-joined.
func (s *Store) SaveStudent(ctx context.Context, st payroll.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := make([]string, len(st.Periods))
	for i, p := range st.Periods {
		normalized[i] = attendance.NormalizePeriod(p)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, periods, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			periods = excluded.periods`,
		st.ID, st.Name, strings.Join(normalized, ","),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetStudent returns one roster row, or nil.
func (s *Store) GetStudent(ctx context.Context, id attendance.StudentID) (*payroll.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st      payroll.Student
		periods string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, periods FROM students WHERE id = ?", id,
	).Scan(&st.ID, &st.Name, &periods)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Periods = splitPeriods(periods)
	return &st, nil
}

// PeriodsOf implements payroll.Roster.
func (s *Store) PeriodsOf(ctx context.Context, student attendance.StudentID) ([]string, error) {
	st, err := s.GetStudent(ctx, student)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, attendance.ErrStudentNotFound
	}
	return st.Periods, nil
}

// List implements payroll.Roster.
func (s *Store) List(ctx context.Context) ([]payroll.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, periods FROM students ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []payroll.Student
	for rows.Next() {
		var (
			st      payroll.Student
			periods string
		)
		if err := rows.Scan(&st.ID, &st.Name, &periods); err != nil {
			return nil, err
		}
		st.Periods = splitPeriods(periods)
		students = append(students, st)
	}
	return students, rows.Err()
}

// DeleteStudent removes a roster row and cascades the purge of the
// student's event history.
func (s *Store) DeleteStudent(ctx context.Context, id attendance.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tap_events WHERE student_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"tap_events", "pay_ledger", "period_rates", "students"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func splitPeriods(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
