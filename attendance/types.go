/*
Package attendance provides the attendance ledger and reconciliation engine.

PURPOSE:

	This package contains the core types and algorithms for turning an
	append-only log of clock-in/clock-out events into billable durations.
	Students tap in and out of class periods; everything downstream
	(live status, daily caps, payroll) is derived by replaying that log.

KEY CONCEPTS IN THIS FILE (types.go):
  - TapState: A closed two-variant state (Active/Inactive)
  - TapEvent: An immutable log entry recording one state transition
  - CutoffAction: A report of one injected cap cutoff
  - Student/Event IDs: Type-safe identifiers

DESIGN PRINCIPLES:
 1. Immutability: Events are never modified; the only deletion is a
    full purge of one student's history
 2. Derivation: Billable time is always recomputed from events, never
    stored as a running counter that can drift
 3. Type Safety: TapState is a closed type so pairing logic is
    exhaustive and compiler-checked
 4. UTC everywhere: Events carry UTC instants; the business timezone
    only enters when computing daily-cap windows

SEE ALSO:
  - log.go: EventStore contract (append-only persistence)
  - reconciler.go: Event pairing and unpaid-seconds calculation
  - cutoff.go: Daily-cap enforcement with backdated cutoffs
*/
package attendance

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type EventID string

// =============================================================================
// TAP STATE - Closed two-variant transition state
// =============================================================================

// TapState is the state a student entered with a tap. It is deliberately
// a closed type, not a free-form string: the reconciler's pairing walk
// switches on it exhaustively.
type TapState int

const (
	StateInactive TapState = iota
	StateActive
)

func (s TapState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("tapstate(%d)", int(s))
	}
}

// ParseTapState converts the wire representation back to a TapState.
// Rejects anything outside the two known variants.
func ParseTapState(s string) (TapState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "in":
		return StateActive, nil
	case "inactive", "out":
		return StateInactive, nil
	default:
		return StateInactive, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// =============================================================================
// EVENT SOURCE - Who appended the event
// =============================================================================

type EventSource string

const (
	SourceTap    EventSource = "tap"    // Live check-in/out surface
	SourceCutoff EventSource = "cutoff" // Synthetic cap cutoff (backdated)
	SourceAdmin  EventSource = "admin"  // Operator action
)

// =============================================================================
// TAP EVENT - One append-only record of a state transition
// =============================================================================

// TapEvent records one state transition for one student in one period.
// Events are immutable. The store keeps them in At order per
// (student, period); the reconciler must tolerate any sequence,
// including consecutive same-state rows.
type TapEvent struct {
	ID        EventID
	StudentID StudentID
	Period    string // normalized short code, e.g. "P3"
	State     TapState
	At        time.Time // UTC instant of the transition
	Reason    string    // only meaningful on Active->Inactive
	Source    EventSource
	CreatedAt time.Time
}

// NormalizePeriod canonicalizes a period code for storage and lookup.
func NormalizePeriod(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// =============================================================================
// CUTOFF ACTION - Result of one injected cap cutoff
// =============================================================================

// CutoffAction reports one synthetic Inactive event injected by the
// enforcer. Returned to callers for reporting and audit; the event
// itself lives in the log.
type CutoffAction struct {
	StudentID    StudentID
	Period       string
	SessionStart time.Time // when the capped session opened
	CapSeconds   int64
	Accumulated  int64     // seconds accumulated at enforcement time
	CutoffAt     time.Time // backdated instant the cap was crossed
	EventID      EventID
}

// CutoffReason is the reason recorded on injected cutoff events.
const CutoffReason = "daily cap reached (automatic cutoff)"
