/*
Package payroll turns reconciled attendance into payable amounts.

PURPOSE:

	This package owns the monetary side of the engine: per-period rate
	configuration with a defined fallback chain, the payroll aggregator
	that prices unpaid seconds, the external pay-ledger contract that
	supplies the anchor, and the Service that exposes the engine's
	operations (recordTap, liveStatus, runPayroll, enforceCaps).

KEY CONCEPTS IN THIS FILE (rates.go):
  - PeriodRate: pay rate, optional daily cap, optional overtime
    multiplier, optional pay-cycle length for one period code
  - RateSource: read-only lookup with fallback
  - RateTable: concrete source (period -> global -> hardcoded default)

DESIGN NOTE:

	Rate lookups take an explicit RateSource passed into every call path.
	No ambient session or request state is consulted; the same resolver
	answers the scheduler, the inline checks, and the operator actions.

SEE ALSO:
  - aggregator.go: Prices unpaid seconds with resolved rates
  - attendance/cutoff.go: Consumes DailyCapSeconds through CapSource
*/
package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

// =============================================================================
// PERIOD RATE - Per-period pay configuration (read-only to this engine)
// =============================================================================

// GlobalPeriod is the period code of the global fallback rate row.
const GlobalPeriod = "*"

// DefaultHourlyRate applies when neither a period-specific nor a global
// rate is configured. Configuration-missing is never fatal.
var DefaultHourlyRate = decimal.RequireFromString("7.25")

// PeriodRate is the pay configuration for one period code. Owned and
// mutated by external configuration CRUD; the engine only reads it.
type PeriodRate struct {
	Period             string
	HourlyRate         decimal.Decimal
	DailyCapSeconds    int64           // 0 = no cap
	OvertimeMultiplier decimal.Decimal // zero = no overtime rule
	PayCycleDays       int             // 0 = caller-defined cycle
}

// =============================================================================
// RATE SOURCE - Lookup with fallback chain
// =============================================================================

// RateSource resolves the effective rate for a period code. Resolve
// always succeeds: missing configuration falls through the chain.
type RateSource interface {
	Resolve(period string) PeriodRate
}

// RateTable is an immutable in-memory RateSource: period-specific entry,
// else the global entry, else the hardcoded default rate.
type RateTable struct {
	byPeriod map[string]PeriodRate
	global   *PeriodRate
}

func NewRateTable(rates []PeriodRate) *RateTable {
	t := &RateTable{byPeriod: make(map[string]PeriodRate, len(rates))}
	for _, r := range rates {
		r.Period = attendance.NormalizePeriod(r.Period)
		if r.Period == GlobalPeriod {
			global := r
			t.global = &global
			continue
		}
		t.byPeriod[r.Period] = r
	}
	return t
}

// Resolve implements RateSource.
func (t *RateTable) Resolve(period string) PeriodRate {
	if r, ok := t.byPeriod[attendance.NormalizePeriod(period)]; ok {
		return r
	}
	if t.global != nil {
		r := *t.global
		r.Period = attendance.NormalizePeriod(period)
		return r
	}
	return PeriodRate{
		Period:     attendance.NormalizePeriod(period),
		HourlyRate: DefaultHourlyRate,
	}
}

// DailyCapSeconds implements attendance.CapSource on top of the same
// fallback chain, so cap enforcement and payroll read one config.
func (t *RateTable) DailyCapSeconds(period string) int64 {
	return t.Resolve(period).DailyCapSeconds
}
