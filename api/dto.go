/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. These types
	decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:

	Validation is done in handlers, not in DTOs. DTOs are pure data
	carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
	"github.com/timwonderer/classroom-economy-sub001/payroll"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// StudentDTO represents a roster entry in API responses.
type StudentDTO struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Periods []string `json:"periods"`
}

// CreateStudentRequest is the request to create or update a student.
type CreateStudentRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Periods []string `json:"periods"`
}

// TapRequest is the live check-in/out request body.
type TapRequest struct {
	Period string `json:"period"`
	State  string `json:"state"` // "active" | "inactive"
	Reason string `json:"reason,omitempty"`
}

// EventDTO represents one log entry.
type EventDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Period    string `json:"period"`
	State     string `json:"state"`
	At        string `json:"at"`
	Reason    string `json:"reason,omitempty"`
	Source    string `json:"source"`
}

// PeriodStatusDTO is one period's live state.
type PeriodStatusDTO struct {
	Active        bool  `json:"active"`
	UnpaidSeconds int64 `json:"unpaid_seconds"`
}

// RateDTO represents one period's pay configuration.
type RateDTO struct {
	Period             string `json:"period"`
	HourlyRate         string `json:"hourly_rate"`
	DailyCapSeconds    int64  `json:"daily_cap_seconds,omitempty"`
	OvertimeMultiplier string `json:"overtime_multiplier,omitempty"`
	PayCycleDays       int    `json:"pay_cycle_days,omitempty"`
}

// PayrollRequest triggers an operator payroll run.
type PayrollRequest struct {
	StudentIDs []string `json:"student_ids,omitempty"` // empty = whole roster
	Anchor     *string  `json:"anchor,omitempty"`      // RFC3339; nil = derive from ledger
}

// PayrollResultDTO reports one payroll run.
type PayrollResultDTO struct {
	RunAt   string            `json:"run_at"`
	Amounts map[string]string `json:"amounts"`
	Paid    int               `json:"paid"`
	Skipped int               `json:"skipped"`
	Errored int               `json:"errored"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// EnforceRequest triggers an operator bulk cap enforcement.
type EnforceRequest struct {
	StudentIDs []string `json:"student_ids,omitempty"` // empty = whole roster
}

// CutoffActionDTO reports one injected cutoff.
type CutoffActionDTO struct {
	StudentID    string `json:"student_id"`
	Period       string `json:"period"`
	SessionStart string `json:"session_start"`
	CapSeconds   int64  `json:"cap_seconds"`
	Accumulated  int64  `json:"accumulated_seconds"`
	CutoffAt     string `json:"cutoff_at"`
	EventID      string `json:"event_id"`
}

// LedgerEntryDTO represents one pay ledger row.
type LedgerEntryDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Amount    string `json:"amount"`
	Kind      string `json:"kind"`
	Note      string `json:"note,omitempty"`
	PostedAt  string `json:"posted_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEventDTO(ev attendance.TapEvent) EventDTO {
	return EventDTO{
		ID:        string(ev.ID),
		StudentID: string(ev.StudentID),
		Period:    ev.Period,
		State:     ev.State.String(),
		At:        ev.At.UTC().Format(time.RFC3339),
		Reason:    ev.Reason,
		Source:    string(ev.Source),
	}
}

func toEventDTOs(events []attendance.TapEvent) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	return dtos
}

func toCutoffDTOs(actions []attendance.CutoffAction) []CutoffActionDTO {
	dtos := make([]CutoffActionDTO, len(actions))
	for i, a := range actions {
		dtos[i] = CutoffActionDTO{
			StudentID:    string(a.StudentID),
			Period:       a.Period,
			SessionStart: a.SessionStart.UTC().Format(time.RFC3339),
			CapSeconds:   a.CapSeconds,
			Accumulated:  a.Accumulated,
			CutoffAt:     a.CutoffAt.UTC().Format(time.RFC3339),
			EventID:      string(a.EventID),
		}
	}
	return dtos
}

func toPayrollResultDTO(result payroll.RunResult) PayrollResultDTO {
	dto := PayrollResultDTO{
		RunAt:   result.RunAt.Format(time.RFC3339),
		Amounts: make(map[string]string, len(result.Amounts)),
		Paid:    result.Paid,
		Skipped: result.Skipped,
		Errored: result.Errored,
	}
	for id, amount := range result.Amounts {
		dto.Amounts[string(id)] = amount.StringFixed(2)
	}
	if len(result.Errors) > 0 {
		dto.Errors = make(map[string]string, len(result.Errors))
		for id, err := range result.Errors {
			dto.Errors[string(id)] = err.Error()
		}
	}
	return dto
}
