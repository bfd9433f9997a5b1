/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:

	Exposes the attendance ledger and payroll engine via REST. Handles
	HTTP request/response, JSON serialization, and delegates to the
	payroll.Service.

ENDPOINTS:

	Students:
	  GET    /api/students               List roster
	  POST   /api/students               Create/update student
	  GET    /api/students/{id}          Get student
	  DELETE /api/students/{id}          Remove student (purges events)
	  POST   /api/students/{id}/tap      Record a clock-in/out
	  GET    /api/students/{id}/status   Live status per period
	  GET    /api/students/{id}/events   Event history (audit)

	Rates:
	  GET    /api/rates                  List period rate config
	  PUT    /api/rates/{period}         Upsert one period's config

	Admin:
	  POST   /api/admin/payroll          Run payroll
	  POST   /api/admin/enforce          Bulk cap enforcement
	  GET    /api/admin/ledger           Recent pay ledger entries

ERROR HANDLING:

	Errors are returned as JSON with appropriate HTTP status:
	- 400: Validation errors, invalid input
	- 404: Student not found
	- 500: Store errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - sweeper.go: Background enforcement trigger
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
	"github.com/timwonderer/classroom-economy-sub001/payroll"
	"github.com/timwonderer/classroom-economy-sub001/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *payroll.Service
	Zone    *time.Location

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewHandler creates a new handler around the store and business zone.
func NewHandler(store *sqlite.Store, zone *time.Location) *Handler {
	h := &Handler{
		Store: store,
		Zone:  zone,
		now:   func() time.Time { return time.Now().UTC() },
	}
	h.Service = payroll.NewService(store, &storeRates{store: store}, store, store, zone)
	return h
}

// storeRates resolves rates from the period_rates table on each lookup,
// so configuration edits take effect without a restart.
type storeRates struct {
	store *sqlite.Store
}

func (r *storeRates) Resolve(period string) payroll.PeriodRate {
	table, err := r.store.RateTable(context.Background())
	if err != nil {
		return payroll.PeriodRate{
			Period:     attendance.NormalizePeriod(period),
			HourlyRate: payroll.DefaultHourlyRate,
		}
	}
	return table.Resolve(period)
}

func (r *storeRates) DailyCapSeconds(period string) int64 {
	return r.Resolve(period).DailyCapSeconds
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns the roster.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, st := range students {
		dtos[i] = StudentDTO{ID: string(st.ID), Name: st.Name, Periods: st.Periods}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent creates or updates a roster entry.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || len(req.Periods) == 0 {
		writeError(w, http.StatusBadRequest, "id and periods are required", nil)
		return
	}

	st := payroll.Student{
		ID:      attendance.StudentID(req.ID),
		Name:    req.Name,
		Periods: req.Periods,
	}
	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusCreated, StudentDTO{ID: req.ID, Name: req.Name, Periods: req.Periods})
}

// GetStudent returns one roster entry.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := attendance.StudentID(chi.URLParam(r, "id"))

	st, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, StudentDTO{ID: string(st.ID), Name: st.Name, Periods: st.Periods})
}

// DeleteStudent removes a student and purges their event history.
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := attendance.StudentID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteStudent(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// RecordTap records one clock-in/out event.
// POST /api/students/{id}/tap
func (h *Handler) RecordTap(w http.ResponseWriter, r *http.Request) {
	id := attendance.StudentID(chi.URLParam(r, "id"))

	var req TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state, err := attendance.ParseTapState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid state (use active/inactive)", err)
		return
	}

	ev, err := h.Service.RecordTap(r.Context(), id, req.Period, state, req.Reason, h.now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// LiveStatus returns each period's active flag and unpaid seconds.
// GET /api/students/{id}/status
func (h *Handler) LiveStatus(w http.ResponseWriter, r *http.Request) {
	id := attendance.StudentID(chi.URLParam(r, "id"))

	status, err := h.Service.LiveStatus(r.Context(), id, h.now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	dto := make(map[string]PeriodStatusDTO, len(status))
	for period, ps := range status {
		dto[period] = PeriodStatusDTO{Active: ps.Active, UnpaidSeconds: ps.UnpaidSeconds}
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListEvents returns a student's full event history.
// GET /api/students/{id}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := attendance.StudentID(chi.URLParam(r, "id"))

	events, err := h.Store.EventsOf(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// =============================================================================
// RATE CONFIG HANDLERS
// =============================================================================

// ListRates returns all configured period rates.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.ListRates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}

	dtos := make([]RateDTO, len(rates))
	for i, rate := range rates {
		dtos[i] = RateDTO{
			Period:             rate.Period,
			HourlyRate:         rate.HourlyRate.String(),
			DailyCapSeconds:    rate.DailyCapSeconds,
			OvertimeMultiplier: rate.OvertimeMultiplier.String(),
			PayCycleDays:       rate.PayCycleDays,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRate upserts one period's pay configuration.
// PUT /api/rates/{period}
func (h *Handler) SaveRate(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")

	var req RateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hourly, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}
	overtime := decimal.Zero
	if req.OvertimeMultiplier != "" {
		if overtime, err = decimal.NewFromString(req.OvertimeMultiplier); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid overtime_multiplier", err)
			return
		}
	}

	rate := payroll.PeriodRate{
		Period:             period,
		HourlyRate:         hourly,
		DailyCapSeconds:    req.DailyCapSeconds,
		OvertimeMultiplier: overtime,
		PayCycleDays:       req.PayCycleDays,
	}
	if err := h.Store.SaveRate(r.Context(), rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunPayroll runs payroll over the named students (whole roster when
// empty) and posts the resulting ledger entries.
// POST /api/admin/payroll
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var anchor *time.Time
	if req.Anchor != nil {
		t, err := time.Parse(time.RFC3339, *req.Anchor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid anchor (use RFC3339)", err)
			return
		}
		t = t.UTC()
		anchor = &t
	}

	result, err := h.Service.RunPayroll(r.Context(), toStudentIDs(req.StudentIDs), anchor, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Payroll run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollResultDTO(result))
}

// EnforceCaps runs bulk cap enforcement and reports injected cutoffs.
// POST /api/admin/enforce
func (h *Handler) EnforceCaps(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actions, err := h.Service.EnforceCaps(r.Context(), toStudentIDs(req.StudentIDs), h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Enforcement failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCutoffDTOs(actions))
}

// ListLedger returns recent pay ledger entries.
// GET /api/admin/ledger
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.LedgerEntries(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LedgerEntryDTO{
			ID:        e.ID,
			StudentID: string(e.StudentID),
			Amount:    e.Amount.StringFixed(2),
			Kind:      string(e.Kind),
			Note:      e.Note,
			PostedAt:  e.PostedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "Student not found", err)
	case attendance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case attendance.IsRaceDetected(err):
		// Normally swallowed upstream; if one leaks out, report the conflict.
		writeError(w, http.StatusConflict, "Superseded by concurrent update", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func toStudentIDs(ids []string) []attendance.StudentID {
	if len(ids) == 0 {
		return nil // whole roster
	}
	out := make([]attendance.StudentID, len(ids))
	for i, id := range ids {
		out[i] = attendance.StudentID(id)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
