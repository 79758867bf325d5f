package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nvthao/greenroute/internal/service"
)

// ─── Request/Response DTOs ──────────────────────────────────

// CreateScheduleBody is the JSON body for POST /api/v1/schedules.
type CreateScheduleBody struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	RequestIDs []int64 `json:"request_ids"`
}

// StopOrderBody is the JSON body for PUT /api/v1/schedules/{id}/stops/order.
// The presentation layer computes the full new ordering client-side
// (drag-and-drop) and submits it here atomically.
type StopOrderBody struct {
	StopIDs []int64 `json:"stop_ids"`
}

// ─── ScheduleHandler ────────────────────────────────────────

// ScheduleHandler handles daily schedule HTTP requests.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler creates a new handler wired to the schedule service.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// CreateSchedule handles POST /api/v1/schedules
//
// Creates a DRAFT schedule for the given date from the selected pending
// requests, stops in selection order.
//
//	Request body:
//	{
//	  "date": "2026-09-15",
//	  "request_ids": [12, 7, 31]
//	}
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body CreateScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	schedule, err := h.schedules.CreateDailySchedule(r.Context(), date, body.RequestIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

// GetSchedule handles GET /api/v1/schedules/{id}
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	schedule, err := h.schedules.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// UpdateStopOrder handles PUT /api/v1/schedules/{id}/stops/order
//
// Persists a manual reordering. The payload must be a permutation of
// the schedule's current stop ids.
func (h *ScheduleHandler) UpdateStopOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body StopOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := h.schedules.UpdateStopOrder(r.Context(), id, body.StopIDs); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "reordered",
		"message": "Stop order updated.",
	})
}

// OptimizeRoute handles POST /api/v1/schedules/{id}/optimize
//
// Reorders the stops for minimal travel distance from the depot and
// returns the schedule with the new order.
func (h *ScheduleHandler) OptimizeRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	schedule, err := h.schedules.OptimizeRoute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// ApproveSchedule handles POST /api/v1/schedules/{id}/approve
func (h *ScheduleHandler) ApproveSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.schedules.ApproveSchedule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "approved",
		"message": "Schedule approved.",
	})
}

// DeleteSchedule handles DELETE /api/v1/schedules/{id}
//
// Draft schedules only; contained requests return to the backlog.
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.schedules.DeleteSchedule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "deleted",
		"message": "Schedule deleted. Requests returned to the backlog.",
	})
}

// CancelSchedule handles POST /api/v1/schedules/{id}/cancel
func (h *ScheduleHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.schedules.CancelSchedule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "Schedule cancelled. Unfinished requests returned to the backlog.",
	})
}

// StartStop handles POST /api/v1/schedules/{id}/stops/{stop_id}/start
func (h *ScheduleHandler) StartStop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stopID, ok := pathID(w, r, "stop_id")
	if !ok {
		return
	}

	if err := h.schedules.StartStop(r.Context(), id, stopID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// CompleteStop handles POST /api/v1/schedules/{id}/stops/{stop_id}/complete
func (h *ScheduleHandler) CompleteStop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stopID, ok := pathID(w, r, "stop_id")
	if !ok {
		return
	}

	if err := h.schedules.CompleteStop(r.Context(), id, stopID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// pathID parses an integer path variable, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid " + name + ": must be an integer",
		})
		return 0, false
	}
	return id, true
}
