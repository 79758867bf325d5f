// Package handler contains HTTP request handlers for the exchange
// scheduling API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/nvthao/greenroute/internal/repository"
	"github.com/nvthao/greenroute/internal/service"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to an HTTP response.
//
// Mapping:
//
//	EMPTY_SELECTION / SET_MISMATCH / EMPTY_SCHEDULE → 400/409 validation
//	INVALID_STATE (body carries the current state)  → 409
//	NOT_FOUND                                       → 404
//	DATE_CONFLICT                                   → 409
func writeError(w http.ResponseWriter, err error) {
	var stateErr *service.InvalidStateError

	switch {
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_state",
			"state":   string(stateErr.Current),
			"message": stateErr.Error(),
		})
	case errors.Is(err, service.ErrEmptySelection):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "empty_selection",
			"message": "Select at least one exchange request.",
		})
	case errors.Is(err, service.ErrSetMismatch):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "set_mismatch",
			"message": "Stop order must contain exactly the schedule's stops.",
		})
	case errors.Is(err, service.ErrEmptySchedule):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "empty_schedule",
			"message": "The schedule has no stops to approve.",
		})
	case errors.Is(err, service.ErrDateConflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "date_conflict",
			"message": "A schedule already exists for this date.",
		})
	case errors.Is(err, service.ErrScheduleNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Schedule not found.",
		})
	case errors.Is(err, service.ErrRequestNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Exchange request not found or not pending.",
		})
	case errors.Is(err, service.ErrStopNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Stop not found on this schedule.",
		})
	case errors.Is(err, service.ErrStopNotStarted):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "stop_not_started",
			"message": "Start the stop's visit before completing it.",
		})
	case errors.Is(err, repository.ErrCustomerNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Customer not found.",
		})
	case errors.Is(err, repository.ErrNotCancellable):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "not_cancellable",
			"message": "Request is not in a cancellable state.",
		})
	case errors.Is(err, service.ErrStateConflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "state_conflict",
			"message": "The schedule changed concurrently. Reload and retry.",
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}
