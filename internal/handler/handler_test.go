package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nvthao/greenroute/internal/model"
	"github.com/nvthao/greenroute/internal/repository"
	"github.com/nvthao/greenroute/internal/service"
)

func TestWriteError_StatusAndCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid state", &service.InvalidStateError{Op: "approve", Current: model.ScheduleInProgress}, http.StatusConflict, "invalid_state"},
		{"empty selection", service.ErrEmptySelection, http.StatusBadRequest, "empty_selection"},
		{"set mismatch", service.ErrSetMismatch, http.StatusConflict, "set_mismatch"},
		{"empty schedule", service.ErrEmptySchedule, http.StatusBadRequest, "empty_schedule"},
		{"date conflict", service.ErrDateConflict, http.StatusConflict, "date_conflict"},
		{"schedule missing", service.ErrScheduleNotFound, http.StatusNotFound, "not_found"},
		{"request missing", fmt.Errorf("%w: id 42", service.ErrRequestNotFound), http.StatusNotFound, "not_found"},
		{"stop missing", service.ErrStopNotFound, http.StatusNotFound, "not_found"},
		{"stop not started", fmt.Errorf("%w: stop 3", service.ErrStopNotStarted), http.StatusConflict, "stop_not_started"},
		{"customer missing", repository.ErrCustomerNotFound, http.StatusNotFound, "not_found"},
		{"not cancellable", fmt.Errorf("%w: request 7 has status 'completed'", repository.ErrNotCancellable), http.StatusConflict, "not_cancellable"},
		{"state conflict", service.ErrStateConflict, http.StatusConflict, "state_conflict"},
		{"unclassified", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)

		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.wantStatus)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid JSON body: %v", tt.name, err)
		}
		if body["error"] != tt.wantCode {
			t.Errorf("%s: error code = %q, want %q", tt.name, body["error"], tt.wantCode)
		}
	}
}

func TestWriteError_InvalidStateCarriesCurrentState(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &service.InvalidStateError{Op: "reorder stops", Current: model.ScheduleCompleted})

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["state"] != string(model.ScheduleCompleted) {
		t.Errorf("state = %q, want %q", body["state"], model.ScheduleCompleted)
	}
}
