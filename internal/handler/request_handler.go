package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nvthao/greenroute/internal/model"
	"github.com/nvthao/greenroute/internal/repository"
	"github.com/nvthao/greenroute/internal/service"
)

// ─── Request/Response DTOs ──────────────────────────────────

// CreateRequestBody is the JSON body for POST /api/v1/requests.
type CreateRequestBody struct {
	CustomerID    int64  `json:"customer_id"`
	PlantDesc     string `json:"plant_desc"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason"`
	PreferredDate string `json:"preferred_date,omitempty"` // YYYY-MM-DD
	Priority      string `json:"priority,omitempty"`       // low|medium|high|urgent
}

// ─── RequestHandler ─────────────────────────────────────────

// RequestHandler handles exchange request intake and the scored backlog.
type RequestHandler struct {
	requests  *repository.RequestRepository
	customers *repository.CustomerRepository
	backlog   *service.BacklogService
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(
	requests *repository.RequestRepository,
	customers *repository.CustomerRepository,
	backlog *service.BacklogService,
) *RequestHandler {
	return &RequestHandler{requests: requests, customers: customers, backlog: backlog}
}

// CreateRequest handles POST /api/v1/requests
//
// Creates a new pending exchange request.
//
//	Request body:
//	{
//	  "customer_id": 4,
//	  "plant_desc": "2x kentia palm, 1.8m",
//	  "quantity": 2,
//	  "reason": "leaf browning",
//	  "preferred_date": "2026-09-20",
//	  "priority": "high"
//	}
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	// Validation
	if body.CustomerID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "customer_id is required"})
		return
	}
	if strings.TrimSpace(body.PlantDesc) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plant_desc is required"})
		return
	}
	if body.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be a positive integer"})
		return
	}

	priority := model.PriorityMedium
	switch model.RequestPriority(body.Priority) {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
		priority = model.RequestPriority(body.Priority)
	case "":
		// Default medium.
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "priority must be one of low, medium, high, urgent",
		})
		return
	}

	var preferred *time.Time
	if body.PreferredDate != "" {
		d, err := time.Parse("2006-01-02", body.PreferredDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "preferred_date must be YYYY-MM-DD"})
			return
		}
		preferred = &d
	}

	// The customer must exist in the directory.
	if _, err := h.customers.GetCustomer(r.Context(), body.CustomerID); err != nil {
		writeError(w, err)
		return
	}

	req := &model.ExchangeRequest{
		CustomerID:    body.CustomerID,
		PlantDesc:     body.PlantDesc,
		Quantity:      body.Quantity,
		Reason:        body.Reason,
		PreferredDate: preferred,
		Priority:      priority,
	}

	created, err := h.requests.CreateRequest(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetRequest handles GET /api/v1/requests/{id}
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.requests.GetRequestByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// CancelRequest handles POST /api/v1/requests/{id}/cancel
//
// Cancels a pending request, or pulls a scheduled request off its draft
// schedule (closing the position gap) and cancels it.
func (h *RequestHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.requests.CancelRequest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "Exchange request cancelled.",
	})
}

// GetBacklog handles GET /api/v1/backlog
//
// Returns all pending requests scored and sorted by urgency, the list
// the operator builds a daily schedule from.
func (h *RequestHandler) GetBacklog(w http.ResponseWriter, r *http.Request) {
	items, err := h.backlog.ScoredBacklog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}
