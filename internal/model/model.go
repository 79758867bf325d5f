// Package model contains domain models for the plant exchange scheduling system.
// These structs map to the PostgreSQL schema defined in migrations/001_init.sql.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ─── Enums ──────────────────────────────────────────────────

// CustomerTier classifies the service level of a rental customer.
type CustomerTier string

const (
	TierStandard CustomerTier = "standard"
	TierPremium  CustomerTier = "premium"
	TierVIP      CustomerTier = "vip"
)

// RequestPriority is the coarse urgency classification of an exchange request.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

// RequestStatus tracks an exchange request through its lifecycle.
//
// Transitions: pending → scheduled (selected into a schedule),
// scheduled → in_progress (its schedule starts execution), then
// → completed or → cancelled (terminal). A request belongs to at most
// one non-cancelled schedule at a time.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestScheduled  RequestStatus = "scheduled"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

// ScheduleStatus tracks a daily schedule through its lifecycle.
type ScheduleStatus string

const (
	ScheduleDraft      ScheduleStatus = "draft"
	ScheduleApproved   ScheduleStatus = "approved"
	ScheduleInProgress ScheduleStatus = "in_progress"
	ScheduleCompleted  ScheduleStatus = "completed"
	ScheduleCancelled  ScheduleStatus = "cancelled"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Domain Models ──────────────────────────────────────────

// Customer maps to the `customers` table. Only the fields the scheduler
// needs are modeled here; full customer CRUD lives elsewhere in the app.
//
// Location is optional — not every customer address has been geocoded.
type Customer struct {
	ID                  int64        `json:"id"`
	Name                string       `json:"name"`
	Tier                CustomerTier `json:"tier"`
	Location            *Location    `json:"location,omitempty"`
	DefaultVisitMinutes *int         `json:"default_visit_minutes,omitempty"`
}

// ExchangeRequest maps to the `exchange_requests` table — a customer's
// ask to replace or retrieve rented plants.
type ExchangeRequest struct {
	ID            int64           `json:"id"`
	PublicRef     uuid.UUID       `json:"public_ref"`
	CustomerID    int64           `json:"customer_id"`
	PlantDesc     string          `json:"plant_desc"`
	Quantity      int             `json:"quantity"`
	Reason        string          `json:"reason,omitempty"`
	PreferredDate *time.Time      `json:"preferred_date,omitempty"`
	Priority      RequestPriority `json:"priority"`
	Status        RequestStatus   `json:"status"`
	ScheduleID    *int64          `json:"schedule_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DaysWaiting returns the whole days elapsed since the request was created.
func (r *ExchangeRequest) DaysWaiting(now time.Time) int {
	d := int(now.Sub(r.CreatedAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// DailySchedule maps to the `daily_schedules` table — one day's planned
// delivery route. It exclusively owns its Stops.
type DailySchedule struct {
	ID           int64          `json:"id"`
	PublicRef    uuid.UUID      `json:"public_ref"`
	ScheduleDate time.Time      `json:"schedule_date"`
	Status       ScheduleStatus `json:"status"`
	Stops        []Stop         `json:"stops"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// StopCount returns the number of stops on the schedule.
func (s *DailySchedule) StopCount() int { return len(s.Stops) }

// Stop maps to the `schedule_stops` table — one customer visit within a
// daily route.
//
// Location is a snapshot of the customer's coordinates taken at schedule
// creation time, so later address edits never reorder a locked-in route.
// It is nil when the customer had no geocoded address.
type Stop struct {
	ID           int64      `json:"id"`
	ScheduleID   int64      `json:"schedule_id"`
	CustomerID   int64      `json:"customer_id"`
	RequestID    int64      `json:"request_id"`
	Position     int        `json:"position"` // 1-based, contiguous within a schedule.
	Location     *Location  `json:"location,omitempty"`
	PlantCount   int        `json:"plant_count"`
	VisitMinutes int        `json:"visit_minutes"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ─── Scheduling DTOs ────────────────────────────────────────

// SchedulingCandidate is a denormalized view used at schedule creation:
// a pending exchange request joined with the customer snapshot the new
// stop will be built from.
type SchedulingCandidate struct {
	Request  ExchangeRequest
	Customer Customer
}

// BacklogItem is one scored entry of the pending-request backlog.
type BacklogItem struct {
	Request      ExchangeRequest `json:"request"`
	CustomerName string          `json:"customer_name"`
	CustomerTier CustomerTier    `json:"customer_tier"`
	DaysWaiting  int             `json:"days_waiting"`
	Score        int             `json:"score"`
}

// DefaultVisitMinutes is the estimated visit duration used when neither
// the customer record nor the request carries one.
const DefaultVisitMinutes = 30
