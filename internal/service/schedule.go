// Package service contains the core business logic for exchange-request
// scheduling and route optimization.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nvthao/greenroute/internal/model"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrEmptySelection is returned when a schedule is created from an
	// empty request selection.
	ErrEmptySelection = errors.New("no exchange requests selected")

	// ErrSetMismatch is returned when a reorder payload is not a
	// permutation of the schedule's current stops.
	ErrSetMismatch = errors.New("stop order is not a permutation of the schedule's stops")

	// ErrEmptySchedule is returned when approving a schedule with no stops.
	ErrEmptySchedule = errors.New("schedule has no stops")

	// ErrDateConflict is returned when a non-cancelled schedule already
	// exists for the requested date.
	ErrDateConflict = errors.New("a schedule already exists for this date")

	// ErrScheduleNotFound is returned when the schedule id does not resolve.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrRequestNotFound is returned when a request id does not resolve
	// to a pending exchange request.
	ErrRequestNotFound = errors.New("exchange request not found or not pending")

	// ErrStopNotFound is returned when the stop id does not belong to
	// the schedule.
	ErrStopNotFound = errors.New("stop not found on schedule")

	// ErrStopNotStarted is returned when completing a stop whose visit
	// was never started.
	ErrStopNotStarted = errors.New("stop has not been started")

	// ErrStateConflict is returned by stores when a guarded write finds
	// the schedule in a different state than the caller observed.
	ErrStateConflict = errors.New("schedule state changed concurrently")
)

// ─── Store ──────────────────────────────────────────────────

// Store is the narrow persistence contract the scheduler depends on.
// Every multi-record method is a single atomic unit: a reader never
// observes a partially applied schedule mutation.
type Store interface {
	// GetSchedulingCandidates returns the PENDING requests among the
	// given ids, each joined with its customer snapshot. Ids that do not
	// resolve to a pending request are simply absent from the result.
	GetSchedulingCandidates(ctx context.Context, requestIDs []int64) ([]model.SchedulingCandidate, error)

	// HasActiveScheduleOn reports whether a non-cancelled schedule
	// exists for the calendar date.
	HasActiveScheduleOn(ctx context.Context, date time.Time) (bool, error)

	// InsertSchedule persists a new draft schedule with its stops and
	// flips the referenced requests to SCHEDULED, all in one transaction.
	InsertSchedule(ctx context.Context, schedule *model.DailySchedule) (*model.DailySchedule, error)

	// GetSchedule loads a schedule with its stops ordered by position.
	GetSchedule(ctx context.Context, scheduleID int64) (*model.DailySchedule, error)

	// ReplaceStopOrder atomically rewrites the 1-based positions of the
	// schedule's stops to match the given id order.
	ReplaceStopOrder(ctx context.Context, scheduleID int64, orderedStopIDs []int64) error

	// UpdateScheduleStatus moves the schedule from one status to another;
	// returns ErrStateConflict if the schedule is no longer in `from`.
	UpdateScheduleStatus(ctx context.Context, scheduleID int64, from, to model.ScheduleStatus) error

	// DeleteSchedule removes a draft schedule and its stops and reverts
	// the contained requests to PENDING, in one transaction.
	DeleteSchedule(ctx context.Context, scheduleID int64) error

	// CancelSchedule marks the schedule CANCELLED, reverts its
	// non-completed requests to PENDING, and keeps the record for audit.
	CancelSchedule(ctx context.Context, scheduleID int64) error

	// MarkStopStarted records the visit start and applies the given
	// schedule status (IN_PROGRESS on the first start).
	MarkStopStarted(ctx context.Context, scheduleID, stopID int64, scheduleStatus model.ScheduleStatus) error

	// MarkStopCompleted records the visit completion, completes the
	// stop's request, and applies the given schedule status.
	MarkStopCompleted(ctx context.Context, scheduleID, stopID int64, scheduleStatus model.ScheduleStatus) error
}

// ─── ScheduleService ────────────────────────────────────────

// ScheduleService orchestrates schedule creation, stop ordering, route
// optimization, and the schedule lifecycle.
//
// Concurrency model: every operation is synchronous and maps to one
// transactional store call; concurrent edits of the same draft schedule
// are last-write-wins at the persistence layer.
type ScheduleService struct {
	store               Store
	optimizer           *RouteOptimizer
	depot               model.Location
	defaultVisitMinutes int
	now                 func() time.Time
}

// NewScheduleService creates a schedule service.
func NewScheduleService(store Store, optimizer *RouteOptimizer, depot model.Location, defaultVisitMinutes int) *ScheduleService {
	if defaultVisitMinutes <= 0 {
		defaultVisitMinutes = model.DefaultVisitMinutes
	}
	return &ScheduleService{
		store:               store,
		optimizer:           optimizer,
		depot:               depot,
		defaultVisitMinutes: defaultVisitMinutes,
		now:                 time.Now,
	}
}

// CreateDailySchedule creates a DRAFT schedule for the given date from
// the selected PENDING requests, in the order the caller supplied.
//
// Each stop snapshots the customer's current coordinates and workload
// (plant count, estimated visit duration) so later customer edits do
// not retroactively change a locked-in route. All writes — schedule,
// stops, request status flips — happen in one transaction.
//
// Fails with ErrEmptySelection on an empty id list, ErrDateConflict if
// a non-cancelled schedule already exists for the date, and
// ErrRequestNotFound if any id does not resolve to a pending request.
func (s *ScheduleService) CreateDailySchedule(ctx context.Context, date time.Time, requestIDs []int64) (*model.DailySchedule, error) {
	if len(requestIDs) == 0 {
		return nil, ErrEmptySelection
	}
	requestIDs = dedupeIDs(requestIDs)

	exists, err := s.store.HasActiveScheduleOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("schedule: check date: %w", err)
	}
	if exists {
		return nil, ErrDateConflict
	}

	candidates, err := s.store.GetSchedulingCandidates(ctx, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("schedule: load requests: %w", err)
	}

	byID := make(map[int64]model.SchedulingCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.Request.ID] = c
	}

	// Build stops in selection order, snapshotting the customer.
	stops := make([]model.Stop, 0, len(requestIDs))
	for i, id := range requestIDs {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrRequestNotFound, id)
		}

		var loc *model.Location
		if c.Customer.Location != nil {
			snapshot := *c.Customer.Location
			loc = &snapshot
		}

		visit := s.defaultVisitMinutes
		if c.Customer.DefaultVisitMinutes != nil && *c.Customer.DefaultVisitMinutes > 0 {
			visit = *c.Customer.DefaultVisitMinutes
		}

		stops = append(stops, model.Stop{
			CustomerID:   c.Customer.ID,
			RequestID:    c.Request.ID,
			Position:     i + 1,
			Location:     loc,
			PlantCount:   c.Request.Quantity,
			VisitMinutes: visit,
		})
	}

	schedule := &model.DailySchedule{
		ScheduleDate: date,
		Status:       model.ScheduleDraft,
		Stops:        stops,
	}

	created, err := s.store.InsertSchedule(ctx, schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule: create: %w", err)
	}

	log.Printf("[schedule] ✓ Created draft schedule #%d for %s with %d stops",
		created.ID, date.Format("2006-01-02"), len(created.Stops))

	return created, nil
}

// GetSchedule loads a schedule with its ordered stops.
func (s *ScheduleService) GetSchedule(ctx context.Context, scheduleID int64) (*model.DailySchedule, error) {
	return s.store.GetSchedule(ctx, scheduleID)
}

// UpdateStopOrder persists a manual reordering of the schedule's stops.
//
// The payload must be a permutation of the schedule's current stop ids —
// same set, no additions or removals (ErrSetMismatch otherwise). The
// schedule must be DRAFT or APPROVED; routes already being executed are
// immutable (InvalidStateError). The rewrite is atomic: either every
// stop gets its new position or none do.
func (s *ScheduleService) UpdateStopOrder(ctx context.Context, scheduleID int64, orderedStopIDs []int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if !CanReorder(schedule.Status) {
		return &InvalidStateError{Op: "reorder stops", Current: schedule.Status}
	}
	if schedule.Status == model.ScheduleApproved {
		// Allowed, but the approval no longer reflects the new order.
		log.Printf("[schedule] WARNING: reordering approved schedule #%d; re-approval recommended", scheduleID)
	}

	if err := validatePermutation(schedule.Stops, orderedStopIDs); err != nil {
		return err
	}

	if err := s.store.ReplaceStopOrder(ctx, scheduleID, orderedStopIDs); err != nil {
		return fmt.Errorf("schedule: reorder #%d: %w", scheduleID, err)
	}

	log.Printf("[schedule] ✓ Reordered %d stops on schedule #%d", len(orderedStopIDs), scheduleID)
	return nil
}

// OptimizeRoute reorders the schedule's stops to minimize travel
// distance from the depot, persisting through the same atomic path as
// UpdateStopOrder. A schedule with fewer than 2 stops is a no-op, not
// an error. Subject to the same lifecycle guard as manual reordering.
func (s *ScheduleService) OptimizeRoute(ctx context.Context, scheduleID int64) (*model.DailySchedule, error) {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if !CanReorder(schedule.Status) {
		return nil, &InvalidStateError{Op: "optimize route", Current: schedule.Status}
	}

	if len(schedule.Stops) < 2 {
		log.Printf("[optimize] Schedule #%d has %d stops; nothing to optimize", scheduleID, len(schedule.Stops))
		return schedule, nil
	}

	before := s.optimizer.RouteDistanceKm(schedule.Stops, s.depot)
	optimized := s.optimizer.Optimize(schedule.Stops, s.depot)
	after := s.optimizer.RouteDistanceKm(optimized, s.depot)

	orderedIDs := make([]int64, len(optimized))
	for i, stop := range optimized {
		orderedIDs[i] = stop.ID
	}

	if err := s.store.ReplaceStopOrder(ctx, scheduleID, orderedIDs); err != nil {
		return nil, fmt.Errorf("schedule: persist optimized order #%d: %w", scheduleID, err)
	}

	log.Printf("[optimize] ✓ Schedule #%d: %.2f km → %.2f km (%d stops)",
		scheduleID, before, after, len(optimized))

	return s.store.GetSchedule(ctx, scheduleID)
}

// ApproveSchedule applies the DRAFT → APPROVED transition. Fails with
// InvalidStateError if the schedule is not a draft and ErrEmptySchedule
// if it has no stops.
func (s *ScheduleService) ApproveSchedule(ctx context.Context, scheduleID int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if schedule.Status != model.ScheduleDraft {
		return &InvalidStateError{Op: "approve", Current: schedule.Status}
	}
	if schedule.StopCount() == 0 {
		return ErrEmptySchedule
	}

	if err := s.store.UpdateScheduleStatus(ctx, scheduleID, model.ScheduleDraft, model.ScheduleApproved); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return &InvalidStateError{Op: "approve", Current: schedule.Status}
		}
		return fmt.Errorf("schedule: approve #%d: %w", scheduleID, err)
	}

	log.Printf("[schedule] ✓ Approved schedule #%d (%d stops)", scheduleID, schedule.StopCount())
	return nil
}

// DeleteSchedule destroys a DRAFT schedule: all stops are deleted and
// the contained requests revert to PENDING so they re-enter the backlog.
// Non-draft schedules cannot be deleted (cancel them instead).
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if !CanDelete(schedule.Status) {
		return &InvalidStateError{Op: "delete", Current: schedule.Status}
	}

	if err := s.store.DeleteSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("schedule: delete #%d: %w", scheduleID, err)
	}

	log.Printf("[schedule] ✓ Deleted draft schedule #%d; %d requests back to pending",
		scheduleID, schedule.StopCount())
	return nil
}

// CancelSchedule cancels a schedule in any non-terminal state. Contained
// requests that have not completed revert to PENDING; the schedule row
// and its stops are kept for audit.
func (s *ScheduleService) CancelSchedule(ctx context.Context, scheduleID int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if IsTerminal(schedule.Status) {
		return &InvalidStateError{Op: "cancel", Current: schedule.Status}
	}

	if err := s.store.CancelSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("schedule: cancel #%d: %w", scheduleID, err)
	}

	log.Printf("[schedule] ✓ Cancelled schedule #%d", scheduleID)
	return nil
}

// StartStop records that the crew has started the visit for a stop.
// Starting the first stop of an APPROVED schedule drives the
// APPROVED → IN_PROGRESS transition and moves the schedule's requests
// to IN_PROGRESS.
func (s *ScheduleService) StartStop(ctx context.Context, scheduleID, stopID int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if schedule.Status != model.ScheduleApproved && schedule.Status != model.ScheduleInProgress {
		return &InvalidStateError{Op: "start stop", Current: schedule.Status}
	}

	stop := findStop(schedule.Stops, stopID)
	if stop == nil {
		return ErrStopNotFound
	}
	if stop.StartedAt != nil {
		log.Printf("[schedule] Stop #%d already started; ignoring", stopID)
		return nil
	}

	next := schedule.Status
	if next == model.ScheduleApproved {
		next = model.ScheduleInProgress
	}

	if err := s.store.MarkStopStarted(ctx, scheduleID, stopID, next); err != nil {
		return fmt.Errorf("schedule: start stop #%d: %w", stopID, err)
	}

	log.Printf("[schedule] ✓ Started stop #%d on schedule #%d (schedule now %s)", stopID, scheduleID, next)
	return nil
}

// CompleteStop records that the visit for a stop is done and completes
// its exchange request. Completing the last open stop drives the
// IN_PROGRESS → COMPLETED transition.
//
// Only IN_PROGRESS schedules accept completions, and only for stops
// whose visit was started: every schedule and every request must pass
// through its in_progress state on the way to completed.
func (s *ScheduleService) CompleteStop(ctx context.Context, scheduleID, stopID int64) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if schedule.Status != model.ScheduleInProgress {
		return &InvalidStateError{Op: "complete stop", Current: schedule.Status}
	}

	stop := findStop(schedule.Stops, stopID)
	if stop == nil {
		return ErrStopNotFound
	}
	if stop.CompletedAt != nil {
		log.Printf("[schedule] Stop #%d already completed; ignoring", stopID)
		return nil
	}
	if stop.StartedAt == nil {
		return fmt.Errorf("%w: stop %d", ErrStopNotStarted, stopID)
	}

	// Determine where the schedule lands after this completion.
	remaining := 0
	for i := range schedule.Stops {
		if schedule.Stops[i].ID != stopID && schedule.Stops[i].CompletedAt == nil {
			remaining++
		}
	}

	next := model.ScheduleInProgress
	if remaining == 0 {
		next = model.ScheduleCompleted
	}

	if err := s.store.MarkStopCompleted(ctx, scheduleID, stopID, next); err != nil {
		return fmt.Errorf("schedule: complete stop #%d: %w", stopID, err)
	}

	log.Printf("[schedule] ✓ Completed stop #%d on schedule #%d (%d remaining, schedule now %s)",
		stopID, scheduleID, remaining, next)
	return nil
}

// ─── Helpers ────────────────────────────────────────────────

// validatePermutation checks that the id list is exactly the schedule's
// stop set: same length, no duplicates, no foreign ids.
func validatePermutation(stops []model.Stop, orderedStopIDs []int64) error {
	if len(orderedStopIDs) != len(stops) {
		return ErrSetMismatch
	}
	current := make(map[int64]bool, len(stops))
	for i := range stops {
		current[stops[i].ID] = true
	}
	seen := make(map[int64]bool, len(orderedStopIDs))
	for _, id := range orderedStopIDs {
		if !current[id] || seen[id] {
			return ErrSetMismatch
		}
		seen[id] = true
	}
	return nil
}

func findStop(stops []model.Stop, stopID int64) *model.Stop {
	for i := range stops {
		if stops[i].ID == stopID {
			return &stops[i]
		}
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
