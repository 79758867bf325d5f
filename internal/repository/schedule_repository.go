// Package repository provides database access for the exchange
// scheduling system.
//
// ScheduleRepository owns every multi-record schedule mutation. Each one
// runs in a single transaction with a `SELECT ... FOR UPDATE` on the
// schedule row, so concurrent operators serialize on the schedule and a
// reader never observes a partially applied reorder.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nvthao/greenroute/internal/model"
	"github.com/nvthao/greenroute/internal/service"
)

// ScheduleRepository handles transactional schedule persistence.
type ScheduleRepository struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewScheduleRepository creates a new schedule repository. The redis
// client is used only to invalidate the backlog cache after mutations
// that change the pending-request set.
func NewScheduleRepository(pool *pgxpool.Pool, redis *redis.Client) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, redis: redis}
}

// DefaultTxTimeout is the maximum duration for a schedule transaction,
// including lock wait time.
const DefaultTxTimeout = 5 * time.Second

// ─── Scheduling candidates ──────────────────────────────────

// GetSchedulingCandidates returns the PENDING requests among the given
// ids, each joined with the customer snapshot a new stop is built from.
// Ids that are unknown or not pending are absent from the result; the
// service decides whether that is an error.
func (r *ScheduleRepository) GetSchedulingCandidates(ctx context.Context, requestIDs []int64) ([]model.SchedulingCandidate, error) {
	query := `
		SELECT er.id, er.public_ref, er.customer_id, er.plant_desc, er.quantity,
		       er.reason, er.preferred_date, er.priority, er.status, er.created_at, er.updated_at,
		       c.id, c.name, c.tier, c.lat, c.lon, c.default_visit_minutes
		FROM exchange_requests er
		JOIN customers c ON c.id = er.customer_id
		WHERE er.id = ANY($1)
		  AND er.status = 'pending'
	`
	rows, err := r.pool.Query(ctx, query, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("scheduling candidates: %w", err)
	}
	defer rows.Close()

	var out []model.SchedulingCandidate
	for rows.Next() {
		var (
			cand     model.SchedulingCandidate
			lat, lon *float64
		)
		if err := rows.Scan(
			&cand.Request.ID, &cand.Request.PublicRef, &cand.Request.CustomerID,
			&cand.Request.PlantDesc, &cand.Request.Quantity, &cand.Request.Reason,
			&cand.Request.PreferredDate, &cand.Request.Priority, &cand.Request.Status,
			&cand.Request.CreatedAt, &cand.Request.UpdatedAt,
			&cand.Customer.ID, &cand.Customer.Name, &cand.Customer.Tier,
			&lat, &lon, &cand.Customer.DefaultVisitMinutes,
		); err != nil {
			return nil, fmt.Errorf("scan scheduling candidate: %w", err)
		}
		if lat != nil && lon != nil {
			cand.Customer.Location = &model.Location{Lat: *lat, Lon: *lon}
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// HasActiveScheduleOn reports whether a non-cancelled schedule exists
// for the calendar date. Cancelled schedules are excluded so a date can
// be re-planned after cancellation.
func (r *ScheduleRepository) HasActiveScheduleOn(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM daily_schedules
			WHERE schedule_date = $1 AND status != 'cancelled'
		)
	`, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schedule date: %w", err)
	}
	return exists, nil
}

// ─── Schedule creation ──────────────────────────────────────

// InsertSchedule persists a draft schedule with its stops and flips the
// referenced requests to SCHEDULED — one transaction, so a request can
// never be simultaneously pending and referenced by a live schedule.
//
// Flow:
//  1. Re-check the one-schedule-per-date rule inside the transaction.
//  2. Insert the schedule row (fresh public uuid).
//  3. Lock the requests and verify each is still pending.
//  4. Insert the stops in the caller's order.
//  5. Flip the requests to scheduled.
func (r *ScheduleRepository) InsertSchedule(ctx context.Context, schedule *model.DailySchedule) (*model.DailySchedule, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("create schedule: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Step 1: the date must still be free (races with another operator).
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM daily_schedules
			WHERE schedule_date = $1 AND status != 'cancelled'
		)
	`, schedule.ScheduleDate).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("create schedule: check date: %w", err)
	}
	if exists {
		return nil, service.ErrDateConflict
	}

	// Step 2: insert the schedule.
	schedule.PublicRef = uuid.New()
	schedule.Status = model.ScheduleDraft
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_schedules (public_ref, schedule_date, status)
		VALUES ($1, $2, 'draft')
		RETURNING id, created_at, updated_at
	`, schedule.PublicRef, schedule.ScheduleDate).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create schedule: insert: %w", err)
	}

	// Step 3: lock the requests; all must still be pending.
	requestIDs := make([]int64, len(schedule.Stops))
	for i := range schedule.Stops {
		requestIDs[i] = schedule.Stops[i].RequestID
	}

	rows, err := tx.Query(ctx, `
		SELECT id FROM exchange_requests
		WHERE id = ANY($1) AND status = 'pending'
		FOR UPDATE
	`, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("create schedule: lock requests: %w", err)
	}
	pending := make(map[int64]bool, len(requestIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("create schedule: scan request id: %w", err)
		}
		pending[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("create schedule: lock requests: %w", err)
	}
	for _, id := range requestIDs {
		if !pending[id] {
			return nil, fmt.Errorf("%w: id %d", service.ErrRequestNotFound, id)
		}
	}

	// Step 4: insert the stops in selection order.
	for i := range schedule.Stops {
		stop := &schedule.Stops[i]
		stop.ScheduleID = schedule.ID

		var lat, lon *float64
		if stop.Location != nil {
			lat, lon = &stop.Location.Lat, &stop.Location.Lon
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO schedule_stops
				(schedule_id, customer_id, request_id, position, lat, lon, plant_count, visit_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, schedule.ID, stop.CustomerID, stop.RequestID, stop.Position,
			lat, lon, stop.PlantCount, stop.VisitMinutes,
		).Scan(&stop.ID)
		if err != nil {
			return nil, fmt.Errorf("create schedule: insert stop %d: %w", stop.Position, err)
		}
	}

	// Step 5: flip the requests to scheduled.
	_, err = tx.Exec(ctx, `
		UPDATE exchange_requests
		SET status = 'scheduled', schedule_id = $1, updated_at = now()
		WHERE id = ANY($2)
	`, schedule.ID, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("create schedule: flip requests: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create schedule: commit: %w", err)
	}

	r.invalidateBacklog(ctx)
	return schedule, nil
}

// ─── Reads ──────────────────────────────────────────────────

// GetSchedule loads a schedule with its stops ordered by position.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, scheduleID int64) (*model.DailySchedule, error) {
	s := &model.DailySchedule{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_ref, schedule_date, status, created_at, updated_at
		FROM daily_schedules
		WHERE id = $1
	`, scheduleID).Scan(&s.ID, &s.PublicRef, &s.ScheduleDate, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, service.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule %d: %w", scheduleID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, customer_id, request_id, position,
		       lat, lon, plant_count, visit_minutes, started_at, completed_at
		FROM schedule_stops
		WHERE schedule_id = $1
		ORDER BY position ASC
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule %d stops: %w", scheduleID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stop     model.Stop
			lat, lon *float64
		)
		if err := rows.Scan(
			&stop.ID, &stop.ScheduleID, &stop.CustomerID, &stop.RequestID, &stop.Position,
			&lat, &lon, &stop.PlantCount, &stop.VisitMinutes, &stop.StartedAt, &stop.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		if lat != nil && lon != nil {
			stop.Location = &model.Location{Lat: *lat, Lon: *lon}
		}
		s.Stops = append(s.Stops, stop)
	}
	return s, rows.Err()
}

// ─── Atomic reorder ─────────────────────────────────────────

// ReplaceStopOrder atomically rewrites the stop positions of a schedule
// to match the given id order (1-based). Either every stop gets its new
// position or none do.
//
// The (schedule_id, position) unique constraint is DEFERRABLE INITIALLY
// DEFERRED, so the per-stop updates inside the transaction may pass
// through transient duplicates; the constraint is checked at commit.
func (r *ScheduleRepository) ReplaceStopOrder(ctx context.Context, scheduleID int64, orderedStopIDs []int64) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reorder: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Step 1: lock the schedule row; the route must still be editable.
	var status model.ScheduleStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
	`, scheduleID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrScheduleNotFound
		}
		return fmt.Errorf("reorder: lock schedule %d: %w", scheduleID, err)
	}
	if status != model.ScheduleDraft && status != model.ScheduleApproved {
		return service.ErrStateConflict
	}

	// Step 2: the id list must be a permutation of the current stop set.
	rows, err := tx.Query(ctx, `
		SELECT id FROM schedule_stops WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("reorder: fetch stop ids: %w", err)
	}
	current := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("reorder: scan stop id: %w", err)
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reorder: fetch stop ids: %w", err)
	}

	if len(orderedStopIDs) != len(current) {
		return service.ErrSetMismatch
	}
	for _, id := range orderedStopIDs {
		if !current[id] {
			return service.ErrSetMismatch
		}
		delete(current, id)
	}

	// Step 3: rewrite every position in one batch.
	batch := &pgx.Batch{}
	for i, id := range orderedStopIDs {
		batch.Queue(`
			UPDATE schedule_stops SET position = $1
			WHERE schedule_id = $2 AND id = $3
		`, i+1, scheduleID, id)
	}
	br := tx.SendBatch(ctx, batch)
	for range orderedStopIDs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("reorder: update position: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("reorder: close batch: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE daily_schedules SET updated_at = now() WHERE id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("reorder: touch schedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reorder: commit: %w", err)
	}
	return nil
}

// ─── Lifecycle writes ───────────────────────────────────────

// UpdateScheduleStatus moves the schedule from one status to another in
// a single guarded UPDATE. ErrStateConflict when the schedule is no
// longer in `from`.
func (r *ScheduleRepository) UpdateScheduleStatus(ctx context.Context, scheduleID int64, from, to model.ScheduleStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE daily_schedules
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, scheduleID, from, to)
	if err != nil {
		return fmt.Errorf("update schedule %d status: %w", scheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM daily_schedules WHERE id = $1)`, scheduleID).Scan(&exists); err != nil {
			return fmt.Errorf("update schedule %d status: %w", scheduleID, err)
		}
		if !exists {
			return service.ErrScheduleNotFound
		}
		return service.ErrStateConflict
	}
	return nil
}

// DeleteSchedule removes a DRAFT schedule and its stops and reverts the
// contained requests to PENDING so they re-enter the backlog.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("delete schedule: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Only drafts are deletable.
	var status model.ScheduleStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
	`, scheduleID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrScheduleNotFound
		}
		return fmt.Errorf("delete schedule: lock %d: %w", scheduleID, err)
	}
	if status != model.ScheduleDraft {
		return service.ErrStateConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE exchange_requests
		SET status = 'pending', schedule_id = NULL, updated_at = now()
		WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: revert requests: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM schedule_stops WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: delete stops: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM daily_schedules WHERE id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: delete %d: %w", scheduleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("delete schedule: commit: %w", err)
	}

	r.invalidateBacklog(ctx)
	return nil
}

// CancelSchedule marks the schedule CANCELLED and reverts its
// non-completed requests to PENDING. The schedule row and stops are
// kept for audit.
func (r *ScheduleRepository) CancelSchedule(ctx context.Context, scheduleID int64) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("cancel schedule: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.ScheduleStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
	`, scheduleID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrScheduleNotFound
		}
		return fmt.Errorf("cancel schedule: lock %d: %w", scheduleID, err)
	}
	if status == model.ScheduleCompleted || status == model.ScheduleCancelled {
		return service.ErrStateConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE exchange_requests
		SET status = 'pending', schedule_id = NULL, updated_at = now()
		WHERE schedule_id = $1 AND status IN ('scheduled', 'in_progress')
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("cancel schedule: revert requests: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE daily_schedules SET status = 'cancelled', updated_at = now() WHERE id = $1
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("cancel schedule: update %d: %w", scheduleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cancel schedule: commit: %w", err)
	}

	r.invalidateBacklog(ctx)
	return nil
}

// ─── Execution tracking ─────────────────────────────────────

// MarkStopStarted records the visit start for a stop and applies the
// schedule status the service computed (IN_PROGRESS on the first
// start). Moving to IN_PROGRESS also moves the schedule's remaining
// SCHEDULED requests along with it.
func (r *ScheduleRepository) MarkStopStarted(ctx context.Context, scheduleID, stopID int64, scheduleStatus model.ScheduleStatus) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("start stop: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.ScheduleStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
	`, scheduleID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrScheduleNotFound
		}
		return fmt.Errorf("start stop: lock schedule %d: %w", scheduleID, err)
	}
	if current != model.ScheduleApproved && current != model.ScheduleInProgress {
		return service.ErrStateConflict
	}

	tag, err := tx.Exec(ctx, `
		UPDATE schedule_stops
		SET started_at = now()
		WHERE id = $1 AND schedule_id = $2 AND started_at IS NULL
	`, stopID, scheduleID)
	if err != nil {
		return fmt.Errorf("start stop: update stop %d: %w", stopID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrStopNotFound
	}

	if scheduleStatus != current {
		_, err = tx.Exec(ctx, `
			UPDATE daily_schedules SET status = $2, updated_at = now() WHERE id = $1
		`, scheduleID, scheduleStatus)
		if err != nil {
			return fmt.Errorf("start stop: update schedule %d: %w", scheduleID, err)
		}
	}
	if scheduleStatus == model.ScheduleInProgress {
		_, err = tx.Exec(ctx, `
			UPDATE exchange_requests
			SET status = 'in_progress', updated_at = now()
			WHERE schedule_id = $1 AND status = 'scheduled'
		`, scheduleID)
		if err != nil {
			return fmt.Errorf("start stop: advance requests: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("start stop: commit: %w", err)
	}
	return nil
}

// MarkStopCompleted records the visit completion, completes the stop's
// exchange request, and applies the schedule status the service
// computed (COMPLETED once the last stop is done). Only IN_PROGRESS
// schedules accept completions, and only for started stops — re-checked
// here because the service's read happened outside the transaction.
func (r *ScheduleRepository) MarkStopCompleted(ctx context.Context, scheduleID, stopID int64, scheduleStatus model.ScheduleStatus) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("complete stop: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.ScheduleStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
	`, scheduleID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrScheduleNotFound
		}
		return fmt.Errorf("complete stop: lock schedule %d: %w", scheduleID, err)
	}
	if current != model.ScheduleInProgress {
		return service.ErrStateConflict
	}

	var requestID int64
	err = tx.QueryRow(ctx, `
		UPDATE schedule_stops
		SET completed_at = now()
		WHERE id = $1 AND schedule_id = $2
		  AND completed_at IS NULL AND started_at IS NOT NULL
		RETURNING request_id
	`, stopID, scheduleID).Scan(&requestID)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish a missing stop from one that was never started.
			var started *time.Time
			checkErr := tx.QueryRow(ctx, `
				SELECT started_at FROM schedule_stops WHERE id = $1 AND schedule_id = $2
			`, stopID, scheduleID).Scan(&started)
			if checkErr == pgx.ErrNoRows {
				return service.ErrStopNotFound
			}
			if checkErr != nil {
				return fmt.Errorf("complete stop: check stop %d: %w", stopID, checkErr)
			}
			if started == nil {
				return service.ErrStopNotStarted
			}
			return service.ErrStateConflict
		}
		return fmt.Errorf("complete stop: update stop %d: %w", stopID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE exchange_requests
		SET status = 'completed', updated_at = now()
		WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("complete stop: complete request %d: %w", requestID, err)
	}

	if scheduleStatus != current {
		_, err = tx.Exec(ctx, `
			UPDATE daily_schedules SET status = $2, updated_at = now() WHERE id = $1
		`, scheduleID, scheduleStatus)
		if err != nil {
			return fmt.Errorf("complete stop: update schedule %d: %w", scheduleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("complete stop: commit: %w", err)
	}
	return nil
}

// invalidateBacklog drops the cached scored backlog after a mutation
// that changes the pending-request set. Fire-and-forget.
func (r *ScheduleRepository) invalidateBacklog(ctx context.Context) {
	if r.redis != nil {
		_ = r.redis.Del(ctx, backlogCacheKey).Err()
	}
}
