package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nvthao/greenroute/internal/model"
	"github.com/nvthao/greenroute/internal/service"
)

// ─── Backlog cache ──────────────────────────────────────────

const (
	// backlogCacheKey holds the JSON-encoded pending backlog rows.
	// Scores are NOT cached — they depend on wall-clock wait time.
	backlogCacheKey = "backlog:pending"

	// backlogCacheTTL keeps the cache short-lived so intake from other
	// app instances shows up quickly even without invalidation.
	backlogCacheTTL = 30 * time.Second
)

// ErrNotCancellable is returned when a request's state, or the state of
// the schedule it sits on, does not allow cancellation.
var ErrNotCancellable = errors.New("request is not in a cancellable state")

// RequestRepository handles exchange request intake and the pending
// backlog read path (Redis cache-aside over PostgreSQL).
type RequestRepository struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(pool *pgxpool.Pool, redis *redis.Client) *RequestRepository {
	return &RequestRepository{pool: pool, redis: redis}
}

// CreateRequest inserts a new pending exchange request.
// Quantity must be positive (matches the DB CHECK).
func (r *RequestRepository) CreateRequest(ctx context.Context, req *model.ExchangeRequest) (*model.ExchangeRequest, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("create request: quantity must be positive, got %d", req.Quantity)
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}

	req.PublicRef = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO exchange_requests
			(public_ref, customer_id, plant_desc, quantity, reason, preferred_date, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id, created_at, updated_at
	`, req.PublicRef, req.CustomerID, req.PlantDesc, req.Quantity,
		req.Reason, req.PreferredDate, req.Priority,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Status = model.RequestPending
	r.invalidateBacklog(ctx)
	return req, nil
}

// GetRequestByID fetches a single exchange request.
func (r *RequestRepository) GetRequestByID(ctx context.Context, id int64) (*model.ExchangeRequest, error) {
	req := &model.ExchangeRequest{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_ref, customer_id, plant_desc, quantity, reason,
		       preferred_date, priority, status, schedule_id, created_at, updated_at
		FROM exchange_requests
		WHERE id = $1
	`, id).Scan(
		&req.ID, &req.PublicRef, &req.CustomerID, &req.PlantDesc, &req.Quantity,
		&req.Reason, &req.PreferredDate, &req.Priority, &req.Status,
		&req.ScheduleID, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, service.ErrRequestNotFound
		}
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	return req, nil
}

// CancelRequest cancels a single exchange request.
//
// State handling:
//   - PENDING   → cancelled. No schedule impact.
//   - SCHEDULED → only while its schedule is still DRAFT: the stop is
//     removed, remaining stop positions are renumbered contiguously,
//     and the request is cancelled. Later states are rejected — pull a
//     request out of an approved route by cancelling the schedule.
//   - anything else → rejected.
//
// Concurrency: locks the request row, and the schedule row when one is
// attached, inside a single transaction.
func (r *RequestRepository) CancelRequest(ctx context.Context, requestID int64) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("cancel request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Step 1: lock the request.
	var (
		status     model.RequestStatus
		scheduleID *int64
	)
	err = tx.QueryRow(ctx, `
		SELECT status, schedule_id FROM exchange_requests WHERE id = $1 FOR UPDATE
	`, requestID).Scan(&status, &scheduleID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return service.ErrRequestNotFound
		}
		return fmt.Errorf("cancel request: lock %d: %w", requestID, err)
	}

	switch status {
	case model.RequestPending:
		// No schedule involvement; plain status flip below.
	case model.RequestScheduled:
		// Step 2: lock the schedule; draft only.
		var schedStatus model.ScheduleStatus
		err = tx.QueryRow(ctx, `
			SELECT status FROM daily_schedules WHERE id = $1 FOR UPDATE
		`, *scheduleID).Scan(&schedStatus)
		if err != nil {
			return fmt.Errorf("cancel request: lock schedule %d: %w", *scheduleID, err)
		}
		if schedStatus != model.ScheduleDraft {
			return fmt.Errorf("%w: request %d is on a %s schedule", ErrNotCancellable, requestID, schedStatus)
		}

		// Step 3: remove the stop and close the position gap.
		var removedPos int
		err = tx.QueryRow(ctx, `
			DELETE FROM schedule_stops
			WHERE schedule_id = $1 AND request_id = $2
			RETURNING position
		`, *scheduleID, requestID).Scan(&removedPos)
		if err != nil {
			return fmt.Errorf("cancel request: remove stop: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE schedule_stops
			SET position = position - 1
			WHERE schedule_id = $1 AND position > $2
		`, *scheduleID, removedPos)
		if err != nil {
			return fmt.Errorf("cancel request: renumber stops: %w", err)
		}
	default:
		return fmt.Errorf("%w: request %d has status '%s'", ErrNotCancellable, requestID, status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE exchange_requests
		SET status = 'cancelled', schedule_id = NULL, updated_at = now()
		WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("cancel request: update %d: %w", requestID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cancel request: commit: %w", err)
	}

	r.invalidateBacklog(ctx)
	return nil
}

// ─── Backlog read path ──────────────────────────────────────

// ListPendingBacklog returns all pending requests joined with their
// customer name and tier, oldest first.
//
// Strategy:
//  1. Try Redis (fast path, <1ms).
//  2. On miss, query PostgreSQL and cache the rows for 30s.
func (r *RequestRepository) ListPendingBacklog(ctx context.Context) ([]model.BacklogItem, error) {
	if r.redis != nil {
		if raw, err := r.redis.Get(ctx, backlogCacheKey).Bytes(); err == nil {
			var items []model.BacklogItem
			if json.Unmarshal(raw, &items) == nil {
				return items, nil
			}
			// Corrupt cache entry: fall through to the DB and rewrite it.
		}
	}

	items, err := r.queryPendingBacklog(ctx)
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if raw, err := json.Marshal(items); err == nil {
			// Fire-and-forget; a failed cache write is not an error.
			_ = r.redis.Set(ctx, backlogCacheKey, raw, backlogCacheTTL).Err()
		}
	}

	return items, nil
}

func (r *RequestRepository) queryPendingBacklog(ctx context.Context) ([]model.BacklogItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT er.id, er.public_ref, er.customer_id, er.plant_desc, er.quantity,
		       er.reason, er.preferred_date, er.priority, er.status, er.created_at, er.updated_at,
		       c.name, c.tier
		FROM exchange_requests er
		JOIN customers c ON c.id = er.customer_id
		WHERE er.status = 'pending'
		ORDER BY er.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending backlog: %w", err)
	}
	defer rows.Close()

	items := []model.BacklogItem{}
	for rows.Next() {
		var item model.BacklogItem
		if err := rows.Scan(
			&item.Request.ID, &item.Request.PublicRef, &item.Request.CustomerID,
			&item.Request.PlantDesc, &item.Request.Quantity, &item.Request.Reason,
			&item.Request.PreferredDate, &item.Request.Priority, &item.Request.Status,
			&item.Request.CreatedAt, &item.Request.UpdatedAt,
			&item.CustomerName, &item.CustomerTier,
		); err != nil {
			return nil, fmt.Errorf("scan backlog item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// invalidateBacklog drops the cached backlog after a mutation.
func (r *RequestRepository) invalidateBacklog(ctx context.Context) {
	if r.redis != nil {
		_ = r.redis.Del(ctx, backlogCacheKey).Err()
	}
}
