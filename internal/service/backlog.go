package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nvthao/greenroute/internal/model"
)

// BacklogStore lists the pending exchange requests joined with their
// customer tier. Implementations may serve from a short-lived cache.
type BacklogStore interface {
	ListPendingBacklog(ctx context.Context) ([]model.BacklogItem, error)
}

// BacklogService produces the scored pending-request backlog the
// operator selects from when building a daily schedule.
//
// Scores are computed fresh on every call (they depend on wall-clock
// wait time); only the underlying rows are cache-eligible.
type BacklogService struct {
	store  BacklogStore
	scorer *PriorityScorer
	now    func() time.Time
}

// NewBacklogService creates a backlog service.
func NewBacklogService(store BacklogStore, scorer *PriorityScorer) *BacklogService {
	return &BacklogService{store: store, scorer: scorer, now: time.Now}
}

// ScoredBacklog returns all pending requests scored and sorted by
// urgency (highest first, ties oldest first).
func (s *BacklogService) ScoredBacklog(ctx context.Context) ([]model.BacklogItem, error) {
	items, err := s.store.ListPendingBacklog(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlog: list pending: %w", err)
	}

	s.scorer.ScoreBacklog(items, s.now())

	log.Printf("[backlog] %d pending requests scored", len(items))
	return items, nil
}
