package service

import (
	"sort"
	"time"

	"github.com/nvthao/greenroute/internal/model"
)

// ─── Scoring Configuration ──────────────────────────────────

// ScoringConfig holds the priority scoring coefficients.
// In production, these would come from a config file or database.
type ScoringConfig struct {
	UrgentWeight int // Base weight for urgent requests.
	HighWeight   int // Base weight for high requests.
	MediumWeight int // Base weight for medium requests.
	LowWeight    int // Base weight for low requests.

	AgingBonusPerDay int // Added per day the request has waited.
	AgingBonusCap    int // Ceiling on the aging bonus.

	PreferredTierBonus int // Added for premium/vip customers.
}

// DefaultScoringConfig returns the scoring defaults used by the backlog.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		UrgentWeight:       100,
		HighWeight:         70,
		MediumWeight:       40,
		LowWeight:          10,
		AgingBonusPerDay:   2,
		AgingBonusCap:      30,
		PreferredTierBonus: 10,
	}
}

// ─── PriorityScorer ─────────────────────────────────────────

// PriorityScorer converts a request's priority tier, wait time, and
// customer tier into a numeric score used for sorting and highlighting
// the backlog. The score never drives hard scheduling constraints.
//
// Properties:
//   - Monotonically non-decreasing in days waited (bonus capped).
//   - Monotonically non-decreasing in tier rank (low < medium < high < urgent).
type PriorityScorer struct {
	config ScoringConfig
}

// NewPriorityScorer creates a scorer with the given config.
func NewPriorityScorer(config ScoringConfig) *PriorityScorer {
	return &PriorityScorer{config: config}
}

// Score computes the priority score for a single request.
//
//	score = tierWeight + min(daysWaiting × perDay, cap) + customerBonus
//
// Unknown priority tiers score as low; unknown customer tiers get no bonus.
func (p *PriorityScorer) Score(tier model.RequestPriority, daysWaiting int, customerTier model.CustomerTier) int {
	score := p.tierWeight(tier)

	if daysWaiting > 0 {
		aging := daysWaiting * p.config.AgingBonusPerDay
		if aging > p.config.AgingBonusCap {
			aging = p.config.AgingBonusCap
		}
		score += aging
	}

	if customerTier == model.TierPremium || customerTier == model.TierVIP {
		score += p.config.PreferredTierBonus
	}

	return score
}

// ScoreBacklog fills in DaysWaiting and Score for each item and sorts
// the backlog by score descending, ties broken by creation time (oldest
// first) so the ordering is stable across calls.
func (p *PriorityScorer) ScoreBacklog(items []model.BacklogItem, now time.Time) {
	for i := range items {
		items[i].DaysWaiting = items[i].Request.DaysWaiting(now)
		items[i].Score = p.Score(items[i].Request.Priority, items[i].DaysWaiting, items[i].CustomerTier)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Request.CreatedAt.Before(items[j].Request.CreatedAt)
	})
}

func (p *PriorityScorer) tierWeight(tier model.RequestPriority) int {
	switch tier {
	case model.PriorityUrgent:
		return p.config.UrgentWeight
	case model.PriorityHigh:
		return p.config.HighWeight
	case model.PriorityMedium:
		return p.config.MediumWeight
	default:
		return p.config.LowWeight
	}
}
