package service

import (
	"testing"
	"time"

	"github.com/nvthao/greenroute/internal/model"
)

func TestScore_TierOrdering(t *testing.T) {
	scorer := NewPriorityScorer(DefaultScoringConfig())

	low := scorer.Score(model.PriorityLow, 0, model.TierStandard)
	medium := scorer.Score(model.PriorityMedium, 0, model.TierStandard)
	high := scorer.Score(model.PriorityHigh, 0, model.TierStandard)
	urgent := scorer.Score(model.PriorityUrgent, 0, model.TierStandard)

	if !(low < medium && medium < high && high < urgent) {
		t.Errorf("tier scores not strictly increasing: low=%d medium=%d high=%d urgent=%d",
			low, medium, high, urgent)
	}
}

func TestScore_MonotonicInDaysWaiting(t *testing.T) {
	scorer := NewPriorityScorer(DefaultScoringConfig())

	prev := scorer.Score(model.PriorityMedium, 0, model.TierStandard)
	for days := 1; days <= 40; days++ {
		got := scorer.Score(model.PriorityMedium, days, model.TierStandard)
		if got < prev {
			t.Errorf("score decreased at %d days: %d < %d", days, got, prev)
		}
		prev = got
	}
}

func TestScore_AgingBonusCapped(t *testing.T) {
	cfg := DefaultScoringConfig()
	scorer := NewPriorityScorer(cfg)

	base := scorer.Score(model.PriorityLow, 0, model.TierStandard)
	atCap := scorer.Score(model.PriorityLow, cfg.AgingBonusCap/cfg.AgingBonusPerDay, model.TierStandard)
	beyond := scorer.Score(model.PriorityLow, 365, model.TierStandard)

	if atCap-base != cfg.AgingBonusCap {
		t.Errorf("aging bonus at cap = %d, want %d", atCap-base, cfg.AgingBonusCap)
	}
	if beyond != atCap {
		t.Errorf("aging bonus exceeded cap: %d days scored %d, want %d", 365, beyond, atCap)
	}
}

func TestScore_CustomerTierBonus(t *testing.T) {
	cfg := DefaultScoringConfig()
	scorer := NewPriorityScorer(cfg)

	standard := scorer.Score(model.PriorityHigh, 3, model.TierStandard)
	premium := scorer.Score(model.PriorityHigh, 3, model.TierPremium)
	vip := scorer.Score(model.PriorityHigh, 3, model.TierVIP)

	if premium-standard != cfg.PreferredTierBonus {
		t.Errorf("premium bonus = %d, want %d", premium-standard, cfg.PreferredTierBonus)
	}
	if vip != premium {
		t.Errorf("vip score %d != premium score %d; both tiers get the same bonus", vip, premium)
	}
}

func TestScore_UnknownTiersFallBack(t *testing.T) {
	cfg := DefaultScoringConfig()
	scorer := NewPriorityScorer(cfg)

	if got := scorer.Score("mystery", 0, model.TierStandard); got != cfg.LowWeight {
		t.Errorf("unknown priority tier scored %d, want low weight %d", got, cfg.LowWeight)
	}
	if got := scorer.Score(model.PriorityLow, 0, "mystery"); got != cfg.LowWeight {
		t.Errorf("unknown customer tier got a bonus: %d, want %d", got, cfg.LowWeight)
	}
}

func TestScoreBacklog_SortsByScoreThenAge(t *testing.T) {
	scorer := NewPriorityScorer(DefaultScoringConfig())
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	items := []model.BacklogItem{
		{Request: model.ExchangeRequest{ID: 1, Priority: model.PriorityLow, CreatedAt: now.Add(-24 * time.Hour)}, CustomerTier: model.TierStandard},
		{Request: model.ExchangeRequest{ID: 2, Priority: model.PriorityUrgent, CreatedAt: now}, CustomerTier: model.TierStandard},
		// Same score as #4 but created earlier, so it must sort first.
		{Request: model.ExchangeRequest{ID: 3, Priority: model.PriorityHigh, CreatedAt: now.Add(-48 * time.Hour)}, CustomerTier: model.TierStandard},
		{Request: model.ExchangeRequest{ID: 4, Priority: model.PriorityHigh, CreatedAt: now.Add(-47 * time.Hour)}, CustomerTier: model.TierStandard},
	}

	scorer.ScoreBacklog(items, now)

	wantOrder := []int64{2, 3, 4, 1}
	for i, want := range wantOrder {
		if items[i].Request.ID != want {
			t.Fatalf("position %d: got request #%d, want #%d", i, items[i].Request.ID, want)
		}
	}
	for i := 1; i < len(items); i++ {
		if items[i].Score > items[i-1].Score {
			t.Errorf("backlog not sorted by score desc at %d: %d > %d", i, items[i].Score, items[i-1].Score)
		}
	}
}

func TestScoreBacklog_FillsDaysWaiting(t *testing.T) {
	scorer := NewPriorityScorer(DefaultScoringConfig())
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	items := []model.BacklogItem{
		{Request: model.ExchangeRequest{ID: 1, Priority: model.PriorityMedium, CreatedAt: now.Add(-5 * 24 * time.Hour)}},
	}
	scorer.ScoreBacklog(items, now)

	if items[0].DaysWaiting != 5 {
		t.Errorf("DaysWaiting = %d, want 5", items[0].DaysWaiting)
	}
	if items[0].Score == 0 {
		t.Errorf("score not filled in")
	}
}
