package service

import (
	"testing"

	"github.com/nvthao/greenroute/internal/model"
)

// District 12 depot used across the optimizer tests.
var testDepot = model.Location{Lat: 10.8633, Lon: 106.6544}

func loc(lat, lon float64) *model.Location {
	return &model.Location{Lat: lat, Lon: lon}
}

func stopIDs(stops []model.Stop) []int64 {
	ids := make([]int64, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	return ids
}

func TestOptimize_FewerThanTwoStops(t *testing.T) {
	opt := NewRouteOptimizer(0)

	if got := opt.Optimize(nil, testDepot); len(got) != 0 {
		t.Errorf("Optimize(nil) returned %d stops, want 0", len(got))
	}

	one := []model.Stop{{ID: 1, Location: loc(10.78, 106.70)}}
	got := opt.Optimize(one, testDepot)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Optimize(1 stop) = %v, want the same single stop", stopIDs(got))
	}
}

func TestOptimize_PreservesStopSet(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1, Location: loc(10.78, 106.70)},
		{ID: 2, Location: loc(10.80, 106.65)},
		{ID: 3, Location: loc(10.75, 106.68)},
		{ID: 4, Location: loc(10.82, 106.63)},
		{ID: 5}, // no coordinates
	}

	got := opt.Optimize(stops, testDepot)

	if len(got) != len(stops) {
		t.Fatalf("Optimize changed stop count: got %d, want %d", len(got), len(stops))
	}
	seen := make(map[int64]bool)
	for _, s := range got {
		if seen[s.ID] {
			t.Fatalf("stop #%d duplicated in output", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range stops {
		if !seen[s.ID] {
			t.Errorf("stop #%d dropped from output", s.ID)
		}
	}
}

func TestOptimize_ImprovesDeliberatelyBadOrder(t *testing.T) {
	opt := NewRouteOptimizer(0)

	// Four stops laid south to north; the input zig-zags between the
	// extremes so any sane optimizer must shorten the route.
	bad := []model.Stop{
		{ID: 1, Location: loc(10.76, 106.66)},
		{ID: 2, Location: loc(10.94, 106.66)},
		{ID: 3, Location: loc(10.78, 106.66)},
		{ID: 4, Location: loc(10.92, 106.66)},
	}

	before := opt.RouteDistanceKm(bad, testDepot)
	optimized := opt.Optimize(bad, testDepot)
	after := opt.RouteDistanceKm(optimized, testDepot)

	if after >= before {
		t.Errorf("optimized distance %.3f km >= original %.3f km", after, before)
	}
}

func TestOptimize_NeverWorseThanNearestNeighbor(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1, Location: loc(10.78, 106.70)},
		{ID: 2, Location: loc(10.85, 106.62)},
		{ID: 3, Location: loc(10.75, 106.68)},
		{ID: 4, Location: loc(10.90, 106.60)},
		{ID: 5, Location: loc(10.80, 106.71)},
	}

	nn := nearestNeighbor(stops, testDepot)
	nnDist := opt.RouteDistanceKm(nn, testDepot)

	optimized := opt.Optimize(stops, testDepot)
	optDist := opt.RouteDistanceKm(optimized, testDepot)

	if optDist > nnDist {
		t.Errorf("2-opt result %.3f km worse than nearest-neighbor %.3f km", optDist, nnDist)
	}
}

func TestOptimize_UnlocatedStopsAppendedLast(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1}, // no coordinates, first in input
		{ID: 2, Location: loc(10.78, 106.70)},
		{ID: 3}, // no coordinates
		{ID: 4, Location: loc(10.85, 106.62)},
	}

	got := opt.Optimize(stops, testDepot)

	if len(got) != 4 {
		t.Fatalf("got %d stops, want 4", len(got))
	}
	// Last two must be the unlocated stops, in input order.
	if got[2].ID != 1 || got[3].ID != 3 {
		t.Errorf("unlocated stops not appended last in input order: got %v", stopIDs(got))
	}
	for _, s := range got[:2] {
		if s.Location == nil {
			t.Errorf("stop #%d without coordinates ordered before geolocated stops", s.ID)
		}
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1, Location: loc(10.78, 106.70)},
		{ID: 2, Location: loc(10.85, 106.62)},
		{ID: 3, Location: loc(10.75, 106.68)},
		{ID: 4, Location: loc(10.90, 106.60)},
	}

	first := stopIDs(opt.Optimize(stops, testDepot))
	for run := 0; run < 5; run++ {
		again := stopIDs(opt.Optimize(stops, testDepot))
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("run %d produced a different order: %v vs %v", run, again, first)
			}
		}
	}
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1, Location: loc(10.94, 106.66)},
		{ID: 2, Location: loc(10.76, 106.66)},
		{ID: 3, Location: loc(10.90, 106.66)},
	}
	want := stopIDs(stops)

	opt.Optimize(stops, testDepot)

	for i, s := range stops {
		if s.ID != want[i] {
			t.Fatalf("input slice mutated: got %v, want %v", stopIDs(stops), want)
		}
	}
}

func TestOptimize_IdempotentOnOptimalRoute(t *testing.T) {
	opt := NewRouteOptimizer(0)
	stops := []model.Stop{
		{ID: 1, Location: loc(10.76, 106.66)},
		{ID: 2, Location: loc(10.78, 106.66)},
		{ID: 3, Location: loc(10.92, 106.66)},
		{ID: 4, Location: loc(10.94, 106.66)},
	}

	once := opt.Optimize(stops, testDepot)
	twice := opt.Optimize(once, testDepot)

	// Re-running on an already-optimal route changes nothing: same
	// order, same distance.
	onceIDs, twiceIDs := stopIDs(once), stopIDs(twice)
	for i := range onceIDs {
		if twiceIDs[i] != onceIDs[i] {
			t.Fatalf("re-optimizing changed the order: %v → %v", onceIDs, twiceIDs)
		}
	}
	d1 := opt.RouteDistanceKm(once, testDepot)
	d2 := opt.RouteDistanceKm(twice, testDepot)
	if d2 != d1 {
		t.Errorf("re-optimizing changed the distance: %.6f km → %.6f km", d1, d2)
	}
}

func TestReverseSegment(t *testing.T) {
	stops := []model.Stop{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	got := reverseSegment(stops, 1, 3)
	want := []int64{1, 4, 3, 2, 5}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("reverseSegment = %v, want %v", stopIDs(got), want)
		}
	}
	// Original untouched.
	for i, id := range []int64{1, 2, 3, 4, 5} {
		if stops[i].ID != id {
			t.Fatalf("reverseSegment mutated its input: %v", stopIDs(stops))
		}
	}
}
