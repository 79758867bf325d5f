package service

import (
	"github.com/nvthao/greenroute/internal/model"
	"github.com/nvthao/greenroute/pkg/geo"
)

// ─── RouteOptimizer ─────────────────────────────────────────

// DefaultOptMaxIterations bounds the 2-opt improvement pass. Each
// iteration is a full sweep over all segment reversals; the pass also
// stops early once no reversal improves the route.
const DefaultOptMaxIterations = 50

// improveEpsilonKm guards against float jitter: a reversal must shorten
// the route by more than this to be accepted.
const improveEpsilonKm = 1e-9

// RouteOptimizer orders a schedule's stops to minimize total travel
// distance from the depot, using nearest-neighbor construction followed
// by a bounded 2-opt local search.
//
// The optimizer is a pure function over its input: it never mutates the
// given slice, and for a fixed depot and stop set the output order is
// deterministic (ties broken by input order). Stops without coordinates
// are placed after all geolocated stops, in input order, so missing
// geodata never blocks optimization.
type RouteOptimizer struct {
	maxIterations int
}

// NewRouteOptimizer creates an optimizer with the given 2-opt iteration
// cap. Non-positive caps fall back to DefaultOptMaxIterations.
func NewRouteOptimizer(maxIterations int) *RouteOptimizer {
	if maxIterations <= 0 {
		maxIterations = DefaultOptMaxIterations
	}
	return &RouteOptimizer{maxIterations: maxIterations}
}

// Optimize returns the stops reordered for minimal route distance.
// Fewer than 2 stops is a no-op (a copy of the input is returned).
//
// Algorithm:
//  1. Split geolocated stops from stops without coordinates.
//  2. Nearest-neighbor: starting at the depot, repeatedly visit the
//     closest unvisited geolocated stop.
//  3. 2-opt: repeatedly reverse route segments, keeping a reversal only
//     if it strictly shortens the route; stop when a sweep finds no
//     improvement or the iteration cap is hit.
//  4. Append the non-geolocated stops last, in input order.
//
// The 2-opt pass only ever accepts improvements, so the final distance
// is ≤ the nearest-neighbor distance.
func (o *RouteOptimizer) Optimize(stops []model.Stop, depot model.Location) []model.Stop {
	if len(stops) < 2 {
		return append([]model.Stop(nil), stops...)
	}

	var located, unlocated []model.Stop
	for _, s := range stops {
		if s.Location != nil {
			located = append(located, s)
		} else {
			unlocated = append(unlocated, s)
		}
	}

	ordered := nearestNeighbor(located, depot)
	ordered = o.twoOpt(ordered, depot)

	return append(ordered, unlocated...)
}

// RouteDistanceKm returns the total travel distance of the given stop
// order starting from the depot, skipping stops without coordinates.
func (o *RouteOptimizer) RouteDistanceKm(stops []model.Stop, depot model.Location) float64 {
	return routeKm(stops, depot)
}

// nearestNeighbor builds an initial order by always visiting the closest
// unvisited stop. Ties keep the earliest stop in input order (strict <
// comparison while scanning forward).
func nearestNeighbor(stops []model.Stop, depot model.Location) []model.Stop {
	if len(stops) < 2 {
		return append([]model.Stop(nil), stops...)
	}

	remaining := append([]model.Stop(nil), stops...)
	ordered := make([]model.Stop, 0, len(stops))
	pos := depot

	for len(remaining) > 0 {
		best := 0
		bestDist := geo.HaversineKm(pos, *remaining[0].Location)
		for i := 1; i < len(remaining); i++ {
			if d := geo.HaversineKm(pos, *remaining[i].Location); d < bestDist {
				best = i
				bestDist = d
			}
		}
		next := remaining[best]
		ordered = append(ordered, next)
		pos = *next.Location
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return ordered
}

// twoOpt improves the order by segment reversal until no strictly
// improving reversal exists or maxIterations sweeps have run.
func (o *RouteOptimizer) twoOpt(stops []model.Stop, depot model.Location) []model.Stop {
	n := len(stops)
	if n < 3 {
		return stops
	}

	best := stops
	bestDist := routeKm(best, depot)

	for it := 0; it < o.maxIterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				candidate := reverseSegment(best, i, k)
				if d := routeKm(candidate, depot); d+improveEpsilonKm < bestDist {
					best = candidate
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	return best
}

// reverseSegment returns a copy of the order with stops[i..k] reversed.
func reverseSegment(stops []model.Stop, i, k int) []model.Stop {
	out := make([]model.Stop, len(stops))
	copy(out, stops[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = stops[j]
		pos++
	}
	copy(out[pos:], stops[k+1:])
	return out
}

func routeKm(stops []model.Stop, depot model.Location) float64 {
	route := make([]model.Location, 0, len(stops))
	for _, s := range stops {
		if s.Location != nil {
			route = append(route, *s.Location)
		}
	}
	return geo.RouteDistanceKm(depot, route)
}
