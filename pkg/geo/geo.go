// Package geo provides geographic utility functions for route planning.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Travel time is estimated using a constant average speed — good enough for
// ordering a single daily route. In production, swap with OSRM or a maps API.
package geo

import (
	"math"

	"github.com/nvthao/greenroute/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is the assumed average delivery-van speed.
	AverageSpeedKmph = 35.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b model.Location) float64 {
	return HaversineKm(a, b) * 1000.0
}

// ─── Route Calculations ─────────────────────────────────────

// RouteDistanceKm returns the total distance of an ordered route in
// kilometers, starting from the depot: depot → stop 1 → … → stop N.
// Points without coordinates must be filtered out by the caller.
//
// Complexity: O(S) where S = number of stops.
func RouteDistanceKm(depot model.Location, stops []model.Location) float64 {
	total := 0.0
	prev := depot
	for _, s := range stops {
		total += HaversineKm(prev, s)
		prev = s
	}
	return total
}

// EstimateTravelMinutes returns the estimated direct travel time between
// two points in minutes, assuming AverageSpeedKmph.
//
// Complexity: O(1)
func EstimateTravelMinutes(a, b model.Location) float64 {
	return (HaversineKm(a, b) / AverageSpeedKmph) * 60.0
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
