// Package routing defines the route model shared by the provider client,
// the planner, and the navigation session.
package routing

import (
	"math"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// Maneuver describes the turn opening a step.
type Maneuver struct {
	Type          string    `json:"type"`
	Modifier      string    `json:"modifier,omitempty"`
	BearingBefore float64   `json:"bearing_before"`
	BearingAfter  float64   `json:"bearing_after"`
	Location      geo.Point `json:"location"`
}

// Step is one maneuver leg of a route. Immutable once built.
type Step struct {
	Name     string      `json:"name"`
	Distance float64     `json:"distance_meters"`
	Duration float64     `json:"duration_seconds"`
	Geometry []geo.Point `json:"geometry,omitempty"`
	Maneuver Maneuver    `json:"maneuver"`
}

// Route is a provider response normalized into engine coordinates. The
// planner produces routes atomically; the active route is only ever
// replaced wholesale, never mutated.
type Route struct {
	Coordinates   []geo.Point `json:"coordinates"`
	TotalDistance float64     `json:"total_distance_meters"`
	TotalDuration float64     `json:"total_duration_seconds"`
	Steps         []Step      `json:"steps"`
	Bounds        geo.Bounds  `json:"bounds"`
	// SegmentSpeeds carries per-segment speeds in km/h when the provider
	// annotates them; zero means unknown.
	SegmentSpeeds []float64 `json:"segment_speeds,omitempty"`
}

// Evaluation ranks one fetched route during candidate selection.
type Evaluation struct {
	Route       *Route `json:"route"`
	HazardScore int    `json:"hazard_score"`
	DetourLabel string `json:"detour_label,omitempty"`
}

// DistanceFrom returns the polyline length from coordinate index i to the
// end of the route.
func (r *Route) DistanceFrom(i int) float64 {
	if r == nil || i < 0 || i >= len(r.Coordinates) {
		return 0
	}
	return geo.PathLength(r.Coordinates[i:])
}

// NearestIndex returns the index of the route coordinate closest to p.
func (r *Route) NearestIndex(p geo.Point) int {
	if r == nil {
		return 0
	}
	best, bestDist := 0, math.Inf(1)
	for i, c := range r.Coordinates {
		if d := geo.Haversine(p, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// StepAt maps meters progressed along the route to the index of the step
// underway.
func (r *Route) StepAt(progressed float64) int {
	if r == nil || len(r.Steps) == 0 {
		return 0
	}
	acc := 0.0
	for i, s := range r.Steps {
		acc += s.Distance
		if progressed < acc {
			return i
		}
	}
	return len(r.Steps) - 1
}

// SpeedAt returns the km/h speed annotation for the segment starting at
// coordinate index i, or 0 when unknown.
func (r *Route) SpeedAt(i int) float64 {
	if r == nil || i < 0 || i >= len(r.SegmentSpeeds) {
		return 0
	}
	return r.SegmentSpeeds[i]
}
