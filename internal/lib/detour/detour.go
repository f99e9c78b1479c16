// Package detour proposes alternate waypoints around a hazard zone.
package detour

import (
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

const (
	tightMultiplier = 1.5
	wideMultiplier  = 3.0
	cornerExpansion = 1.3
)

// Candidate pairs a proposed waypoint with the label reported when its
// route wins selection. Candidates live for one evaluation pass.
type Candidate struct {
	Label    string    `json:"label"`
	Waypoint geo.Point `json:"waypoint"`
}

// Candidates generates exactly eight detour waypoints for a start to end
// trip around zone: left and right perpendicular offsets through the zone
// center at 1.5x and 3.0x the zone radius, then the four corners of the
// zone's bounding box expanded by 1.3x. The order is fixed and encodes no
// priority; ranking happens downstream on hazard score and distance.
func Candidates(start, end geo.Point, zone hazard.Zone) []Candidate {
	corners := zone.Bounds.Expand(cornerExpansion).Corners()
	return []Candidate{
		{Label: "left-tight", Waypoint: geo.OffsetPoint(start, end, zone.Center, tightMultiplier, zone.RadiusMeters)},
		{Label: "right-tight", Waypoint: geo.OffsetPoint(start, end, zone.Center, -tightMultiplier, zone.RadiusMeters)},
		{Label: "left-wide", Waypoint: geo.OffsetPoint(start, end, zone.Center, wideMultiplier, zone.RadiusMeters)},
		{Label: "right-wide", Waypoint: geo.OffsetPoint(start, end, zone.Center, -wideMultiplier, zone.RadiusMeters)},
		{Label: "corner-nw", Waypoint: corners[0]},
		{Label: "corner-ne", Waypoint: corners[1]},
		{Label: "corner-se", Waypoint: corners[2]},
		{Label: "corner-sw", Waypoint: corners[3]},
	}
}
