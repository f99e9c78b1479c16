package hazard

import "github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"

// BoundsMargin is the degree padding applied around a zone's bounding box
// before the exact polygon test in RouteIntersects. It buys a cheap filter
// at the cost of a few false-positive candidate points, never a false
// negative.
const BoundsMargin = 0.001

// Score counts the route sample points that fall inside any zone. Zones
// whose bounding box is disjoint from the route's are rejected before any
// polygon test. A point counts at most once even when it sits inside
// several overlapping zones.
func Score(path []geo.Point, zones []Zone) int {
	if len(path) == 0 || len(zones) == 0 {
		return 0
	}

	routeBounds := geo.BoundsOf(path)
	nearby := make([]Zone, 0, len(zones))
	for _, z := range zones {
		if routeBounds.Intersects(z.Bounds) {
			nearby = append(nearby, z)
		}
	}
	if len(nearby) == 0 {
		return 0
	}

	score := 0
	for _, p := range path {
		for i := range nearby {
			if !nearby[i].Bounds.Contains(p) {
				continue
			}
			if geo.PointInPolygon(p, nearby[i].Polygon) {
				score++
				break
			}
		}
	}
	return score
}

// RouteIntersects reports whether any route point lands inside the zone.
// It is the zero/non-zero special case of Score used by the live monitor,
// with the zone box padded by BoundsMargin before exact tests.
func RouteIntersects(path []geo.Point, zone Zone) bool {
	padded := zone.Bounds.Pad(BoundsMargin)
	for _, p := range path {
		if !padded.Contains(p) {
			continue
		}
		if geo.PointInPolygon(p, zone.Polygon) {
			return true
		}
	}
	return false
}

// IntersectingZones returns the subset of zones the route actually crosses,
// preserving input order.
func IntersectingZones(path []geo.Point, zones []Zone) []Zone {
	var hit []Zone
	for _, z := range zones {
		if RouteIntersects(path, z) {
			hit = append(hit, z)
		}
	}
	return hit
}
