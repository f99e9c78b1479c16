// Package hazard holds the flood zone model, the live zone registry, and
// the route scoring rules built on it.
package hazard

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// Kind classifies how a zone came to exist.
type Kind string

const (
	// KindManualPolygon is a zone drawn point by point by the user.
	KindManualPolygon Kind = "manual_polygon"
	// KindGeocodedArea is a zone built from a geocoder's area geometry.
	KindGeocodedArea Kind = "geocoded_area"
	// KindCircularRisk is a synthesized circle, used by feed ingestion and
	// the simulation spawner.
	KindCircularRisk Kind = "circular_risk"
)

// circleSegments is the vertex count used when synthesizing a circular
// zone's polygon.
const circleSegments = 24

// MinMergedRadius is the floor applied to a merged planning zone's radius
// so detour offsets clear even tiny hazards.
const MinMergedRadius = 500.0

// Zone is one area to avoid. Zones are immutable after creation; the Set
// only ever adds or removes them.
type Zone struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Kind         Kind        `json:"kind"`
	Polygon      []geo.Point `json:"polygon"`
	Center       geo.Point   `json:"center"`
	RadiusMeters float64     `json:"radius_meters"`
	Bounds       geo.Bounds  `json:"bounds"`
	Source       string      `json:"source,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewPolygonZone builds a zone from an ordered vertex list. The polygon is
// implicitly closed; an explicitly repeated closing vertex (common in
// GeoJSON and KML rings) is dropped. The center is the bounding box
// midpoint and the radius is the distance to the farthest vertex.
func NewPolygonZone(name string, kind Kind, polygon []geo.Point) (Zone, error) {
	if len(polygon) > 3 && polygon[0] == polygon[len(polygon)-1] {
		polygon = polygon[:len(polygon)-1]
	}
	if len(polygon) < 3 {
		return Zone{}, errors.New("zone polygon requires at least 3 vertices")
	}
	for i, p := range polygon {
		if !p.Valid() {
			return Zone{}, fmt.Errorf("zone polygon vertex %d is not a valid coordinate", i)
		}
	}

	bounds := geo.BoundsOf(polygon)
	center := bounds.Center()
	radius := 0.0
	for _, p := range polygon {
		radius = math.Max(radius, geo.Haversine(center, p))
	}

	return Zone{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         kind,
		Polygon:      append([]geo.Point(nil), polygon...),
		Center:       center,
		RadiusMeters: radius,
		Bounds:       bounds,
		CreatedAt:    time.Now(),
	}, nil
}

// NewCircularZone builds a circular_risk zone as a regular polygon around
// center.
func NewCircularZone(name string, center geo.Point, radiusMeters float64) (Zone, error) {
	if !center.Valid() {
		return Zone{}, errors.New("zone center is not a valid coordinate")
	}
	if radiusMeters <= 0 {
		return Zone{}, errors.New("zone radius must be positive")
	}

	polygon := circlePolygon(center, radiusMeters, circleSegments)
	return Zone{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         KindCircularRisk,
		Polygon:      polygon,
		Center:       center,
		RadiusMeters: radiusMeters,
		Bounds:       geo.BoundsOf(polygon),
		CreatedAt:    time.Now(),
	}, nil
}

// Merge collapses intersecting zones into one planning hazard covering
// their union bounding box, with a synthetic rectangular polygon and a
// radius of half the box diagonal (floored at MinMergedRadius). The result
// only seeds detour generation and never enters the live set or scoring.
func Merge(zones []Zone) Zone {
	if len(zones) == 0 {
		return Zone{}
	}

	union := zones[0].Bounds
	for _, z := range zones[1:] {
		union.MinLat = math.Min(union.MinLat, z.Bounds.MinLat)
		union.MaxLat = math.Max(union.MaxLat, z.Bounds.MaxLat)
		union.MinLng = math.Min(union.MinLng, z.Bounds.MinLng)
		union.MaxLng = math.Max(union.MaxLng, z.Bounds.MaxLng)
	}

	return Zone{
		Name:         "merged hazard area",
		Kind:         zones[0].Kind,
		Polygon:      union.Polygon(),
		Center:       union.Center(),
		RadiusMeters: math.Max(union.Diagonal()/2, MinMergedRadius),
		Bounds:       union,
		Source:       "merge",
		CreatedAt:    time.Now(),
	}
}

func circlePolygon(center geo.Point, radiusMeters float64, segments int) []geo.Point {
	rLat := radiusMeters / geo.MetersPerDegree
	rLng := rLat / math.Cos(center.Latitude*math.Pi/180)

	points := make([]geo.Point, 0, segments)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		points = append(points, geo.Point{
			Latitude:  center.Latitude + rLat*math.Sin(theta),
			Longitude: center.Longitude + rLng*math.Cos(theta),
		})
	}
	return points
}
