package geo

import "math"

// BoundsOf returns the axis-aligned bounding box of points. An empty input
// yields the zero Bounds.
func BoundsOf(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{
		MinLat: points[0].Latitude,
		MaxLat: points[0].Latitude,
		MinLng: points[0].Longitude,
		MaxLng: points[0].Longitude,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MinLng = math.Min(b.MinLng, p.Longitude)
		b.MaxLng = math.Max(b.MaxLng, p.Longitude)
	}
	return b
}

// Contains reports whether p falls within the box, edges inclusive.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

// Intersects reports whether the two boxes share any area.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLng <= o.MaxLng && b.MaxLng >= o.MinLng
}

// Pad grows the box by a fixed margin in degrees on every side.
func (b Bounds) Pad(margin float64) Bounds {
	return Bounds{
		MinLat: b.MinLat - margin,
		MaxLat: b.MaxLat + margin,
		MinLng: b.MinLng - margin,
		MaxLng: b.MaxLng + margin,
	}
}

// Expand scales the box about its center. A factor of 1.3 grows each span
// by 30 percent.
func (b Bounds) Expand(factor float64) Bounds {
	c := b.Center()
	halfLat := (b.MaxLat - b.MinLat) / 2 * factor
	halfLng := (b.MaxLng - b.MinLng) / 2 * factor
	return Bounds{
		MinLat: c.Latitude - halfLat,
		MaxLat: c.Latitude + halfLat,
		MinLng: c.Longitude - halfLng,
		MaxLng: c.Longitude + halfLng,
	}
}

// Corners returns the box corners in NW, NE, SE, SW order.
func (b Bounds) Corners() [4]Point {
	return [4]Point{
		{Latitude: b.MaxLat, Longitude: b.MinLng},
		{Latitude: b.MaxLat, Longitude: b.MaxLng},
		{Latitude: b.MinLat, Longitude: b.MaxLng},
		{Latitude: b.MinLat, Longitude: b.MinLng},
	}
}

// Center returns the box midpoint.
func (b Bounds) Center() Point {
	return Point{
		Latitude:  (b.MinLat + b.MaxLat) / 2,
		Longitude: (b.MinLng + b.MaxLng) / 2,
	}
}

// Diagonal returns the great-circle length of the box diagonal in meters.
func (b Bounds) Diagonal() float64 {
	return Haversine(
		Point{Latitude: b.MinLat, Longitude: b.MinLng},
		Point{Latitude: b.MaxLat, Longitude: b.MaxLng},
	)
}

// Polygon returns the box outline as a four-vertex polygon. The vertices
// follow Corners order and rely on implicit closure.
func (b Bounds) Polygon() []Point {
	c := b.Corners()
	return c[:]
}
