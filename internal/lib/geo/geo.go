package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-polyline"
)

const (
	// EarthRadius is the mean Earth radius in meters.
	EarthRadius = 6371000.0

	// MetersPerDegree converts small offsets between meters and degrees
	// (one degree of latitude is roughly 111.1 km).
	MetersPerDegree = 111111.0
)

// Haversine calculates the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		return 0
	}

	lat1 := a.Latitude * math.Pi / 180
	lon1 := a.Longitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lon2 := b.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

// Bearing calculates the initial compass bearing from a to b in degrees,
// normalized to [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dlon := (b.Longitude - a.Longitude) * math.Pi / 180

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// PointInPolygon reports whether p lies inside polygon using an even-odd
// ray cast. The polygon is treated as implicitly closed (the last vertex
// connects back to the first). The result for points exactly on an edge is
// deterministic but unspecified.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		vi, vj := polygon[i], polygon[j]
		if (vi.Latitude > p.Latitude) != (vj.Latitude > p.Latitude) &&
			p.Longitude < (vj.Longitude-vi.Longitude)*(p.Latitude-vi.Latitude)/(vj.Latitude-vi.Latitude)+vi.Longitude {
			inside = !inside
		}
	}
	return inside
}

// OffsetPoint displaces center perpendicular to the start->end direction by
// multiplier times radiusMeters, converted to degrees via MetersPerDegree.
// A positive multiplier offsets to the left of the direction of travel,
// a negative one to the right. Degenerate input (start == end) returns
// center unchanged.
func OffsetPoint(start, end, center Point, multiplier, radiusMeters float64) Point {
	dlat := end.Latitude - start.Latitude
	dlng := end.Longitude - start.Longitude

	norm := math.Sqrt(dlat*dlat + dlng*dlng)
	if norm == 0 {
		return center
	}

	offsetDeg := multiplier * radiusMeters / MetersPerDegree
	return Point{
		Latitude:  center.Latitude + (dlng/norm)*offsetDeg,
		Longitude: center.Longitude + (-dlat/norm)*offsetDeg,
	}
}

// Interpolate returns the point a fraction t of the way from start to end.
// Linear interpolation provides adequate accuracy for road-scale segments.
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// PathLength returns the cumulative haversine length of a polyline in meters.
func PathLength(points []Point) float64 {
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		total += Haversine(points[i], points[i+1])
	}
	return total
}

// DecodePolyline decodes an encoded polyline string into a point sequence.
// Precision is the encoding exponent: 5 for the classic format, 6 for the
// polyline6 variant some providers emit.
func DecodePolyline(encoded string, precision int) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	codec := polyline.Codec{Dim: 2, Scale: 1e5}
	if precision == 6 {
		codec.Scale = 1e6
	}

	coords, _, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	points := make([]Point, 0, len(coords))
	for _, coord := range coords {
		p := Point{Latitude: coord[0], Longitude: coord[1]}
		if !p.Valid() {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
		points = append(points, p)
	}
	return points, nil
}

// EncodePolyline encodes a point sequence using the classic precision-5
// polyline format.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}
