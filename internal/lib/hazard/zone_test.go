package hazard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// Krishna river floodplain square south of Vijayawada, used across the
// package tests.
var floodplain = []geo.Point{
	{Latitude: 16.28, Longitude: 80.42},
	{Latitude: 16.28, Longitude: 80.46},
	{Latitude: 16.32, Longitude: 80.46},
	{Latitude: 16.32, Longitude: 80.42},
}

func TestNewPolygonZone(t *testing.T) {
	zone, err := NewPolygonZone("Krishna floodplain", KindManualPolygon, floodplain)
	require.NoError(t, err)

	assert.NotEmpty(t, zone.ID)
	assert.Equal(t, KindManualPolygon, zone.Kind)
	assert.Len(t, zone.Polygon, 4)

	// Center sits at the bounding box midpoint
	assert.InDelta(t, 16.30, zone.Center.Latitude, 1e-9)
	assert.InDelta(t, 80.44, zone.Center.Longitude, 1e-9)

	// Radius reaches the farthest vertex
	assert.InDelta(t, geo.Haversine(zone.Center, floodplain[0]), zone.RadiusMeters, 1)

	assert.Equal(t, 16.28, zone.Bounds.MinLat)
	assert.Equal(t, 80.46, zone.Bounds.MaxLng)
}

func TestNewPolygonZone_DropsClosingVertex(t *testing.T) {
	closed := append(append([]geo.Point(nil), floodplain...), floodplain[0])
	zone, err := NewPolygonZone("closed ring", KindGeocodedArea, closed)
	require.NoError(t, err)
	assert.Len(t, zone.Polygon, 4, "Explicit closing vertex should be dropped")
}

func TestNewPolygonZone_Rejects(t *testing.T) {
	_, err := NewPolygonZone("too few", KindManualPolygon, floodplain[:2])
	assert.Error(t, err)

	bad := append(append([]geo.Point(nil), floodplain[:3]...), geo.Point{Latitude: 200, Longitude: 80})
	_, err = NewPolygonZone("bad vertex", KindManualPolygon, bad)
	assert.Error(t, err)
}

func TestNewCircularZone(t *testing.T) {
	center := geo.Point{Latitude: 16.3067, Longitude: 80.4365}
	zone, err := NewCircularZone("waterlogged junction", center, 400)
	require.NoError(t, err)

	assert.Equal(t, KindCircularRisk, zone.Kind)
	assert.Equal(t, center, zone.Center)
	assert.Equal(t, 400.0, zone.RadiusMeters)
	require.Len(t, zone.Polygon, circleSegments)

	// Every synthesized vertex sits on the circle
	for _, p := range zone.Polygon {
		assert.InDelta(t, 400, geo.Haversine(center, p), 15)
	}

	// The center itself is inside the synthesized polygon
	assert.True(t, geo.PointInPolygon(center, zone.Polygon))

	_, err = NewCircularZone("bad", geo.Point{Latitude: 100, Longitude: 0}, 400)
	assert.Error(t, err)
	_, err = NewCircularZone("bad", center, 0)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	west, err := NewPolygonZone("west cell", KindManualPolygon, []geo.Point{
		{Latitude: 16.29, Longitude: 80.42},
		{Latitude: 16.29, Longitude: 80.43},
		{Latitude: 16.31, Longitude: 80.43},
		{Latitude: 16.31, Longitude: 80.42},
	})
	require.NoError(t, err)
	east, err := NewPolygonZone("east cell", KindManualPolygon, []geo.Point{
		{Latitude: 16.30, Longitude: 80.45},
		{Latitude: 16.30, Longitude: 80.46},
		{Latitude: 16.32, Longitude: 80.46},
		{Latitude: 16.32, Longitude: 80.45},
	})
	require.NoError(t, err)

	merged := Merge([]Zone{west, east})

	// Union box spans both zones
	assert.Equal(t, 16.29, merged.Bounds.MinLat)
	assert.Equal(t, 16.32, merged.Bounds.MaxLat)
	assert.Equal(t, 80.42, merged.Bounds.MinLng)
	assert.Equal(t, 80.46, merged.Bounds.MaxLng)

	// Synthetic rectangle with half-diagonal radius
	assert.Len(t, merged.Polygon, 4)
	assert.InDelta(t, merged.Bounds.Diagonal()/2, merged.RadiusMeters, 1)
	assert.Greater(t, merged.RadiusMeters, MinMergedRadius)

	// Both original centers fall inside the merged polygon
	assert.True(t, geo.PointInPolygon(west.Center, merged.Polygon))
	assert.True(t, geo.PointInPolygon(east.Center, merged.Polygon))
}

func TestMerge_MinimumRadius(t *testing.T) {
	tiny, err := NewCircularZone("puddle", geo.Point{Latitude: 16.30, Longitude: 80.44}, 20)
	require.NoError(t, err)

	merged := Merge([]Zone{tiny})
	assert.Equal(t, MinMergedRadius, merged.RadiusMeters, "Tiny hazards are floored so detours clear them")

	assert.Zero(t, Merge(nil))
}
