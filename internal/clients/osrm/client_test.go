package osrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

var testWaypoints = []geo.Point{
	{Latitude: 16.3067, Longitude: 80.4365}, // Vijayawada center
	{Latitude: 16.3067, Longitude: 80.4552}, // ~2km east
}

const geojsonResponse = `{
  "code": "Ok",
  "routes": [{
    "distance": 2010.4,
    "duration": 241.2,
    "geometry": {"type": "LineString", "coordinates": [[80.4365, 16.3067], [80.4460, 16.3068], [80.4552, 16.3067]]},
    "legs": [
      {"steps": [
        {"name": "MG Road", "distance": 1000, "duration": 120,
         "geometry": {"type": "LineString", "coordinates": [[80.4365, 16.3067], [80.4460, 16.3068]]},
         "maneuver": {"type": "depart", "bearing_after": 90, "location": [80.4365, 16.3067]}},
        {"name": "Bandar Road", "distance": 1010.4, "duration": 121.2,
         "geometry": {"type": "LineString", "coordinates": [[80.4460, 16.3068], [80.4552, 16.3067]]},
         "maneuver": {"type": "arrive", "bearing_before": 90, "location": [80.4552, 16.3067]}}
      ]},
      {"steps": [
        {"name": "Spillover Leg", "distance": 1, "duration": 1,
         "maneuver": {"type": "depart", "location": [80.4552, 16.3067]}}
      ]}
    ]
  }]
}`

func newTestClient(cfg Config) *Client {
	return NewClient(cfg, zap.NewNop().Sugar(), nil)
}

func TestClient_FetchRoute_GeoJSON(t *testing.T) {
	var gotPath string
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, geojsonResponse)
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL, Profile: "driving", Geometries: "geojson"})
	route, err := client.FetchRoute(context.Background(), testWaypoints)
	require.NoError(t, err)
	require.NotNil(t, route)

	// Waypoints go on the wire longitude-first
	assert.True(t, strings.HasPrefix(gotPath, "/route/v1/driving/"), "unexpected path %s", gotPath)
	assert.Contains(t, gotPath, "80.436500,16.306700;80.455200,16.306700")
	assert.Contains(t, gotQuery, "overview=full")
	assert.Contains(t, gotQuery, "steps=true")
	assert.Contains(t, gotQuery, "geometries=geojson")
	assert.NotContains(t, gotQuery, "annotations")

	// Coordinates come back latitude-first
	require.Len(t, route.Coordinates, 3)
	assert.InDelta(t, 16.3067, route.Coordinates[0].Latitude, 1e-9)
	assert.InDelta(t, 80.4365, route.Coordinates[0].Longitude, 1e-9)

	assert.InDelta(t, 2010.4, route.TotalDistance, 1e-9)
	assert.InDelta(t, 241.2, route.TotalDuration, 1e-9)
	assert.InDelta(t, 80.4552, route.Bounds.MaxLng, 1e-9)

	// Only the first leg contributes guidance steps
	require.Len(t, route.Steps, 2)
	assert.Equal(t, "MG Road", route.Steps[0].Name)
	assert.Equal(t, "depart", route.Steps[0].Maneuver.Type)
	assert.InDelta(t, 16.3067, route.Steps[0].Maneuver.Location.Latitude, 1e-9)
	assert.Len(t, route.Steps[0].Geometry, 2)
}

func TestClient_FetchRoute_SpeedAnnotations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "speed", r.URL.Query().Get("annotations"))
		fmt.Fprint(w, `{
  "code": "Ok",
  "routes": [{
    "distance": 2000, "duration": 240,
    "geometry": {"type": "LineString", "coordinates": [[80.4365, 16.3067], [80.4552, 16.3067]]},
    "legs": [{"steps": [], "annotation": {"speed": [13.89, 27.78]}}]
  }]
}`)
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL, AnnotateSpeeds: true})
	route, err := client.FetchRoute(context.Background(), testWaypoints)
	require.NoError(t, err)

	// Provider speeds arrive in m/s and convert to km/h
	require.Len(t, route.SegmentSpeeds, 2)
	assert.InDelta(t, 50.0, route.SegmentSpeeds[0], 0.1)
	assert.InDelta(t, 100.0, route.SegmentSpeeds[1], 0.1)
}

func TestClient_FetchRoute_PolylineGeometry(t *testing.T) {
	points := []geo.Point{
		{Latitude: 16.3067, Longitude: 80.4365},
		{Latitude: 16.3068, Longitude: 80.4460},
		{Latitude: 16.3067, Longitude: 80.4552},
	}
	encoded := geo.EncodePolyline(points)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "polyline", r.URL.Query().Get("geometries"))
		fmt.Fprintf(w, `{"code": "Ok", "routes": [{"distance": 2000, "duration": 240, "geometry": %q, "legs": []}]}`, encoded)
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL, Geometries: "polyline"})
	route, err := client.FetchRoute(context.Background(), testWaypoints)
	require.NoError(t, err)

	require.Len(t, route.Coordinates, 3)
	assert.InDelta(t, points[1].Latitude, route.Coordinates[1].Latitude, 1e-5)
	assert.InDelta(t, points[1].Longitude, route.Coordinates[1].Longitude, 1e-5)
}

func TestClient_FetchRoute_FallsBackToBackup(t *testing.T) {
	primaryCalls, backupCalls := 0, 0
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupCalls++
		fmt.Fprint(w, geojsonResponse)
	}))
	defer backup.Close()

	client := newTestClient(Config{PrimaryURL: primary.URL, BackupURL: backup.URL})
	route, err := client.FetchRoute(context.Background(), testWaypoints)
	require.NoError(t, err)
	require.NotNil(t, route)

	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 1, backupCalls)
}

func TestClient_FetchRoute_BothEndpointsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL, BackupURL: server.URL})
	route, err := client.FetchRoute(context.Background(), testWaypoints)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRoute))
	assert.Nil(t, route)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_FetchRoute_NoRoutesInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": "NoRoute", "message": "Impossible route between points", "routes": []}`)
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL})
	_, err := client.FetchRoute(context.Background(), testWaypoints)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRoute))
	assert.Contains(t, err.Error(), "NoRoute")
}

func TestClient_FetchRoute_TooFewValidWaypoints(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := newTestClient(Config{PrimaryURL: server.URL})
	route, err := client.FetchRoute(context.Background(), []geo.Point{
		{Latitude: 16.3067, Longitude: 80.4365},
		{Latitude: 91.5, Longitude: 80.44}, // out of range, dropped
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRoute))
	assert.Nil(t, route)
	assert.Equal(t, 0, calls, "Invalid input must not reach the network")
}

func TestClient_FetchRoute_PerAttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, geojsonResponse)
	}))
	defer server.Close()

	client := newTestClient(Config{
		PrimaryURL:     server.URL,
		BackupURL:      server.URL,
		RequestTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.FetchRoute(context.Background(), testWaypoints)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRoute))
	assert.Less(t, time.Since(start), 2*time.Second, "Both attempts are bounded by the per-attempt timeout")
}
