package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/detour"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
)

// Test trip: Vijayawada city center to a point 2 km east.
var (
	tripStart = geo.Point{Latitude: 16.3067, Longitude: 80.4365}
	tripEnd   = geo.Point{Latitude: 16.3067, Longitude: 80.4553}
)

// causewayZone straddles the straight line between tripStart and tripEnd.
func causewayZone(t *testing.T) hazard.Zone {
	t.Helper()
	zone, err := hazard.NewPolygonZone("flooded causeway", hazard.KindManualPolygon, []geo.Point{
		{Latitude: 16.2980, Longitude: 80.4410},
		{Latitude: 16.3150, Longitude: 80.4410},
		{Latitude: 16.3150, Longitude: 80.4510},
		{Latitude: 16.2980, Longitude: 80.4510},
	})
	require.NoError(t, err)
	return zone
}

// lineRoute samples a polyline through the shape points and wraps it as a
// provider route. Distance and duration come from the sampled geometry.
func lineRoute(samplesPerLeg int, shape ...geo.Point) *routing.Route {
	coords := []geo.Point{shape[0]}
	for i := 1; i < len(shape); i++ {
		for s := 1; s <= samplesPerLeg; s++ {
			coords = append(coords, geo.Interpolate(shape[i-1], shape[i], float64(s)/float64(samplesPerLeg)))
		}
	}
	dist := geo.PathLength(coords)
	return &routing.Route{
		Coordinates:   coords,
		TotalDistance: dist,
		TotalDuration: dist / 11.0,
		Bounds:        geo.BoundsOf(coords),
	}
}

// directThrough is the straight-line route crossing the causeway zone.
func directThrough() *routing.Route {
	return lineRoute(20, tripStart, tripEnd)
}

// clearNorthern detours north of the causeway zone and scores zero.
func clearNorthern() *routing.Route {
	return lineRoute(10, tripStart, geo.Point{Latitude: 16.3300, Longitude: 80.4460}, tripEnd)
}

// fakeFetcher records every request and resolves it through fn.
type fakeFetcher struct {
	mu    sync.Mutex
	calls [][]geo.Point
	fn    func(waypoints []geo.Point) (*routing.Route, error)
}

func (f *fakeFetcher) FetchRoute(ctx context.Context, waypoints []geo.Point) (*routing.Route, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]geo.Point(nil), waypoints...))
	f.mu.Unlock()
	return f.fn(waypoints)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// scripted builds a fetcher that serves direct for two-point requests and
// per-candidate routes or errors for via requests. Unscripted candidates fall
// back to the direct geometry, which never improves on it.
type scripted struct {
	*fakeFetcher
	direct *routing.Route
	labels map[geo.Point]string
	routes map[string]*routing.Route
	errs   map[string]error
}

func newScripted(direct *routing.Route, candidates []detour.Candidate) *scripted {
	s := &scripted{
		direct: direct,
		labels: make(map[geo.Point]string, len(candidates)),
		routes: make(map[string]*routing.Route),
		errs:   make(map[string]error),
	}
	for _, c := range candidates {
		s.labels[c.Waypoint] = c.Label
	}
	s.fakeFetcher = &fakeFetcher{fn: s.resolve}
	return s
}

func (s *scripted) route(label string, r *routing.Route) { s.routes[label] = r }
func (s *scripted) fail(label string, err error)         { s.errs[label] = err }

func (s *scripted) resolve(waypoints []geo.Point) (*routing.Route, error) {
	if len(waypoints) == 2 {
		return s.direct, nil
	}
	label := s.labels[waypoints[1]]
	if err, ok := s.errs[label]; ok {
		return nil, err
	}
	if r, ok := s.routes[label]; ok {
		return r, nil
	}
	return s.direct, nil
}

// plannerCandidates mirrors the candidate generation the planner performs for
// the scripted direct route, so tests can key scripts by label.
func plannerCandidates(direct *routing.Route, zones ...hazard.Zone) []detour.Candidate {
	crossed := hazard.IntersectingZones(direct.Coordinates, zones)
	merged := hazard.Merge(crossed)
	return detour.Candidates(tripStart, tripEnd, merged)
}

func newTestPlanner(fetcher RouteFetcher, zones *hazard.Set) *Planner {
	return NewPlanner(fetcher, zones, zap.NewNop().Sugar(), nil)
}

func TestPlanner_DirectWhenNoHazards(t *testing.T) {
	direct := directThrough()
	fetcher := &fakeFetcher{fn: func([]geo.Point) (*routing.Route, error) { return direct, nil }}
	planner := newTestPlanner(fetcher, hazard.NewSet())

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.NoError(t, err)

	assert.Same(t, direct, result.Route)
	assert.True(t, result.Clear())
	assert.False(t, result.Blocked)
	assert.Zero(t, result.CandidatesTried)
	assert.Equal(t, 1, fetcher.callCount(), "A clear direct route needs no candidate fetches")
}

func TestPlanner_DirectFetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("all route providers failed")
	fetcher := &fakeFetcher{fn: func([]geo.Point) (*routing.Route, error) { return nil, fetchErr }}
	planner := newTestPlanner(fetcher, hazard.NewSet())

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, fetchErr)
	assert.Contains(t, err.Error(), "failed to fetch direct route")
}

func TestPlanner_AvoidDisabledKeepsHazardousRoute(t *testing.T) {
	zones := hazard.NewSet()
	zones.Add(causewayZone(t))

	direct := directThrough()
	fetcher := &fakeFetcher{fn: func([]geo.Point) (*routing.Route, error) { return direct, nil }}
	planner := newTestPlanner(fetcher, zones)

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: false})
	require.NoError(t, err)

	assert.Same(t, direct, result.Route)
	assert.False(t, result.Blocked)
	assert.Greater(t, result.HazardScore, 0, "Scores are still reported for display")
	assert.Equal(t, result.DirectScore, result.HazardScore)
	assert.Equal(t, 1, fetcher.callCount(), "No detours are evaluated when avoidance is off")
}

func TestPlanner_SelectsClearDetour(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	direct := directThrough()
	fetcher := newScripted(direct, plannerCandidates(direct, zone))
	fetcher.route("left-wide", clearNorthern())
	planner := newTestPlanner(fetcher, zones)

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.NoError(t, err)

	assert.False(t, result.Blocked)
	assert.Equal(t, "left-wide", result.DetourLabel)
	assert.True(t, result.Clear())
	assert.Less(t, result.HazardScore, result.DirectScore)
	assert.Equal(t, 8, result.CandidatesTried)
	assert.Zero(t, result.CandidatesFailed)
	assert.Equal(t, 9, fetcher.callCount(), "Direct plus all eight candidates")
}

func TestPlanner_RanksByScoreThenDistance(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	direct := directThrough()

	// Two clear candidates at different distances, plus one that still nicks
	// the zone but is far shorter than either.
	north := geo.Point{Latitude: 16.3400, Longitude: 80.4460}
	clearLong := &routing.Route{
		Coordinates:   []geo.Point{tripStart, north, tripEnd},
		TotalDistance: 7100,
	}
	clearShort := &routing.Route{
		Coordinates:   []geo.Point{tripStart, north, tripEnd},
		TotalDistance: 5200,
	}
	nicked := &routing.Route{
		Coordinates:   []geo.Point{tripStart, zone.Center, tripEnd},
		TotalDistance: 100,
	}

	fetcher := newScripted(direct, plannerCandidates(direct, zone))
	fetcher.route("left-tight", clearLong)
	fetcher.route("right-wide", clearShort)
	fetcher.route("corner-se", nicked)
	planner := newTestPlanner(fetcher, zones)

	for run := 0; run < 3; run++ {
		result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
		require.NoError(t, err)

		assert.Equal(t, "right-wide", result.DetourLabel, "Lowest score wins, ties broken by distance")
		assert.Same(t, clearShort, result.Route)
		assert.Zero(t, result.HazardScore, "A short route through the zone never beats a clear one")
	}
}

func TestPlanner_CandidateFailuresDoNotAbort(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	direct := directThrough()
	candidates := plannerCandidates(direct, zone)
	fetcher := newScripted(direct, candidates)
	for _, c := range candidates {
		if c.Label != "corner-ne" {
			fetcher.fail(c.Label, errors.New("provider timeout"))
		}
	}
	fetcher.route("corner-ne", clearNorthern())
	planner := newTestPlanner(fetcher, zones)

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.NoError(t, err)

	assert.Equal(t, "corner-ne", result.DetourLabel)
	assert.True(t, result.Clear())
	assert.Equal(t, 8, result.CandidatesTried)
	assert.Equal(t, 7, result.CandidatesFailed)
}

func TestPlanner_BlockedWhenNothingImproves(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	// Every candidate resolves to the direct geometry, so no score improves.
	direct := directThrough()
	fetcher := newScripted(direct, plannerCandidates(direct, zone))
	planner := newTestPlanner(fetcher, zones)

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.NoError(t, err)

	assert.True(t, result.Blocked)
	assert.Same(t, direct, result.Route, "The direct route is still returned when blocked")
	assert.Equal(t, result.DirectScore, result.HazardScore)
	assert.Empty(t, result.DetourLabel)
	assert.Equal(t, 8, result.CandidatesTried)
}

func TestPlanner_BlockedWhenAllCandidatesFail(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	direct := directThrough()
	candidates := plannerCandidates(direct, zone)
	fetcher := newScripted(direct, candidates)
	for _, c := range candidates {
		fetcher.fail(c.Label, errors.New("provider down"))
	}
	planner := newTestPlanner(fetcher, zones)

	result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
	require.NoError(t, err)

	assert.True(t, result.Blocked)
	assert.Same(t, direct, result.Route)
	assert.Equal(t, 8, result.CandidatesFailed)
}

func TestPlanner_FetchesCandidatesConcurrently(t *testing.T) {
	zone := causewayZone(t)
	zones := hazard.NewSet()
	zones.Add(zone)

	direct := directThrough()

	// Candidate fetches block until all eight are in flight. A sequential
	// planner would deadlock here.
	var inFlight atomic.Int32
	release := make(chan struct{})
	fetcher := &fakeFetcher{}
	fetcher.fn = func(waypoints []geo.Point) (*routing.Route, error) {
		if len(waypoints) == 2 {
			return direct, nil
		}
		if inFlight.Add(1) == 8 {
			close(release)
		}
		<-release
		return clearNorthern(), nil
	}
	planner := newTestPlanner(fetcher, zones)

	type outcome struct {
		result *PlanResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := planner.Plan(context.Background(), tripStart, tripEnd, PlanOptions{AvoidHazards: true})
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.True(t, out.result.Clear())
		assert.Equal(t, int32(8), inFlight.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("candidate fetches were not issued concurrently")
	}
}
