package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/smoothing"
)

// manualTicker hands playback ticks to the session on demand.
type manualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	starts  int
	stopped bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) Start(time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.stopped = false
	return m.ch
}

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("playback tick was not consumed")
	}
}

func (m *manualTicker) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func testNavConfig() config.NavigationConfig {
	return config.NavigationConfig{
		SimTick:                 50 * time.Millisecond,
		ArrivalThresholdMeters:  30,
		RerouteNoticeTTL:        500 * time.Millisecond,
		BreadcrumbCap:           50,
		BreadcrumbSpacingMeters: 5,
	}
}

// playbackRoute is a five coordinate route with 500 m hops, sized so a
// simulated drive arrives after four ticks.
func playbackRoute() *routing.Route {
	pts := make([]geo.Point, 5)
	for i := range pts {
		pts[i] = geo.Interpolate(tripStart, tripEnd, float64(i)/4)
	}
	return lineRoute(1, pts...)
}

type sessionHarness struct {
	*Session
	fetcher *fakeFetcher
	zones   *hazard.Set
	tick    *manualTicker
}

func newSessionHarness(t *testing.T, fn func(waypoints []geo.Point) (*routing.Route, error), cfg config.NavigationConfig) *sessionHarness {
	t.Helper()
	zones := hazard.NewSet()
	fetcher := &fakeFetcher{fn: fn}
	planner := newTestPlanner(fetcher, zones)
	tick := newManualTicker()
	s := NewSession(planner, zones, nil, tick, cfg, zap.NewNop().Sugar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	return &sessionHarness{Session: s, fetcher: fetcher, zones: zones, tick: tick}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status().State == want },
		2*time.Second, 5*time.Millisecond, "session never reached %s", want)
}

func serveRoute(r *routing.Route) func([]geo.Point) (*routing.Route, error) {
	return func([]geo.Point) (*routing.Route, error) { return r, nil }
}

func floatPtr(f float64) *float64 { return &f }

func TestSession_PlanToReadiesRoute(t *testing.T) {
	route := playbackRoute()
	h := newSessionHarness(t, serveRoute(route), testNavConfig())

	result, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	assert.Same(t, route, result.Route)

	st := h.Status()
	assert.Equal(t, StateRouteReady, st.State)
	assert.False(t, st.Navigating)
	require.NotNil(t, st.Destination)
	assert.InDelta(t, tripEnd.Longitude, st.Destination.Longitude, 1e-9)
	assert.Equal(t, route.TotalDistance, st.DistanceRemaining)
	assert.Same(t, route, h.Route())
	assert.Same(t, result, h.Plan())
}

func TestSession_PlanToRejectsInvalidCoordinates(t *testing.T) {
	h := newSessionHarness(t, serveRoute(playbackRoute()), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, geo.Point{Latitude: 99, Longitude: 80.45})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid route coordinates")
	assert.Equal(t, StateIdle, h.Status().State)
	assert.Zero(t, h.fetcher.callCount(), "Invalid coordinates never reach the provider")
}

func TestSession_PlanToRefusedWhileNavigating(t *testing.T) {
	h := newSessionHarness(t, serveRoute(playbackRoute()), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	_, err = h.PlanTo(context.Background(), tripStart, tripEnd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot plan a route while navigating")
}

func TestSession_PlanToKeepsPriorRouteOnFailure(t *testing.T) {
	route := playbackRoute()
	var calls atomic.Int32
	h := newSessionHarness(t, func([]geo.Point) (*routing.Route, error) {
		if calls.Add(1) == 1 {
			return route, nil
		}
		return nil, errors.New("provider down")
	}, testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)

	_, err = h.PlanTo(context.Background(), tripStart, tripEnd)
	require.Error(t, err)
	assert.Equal(t, StateRouteReady, h.Status().State, "A failed replan falls back to the ready route")
	assert.Same(t, route, h.Route())
}

func TestSession_StartRequiresReadyRoute(t *testing.T) {
	h := newSessionHarness(t, serveRoute(playbackRoute()), testNavConfig())

	err := h.Start(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start navigation while idle")

	_, err = h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	err = h.Start(true)
	require.Error(t, err, "Navigation cannot be started twice")
}

func TestSession_SimulatedPlaybackArrives(t *testing.T) {
	route := playbackRoute()
	h := newSessionHarness(t, serveRoute(route), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	st := h.Status()
	assert.Equal(t, StateNavigating, st.State)
	assert.True(t, st.Simulated)
	require.NotNil(t, st.Position)
	assert.InDelta(t, route.Coordinates[0].Longitude, st.Position.Longitude, 1e-9)
	assert.InDelta(t, 90, st.Heading, 2, "The trip heads due east")
	require.NotNil(t, st.StartedAt)
	assert.Nil(t, st.ETA, "No ETA until the first progress update")

	h.tick.tick(t)
	require.Eventually(t, func() bool {
		st := h.Status()
		return st.Position != nil && st.Position.Longitude > route.Coordinates[0].Longitude
	}, 2*time.Second, 5*time.Millisecond)

	st = h.Status()
	assert.InDelta(t, route.Coordinates[1].Longitude, st.Position.Longitude, 1e-9)
	assert.Less(t, st.DistanceRemaining, route.TotalDistance)
	assert.Greater(t, st.SpeedKMH, 0.0)
	assert.NotNil(t, st.ETA)
	assert.Len(t, h.Breadcrumbs(), 1)

	for i := 0; i < 3; i++ {
		h.tick.tick(t)
	}
	waitState(t, h.Session, StateArrived)

	st = h.Status()
	assert.False(t, st.Navigating)
	assert.Zero(t, st.DistanceRemaining)
	assert.Zero(t, st.SpeedKMH)
	assert.Nil(t, st.ETA)
	assert.GreaterOrEqual(t, st.TripDurationSeconds, 0.0)
	assert.True(t, h.tick.isStopped(), "Arrival halts playback")
	assert.Len(t, h.Breadcrumbs(), 4)
}

func TestSession_RerouteOnZoneChange(t *testing.T) {
	first := directThrough()
	second := clearNorthern()
	var calls atomic.Int32
	h := newSessionHarness(t, func(waypoints []geo.Point) (*routing.Route, error) {
		if len(waypoints) == 2 && calls.Add(1) > 1 {
			return second, nil
		}
		return first, nil
	}, testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	h.zones.Add(causewayZone(t))

	require.Eventually(t, func() bool { return h.Route() == second },
		2*time.Second, 5*time.Millisecond, "zone change never swapped the route")
	waitState(t, h.Session, StateNavigating)

	st := h.Status()
	require.NotNil(t, st.Alert)
	assert.Equal(t, "notice", st.Alert.Kind)
	assert.True(t, st.Alert.Transient)
	assert.Contains(t, st.Alert.Text, "Reroute complete")
	assert.False(t, st.Blocked)
	assert.True(t, h.Plan().Clear())

	// The transient notice clears itself.
	require.Eventually(t, func() bool { return h.Status().Alert == nil },
		2*time.Second, 10*time.Millisecond)
}

func TestSession_RerouteFailureKeepsRoute(t *testing.T) {
	route := directThrough()
	var calls atomic.Int32
	h := newSessionHarness(t, func(waypoints []geo.Point) (*routing.Route, error) {
		if len(waypoints) == 2 && calls.Add(1) > 1 {
			return nil, errors.New("provider down")
		}
		return route, nil
	}, testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	h.zones.Add(causewayZone(t))

	require.Eventually(t, func() bool {
		st := h.Status()
		return st.State == StateNavigating && st.Alert != nil && st.Alert.Kind == "warning"
	}, 2*time.Second, 5*time.Millisecond)

	st := h.Status()
	assert.Contains(t, st.Alert.Text, "Rerouting failed")
	assert.Same(t, route, h.Route(), "The previous route survives a failed reroute")
}

func TestSession_StopDiscardsInFlightReroute(t *testing.T) {
	route := directThrough()
	release := make(chan struct{})
	var calls atomic.Int32
	h := newSessionHarness(t, func(waypoints []geo.Point) (*routing.Route, error) {
		if len(waypoints) == 2 && calls.Add(1) > 1 {
			<-release
			return clearNorthern(), nil
		}
		return route, nil
	}, testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	h.zones.Add(causewayZone(t))
	waitState(t, h.Session, StateRerouting)

	h.Stop()
	assert.Equal(t, StateIdle, h.Status().State)

	close(release)
	require.Eventually(t, func() bool { return h.fetcher.callCount() >= 2 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	st := h.Status()
	assert.Equal(t, StateIdle, st.State, "A stopped session ignores late reroute results")
	assert.Same(t, route, h.Route())
	assert.Nil(t, st.Alert)
}

func TestSession_ReportPositionLiveFlow(t *testing.T) {
	route := directThrough()
	h := newSessionHarness(t, serveRoute(route), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(false))
	assert.Zero(t, h.tick.startCount(), "Live navigation never starts playback")

	// The first fix seeds the smoother unchanged.
	at := time.Now()
	fix := smoothing.Fix{
		Latitude:  route.Coordinates[2].Latitude,
		Longitude: route.Coordinates[2].Longitude,
		At:        at,
	}
	require.NoError(t, h.ReportPosition(fix))

	st := h.Status()
	require.NotNil(t, st.Position)
	assert.InDelta(t, route.Coordinates[2].Longitude, st.Position.Longitude, 1e-9)
	assert.Less(t, st.DistanceRemaining, route.TotalDistance)
	assert.Len(t, h.Breadcrumbs(), 1)

	// Device heading and speed win over derived values.
	require.NoError(t, h.ReportPosition(smoothing.Fix{
		Latitude:  route.Coordinates[4].Latitude,
		Longitude: route.Coordinates[4].Longitude,
		Heading:   floatPtr(123),
		SpeedMS:   floatPtr(10),
		At:        at.Add(time.Second),
	}))

	st = h.Status()
	assert.InDelta(t, 123, st.Heading, 1e-9)
	assert.InDelta(t, 36, st.SpeedKMH, 1e-9)
	assert.Greater(t, st.Position.Longitude, route.Coordinates[2].Longitude, "The smoothed position moved toward the fix")
	assert.Less(t, st.Position.Longitude, route.Coordinates[4].Longitude, "But only part of the way")
}

func TestSession_ReportPositionGuards(t *testing.T) {
	h := newSessionHarness(t, serveRoute(directThrough()), testNavConfig())

	err := h.ReportPosition(smoothing.Fix{Latitude: 200, Longitude: 80.44})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid position fix")

	err = h.ReportPosition(smoothing.Fix{Latitude: 16.31, Longitude: 80.44})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position fix ignored while idle")

	_, err = h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	err = h.ReportPosition(smoothing.Fix{Latitude: 16.31, Longitude: 80.44})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated playback")
}

func TestSession_LiveArrivalFiresOnce(t *testing.T) {
	route := directThrough()
	h := newSessionHarness(t, serveRoute(route), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(false))

	last := route.Coordinates[len(route.Coordinates)-1]
	require.NoError(t, h.ReportPosition(smoothing.Fix{Latitude: last.Latitude, Longitude: last.Longitude, At: time.Now()}))

	st := h.Status()
	assert.Equal(t, StateArrived, st.State)
	assert.Zero(t, st.DistanceRemaining)

	err = h.ReportPosition(smoothing.Fix{Latitude: last.Latitude, Longitude: last.Longitude, At: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position fix ignored while arrived")
}

func TestSession_BreadcrumbSpacingAndCap(t *testing.T) {
	// A coarse 12 km route so the trail never reaches the destination.
	route := lineRoute(1, tripStart, geo.Point{Latitude: 16.3067, Longitude: 80.5500})
	cfg := testNavConfig()
	cfg.BreadcrumbCap = 5
	cfg.BreadcrumbSpacingMeters = 50
	h := newSessionHarness(t, serveRoute(route), cfg)

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(false))

	at := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, h.ReportPosition(smoothing.Fix{
			Latitude:  tripStart.Latitude,
			Longitude: tripStart.Longitude + 0.005*float64(i+1),
			At:        at.Add(time.Duration(i) * time.Second),
		}))
	}

	crumbs := h.Breadcrumbs()
	require.Len(t, crumbs, 5, "The trail is capped at its newest entries")
	for i := 1; i < len(crumbs); i++ {
		assert.GreaterOrEqual(t, geo.Haversine(crumbs[i-1], crumbs[i]), 50.0)
	}
	st := h.Status()
	assert.InDelta(t, st.Position.Longitude, crumbs[len(crumbs)-1].Longitude, 1e-9, "The newest crumb is the current position")

	// Jitter under the spacing floor adds nothing.
	pos := *st.Position
	require.NoError(t, h.ReportPosition(smoothing.Fix{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude + 0.00001,
		At:        at.Add(time.Minute),
	}))
	assert.Len(t, h.Breadcrumbs(), 5)
}

func TestSession_StopRetainsRouteAndDestination(t *testing.T) {
	route := playbackRoute()
	h := newSessionHarness(t, serveRoute(route), testNavConfig())

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	h.Stop()

	st := h.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.Navigating)
	assert.False(t, st.Simulated)
	assert.Nil(t, st.Alert)
	assert.Nil(t, st.StartedAt)
	assert.NotNil(t, st.Destination, "The destination survives a stop")
	assert.Same(t, route, h.Route(), "The route survives a stop")
	assert.True(t, h.tick.isStopped())
}

func TestSession_BlockedPlanRaisesWarning(t *testing.T) {
	zone := causewayZone(t)
	direct := directThrough()
	fetcher := newScripted(direct, plannerCandidates(direct, zone))

	zones := hazard.NewSet()
	zones.Add(zone)
	planner := NewPlanner(fetcher, zones, zap.NewNop().Sugar(), nil)
	s := NewSession(planner, zones, nil, newManualTicker(), testNavConfig(), zap.NewNop().Sugar(), nil)

	result, err := s.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	assert.True(t, result.Blocked)

	st := s.Status()
	assert.Equal(t, StateRouteReady, st.State)
	assert.True(t, st.Blocked)
	require.NotNil(t, st.Alert)
	assert.Equal(t, "warning", st.Alert.Kind)
	assert.Contains(t, st.Alert.Text, "No safe detour")

	// A blocked route is still navigable.
	require.NoError(t, s.Start(true))
}

func TestSession_SubscribeCoalescesLatest(t *testing.T) {
	h := newSessionHarness(t, serveRoute(playbackRoute()), testNavConfig())

	ch, cancel := h.Subscribe()
	defer cancel()

	st := <-ch
	assert.Equal(t, StateIdle, st.State, "Subscriptions are primed with the current snapshot")

	_, err := h.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, h.Start(true))

	require.Eventually(t, func() bool {
		for {
			select {
			case st = <-ch:
			default:
				return st.State == StateNavigating
			}
		}
	}, 2*time.Second, 5*time.Millisecond, "the subscriber converges on the newest state")
}

func TestSession_SpawnerFeedsZoneSet(t *testing.T) {
	route := playbackRoute()
	zones := hazard.NewSet()
	fetcher := &fakeFetcher{fn: serveRoute(route)}
	planner := NewPlanner(fetcher, zones, zap.NewNop().Sugar(), nil)
	spawner := hazard.NewSpawner(zones, 1.0, 100, rand.New(rand.NewSource(7)), zap.NewNop().Sugar())
	tick := newManualTicker()
	s := NewSession(planner, zones, spawner, tick, testNavConfig(), zap.NewNop().Sugar(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	_, err := s.PlanTo(context.Background(), tripStart, tripEnd)
	require.NoError(t, err)
	require.NoError(t, s.Start(true))

	tick.tick(t)

	require.Eventually(t, func() bool { return zones.Len() >= 1 },
		2*time.Second, 5*time.Millisecond, "playback never spawned a hazard")

	// The spawned zone sits on the remaining path, so the monitor reroutes.
	// Every fetch returns the compromised geometry, leaving the route blocked.
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.State == StateNavigating && st.Blocked
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUpcomingManeuver(t *testing.T) {
	r := &routing.Route{
		TotalDistance: 1000,
		Steps: []routing.Step{
			{Name: "MG Road", Distance: 600, Maneuver: routing.Maneuver{Type: "depart"}},
			{Name: "Bandar Road", Distance: 400, Maneuver: routing.Maneuver{Type: "turn", Modifier: "right"}},
		},
	}

	m := upcomingManeuver(r, 100, 900)
	require.NotNil(t, m)
	assert.Equal(t, "turn", m.Type)
	assert.Equal(t, "right", m.Modifier)
	assert.Equal(t, "Bandar Road", m.Road)
	assert.InDelta(t, 500, m.DistanceMeters, 1e-9)

	m = upcomingManeuver(r, 700, 300)
	require.NotNil(t, m)
	assert.Equal(t, "arrive", m.Type)
	assert.InDelta(t, 300, m.DistanceMeters, 1e-9)

	assert.Nil(t, upcomingManeuver(&routing.Route{}, 0, 0))
	assert.Nil(t, upcomingManeuver(nil, 0, 0))
}
