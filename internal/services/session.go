package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/smoothing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
)

// State names one navigation state machine position.
type State string

const (
	StateIdle           State = "idle"
	StateRouteComputing State = "route_computing"
	StateRouteReady     State = "route_ready"
	StateNavigating     State = "navigating"
	StateRerouting      State = "rerouting"
	StateArrived        State = "arrived"
)

// ErrInvalidState marks operations refused by the state machine, as opposed
// to bad input or provider failures.
var ErrInvalidState = errors.New("invalid session state")

// Alert is a user-facing session notice. Transient alerts carry an expiry
// and clear themselves; the rest stay until replaced or the session stops.
type Alert struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Transient bool      `json:"transient,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UpcomingManeuver describes the next turn ahead of the vehicle.
type UpcomingManeuver struct {
	Type           string  `json:"type"`
	Modifier       string  `json:"modifier,omitempty"`
	Road           string  `json:"road,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Status is the session snapshot served to the display layer. It is rebuilt
// on every position update or reroute event and resets when the session
// arrives or stops.
type Status struct {
	State               State             `json:"state"`
	Navigating          bool              `json:"navigating"`
	Rerouting           bool              `json:"rerouting"`
	Simulated           bool              `json:"simulated,omitempty"`
	Blocked             bool              `json:"blocked,omitempty"`
	Position            *geo.Point        `json:"position,omitempty"`
	Destination         *geo.Point        `json:"destination,omitempty"`
	Heading             float64           `json:"heading"`
	SpeedKMH            float64           `json:"speed_kmh"`
	SpeedLimitKMH       float64           `json:"speed_limit_kmh,omitempty"`
	DistanceRemaining   float64           `json:"distance_remaining_meters"`
	ETA                 *time.Time        `json:"eta,omitempty"`
	CurrentStepIndex    int               `json:"current_step_index"`
	NextManeuver        *UpcomingManeuver `json:"next_maneuver,omitempty"`
	Alert               *Alert            `json:"alert,omitempty"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	TripDurationSeconds float64           `json:"trip_duration_seconds,omitempty"`
}

// Session is the navigation state machine. All mutating entry points are
// mutex-guarded; the Run loop owns the live monitor and simulated playback.
// Only the planner, via this session, ever replaces the active route, and
// the swap is always wholesale.
type Session struct {
	planner *Planner
	zones   *hazard.Set
	spawner *hazard.Spawner
	ticker  TickSource
	cfg     config.NavigationConfig
	log     *zap.SugaredLogger
	metrics *observability.Metrics

	mu          sync.Mutex
	state       State
	route       *routing.Route
	plan        *PlanResult
	destination geo.Point
	hasDest     bool
	filter      smoothing.Filter
	position    geo.Point
	hasPos      bool
	heading     float64
	speed       float64
	speedLimit  float64
	remaining   float64
	stepIdx     int
	routeIdx    int
	maneuver    *UpcomingManeuver
	eta         time.Time
	simulated   bool
	blocked     bool
	tickC       <-chan time.Time
	startedAt   time.Time
	tripTime    time.Duration
	breadcrumbs []geo.Point
	alert       *Alert
	alertSeq    uint64
	subs        map[int]chan Status
	nextSub     int
	wake        chan struct{}
}

// NewSession wires a session. Spawner and metrics may be nil; ticker
// defaults to a wall-clock ticker.
func NewSession(planner *Planner, zones *hazard.Set, spawner *hazard.Spawner, ticker TickSource, cfg config.NavigationConfig, log *zap.SugaredLogger, metrics *observability.Metrics) *Session {
	if ticker == nil {
		ticker = &TimeTicker{}
	}
	if cfg.SimTick <= 0 {
		cfg.SimTick = 200 * time.Millisecond
	}
	if cfg.ArrivalThresholdMeters <= 0 {
		cfg.ArrivalThresholdMeters = 30
	}
	if cfg.RerouteNoticeTTL <= 0 {
		cfg.RerouteNoticeTTL = 5 * time.Second
	}
	if cfg.BreadcrumbCap < 1 {
		cfg.BreadcrumbCap = 50
	}
	if cfg.BreadcrumbSpacingMeters <= 0 {
		cfg.BreadcrumbSpacingMeters = 5
	}

	s := &Session{
		planner: planner,
		zones:   zones,
		spawner: spawner,
		ticker:  ticker,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		state:   StateIdle,
		subs:    make(map[int]chan Status),
		wake:    make(chan struct{}, 1),
	}
	metrics.SetSessionState(string(StateIdle))
	return s
}

// PlanTo computes a route from start to dest and readies the session for
// navigation. Hazard avoidance is requested whenever the live zone set is
// non-empty. A provider failure keeps any prior route displayed.
func (s *Session) PlanTo(ctx context.Context, start, dest geo.Point) (*PlanResult, error) {
	return s.PlanRoute(ctx, start, dest, s.zones.Len() > 0)
}

// PlanRoute is PlanTo with hazard avoidance pinned by the caller.
func (s *Session) PlanRoute(ctx context.Context, start, dest geo.Point, avoid bool) (*PlanResult, error) {
	if !start.Valid() || !dest.Valid() {
		return nil, errors.New("invalid route coordinates")
	}

	s.mu.Lock()
	switch s.state {
	case StateIdle, StateRouteReady, StateArrived:
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot plan a route while %s: %w", state, ErrInvalidState)
	}
	s.setStateLocked(StateRouteComputing)
	s.notifyLocked()
	s.mu.Unlock()

	result, err := s.planner.Plan(ctx, start, dest, PlanOptions{AvoidHazards: avoid})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.route != nil {
			s.setStateLocked(StateRouteReady)
		} else {
			s.setStateLocked(StateIdle)
		}
		s.notifyLocked()
		return nil, err
	}

	s.route = result.Route
	s.plan = result
	s.destination = dest
	s.hasDest = true
	s.blocked = result.Blocked
	s.tripTime = 0
	s.remaining = result.Route.TotalDistance
	s.routeIdx = 0
	s.stepIdx = 0
	if result.Blocked {
		s.alert = &Alert{
			Kind:      "warning",
			Text:      "No safe detour found. The route crosses a hazard area.",
			CreatedAt: time.Now(),
		}
		s.alertSeq++
	}
	s.setStateLocked(StateRouteReady)
	s.notifyLocked()
	return result, nil
}

// Start begins navigating the ready route, simulated or live. Simulated
// playback advances one route coordinate per tick.
func (s *Session) Start(simulate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRouteReady {
		return fmt.Errorf("cannot start navigation while %s: %w", s.state, ErrInvalidState)
	}
	if s.route == nil || len(s.route.Coordinates) < 2 {
		return errors.New("no route to navigate")
	}

	s.simulated = simulate
	s.startedAt = time.Now()
	s.tripTime = 0
	s.filter.Reset()
	s.breadcrumbs = nil
	s.routeIdx = 0
	s.position = s.route.Coordinates[0]
	s.hasPos = true
	s.heading = geo.Bearing(s.route.Coordinates[0], s.route.Coordinates[1])
	s.speed = 0
	s.remaining = s.route.TotalDistance
	s.setStateLocked(StateNavigating)
	if simulate {
		s.tickC = s.ticker.Start(s.cfg.SimTick)
	}
	s.wakeRun()
	s.log.Infow("navigation started",
		"simulated", simulate,
		"distance_m", s.route.TotalDistance,
		"blocked", s.blocked)
	s.notifyLocked()
	return nil
}

// Stop aborts the session back to idle. The alert clears; the destination,
// the last route, and the hazard set all stay. In-flight reroute fetches
// are not cancelled; their results are discarded on completion.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return
	}
	s.stopPlaybackLocked()
	s.alert = nil
	s.alertSeq++
	s.simulated = false
	s.speed = 0
	s.setStateLocked(StateIdle)
	s.wakeRun()
	s.log.Infow("navigation stopped")
	s.notifyLocked()
}

// ReportPosition folds one raw GPS fix into the session. Fixes are rejected
// while the session is not navigating or while playback is simulated, and
// invalid coordinates never reach the smoother. Arrival fires exactly once
// when the remaining distance first drops under the threshold.
func (s *Session) ReportPosition(fix smoothing.Fix) error {
	p := geo.Point{Latitude: fix.Latitude, Longitude: fix.Longitude}
	if !p.Valid() {
		return fmt.Errorf("invalid position fix lat=%v lng=%v", fix.Latitude, fix.Longitude)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNavigating && s.state != StateRerouting {
		return fmt.Errorf("position fix ignored while %s: %w", s.state, ErrInvalidState)
	}
	if s.simulated {
		return fmt.Errorf("position feed is ignored during simulated playback: %w", ErrInvalidState)
	}
	if fix.At.IsZero() {
		fix.At = time.Now()
	}

	m := s.filter.Estimate(fix)
	s.position = m.Position
	s.hasPos = true
	s.heading = m.Heading
	s.speed = m.SpeedKMH
	s.routeIdx = s.route.NearestIndex(m.Position)
	s.progressLocked(s.routeIdx, m.Position)
	s.appendBreadcrumbLocked(m.Position)

	if s.state == StateNavigating && s.remaining < s.cfg.ArrivalThresholdMeters {
		s.arriveLocked()
	}
	s.notifyLocked()
	return nil
}

// Status returns a copy of the current session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Route returns the active route, or nil when none is planned.
func (s *Session) Route() *routing.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Plan returns the last evaluation result, or nil.
func (s *Session) Plan() *PlanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Breadcrumbs returns a copy of the recent smoothed position trail.
func (s *Session) Breadcrumbs() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geo.Point(nil), s.breadcrumbs...)
}

// Subscribe registers for status snapshots, primed with the current one.
// Updates are coalesced latest-wins, so a slow consumer always sees the
// newest state. The cancel func must be called when done.
func (s *Session) Subscribe() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 1)
	s.subs[id] = ch
	ch <- s.statusLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) setStateLocked(next State) {
	s.state = next
	s.metrics.SetSessionState(string(next))
}

func (s *Session) stopPlaybackLocked() {
	s.ticker.Stop()
	s.tickC = nil
}

// wakeRun nudges the Run loop to re-read the playback channel after it
// changes. Safe to call with or without the session mutex held.
func (s *Session) wakeRun() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// arriveLocked fires the single Navigating to Arrived transition.
func (s *Session) arriveLocked() {
	if s.state != StateNavigating {
		return
	}
	s.stopPlaybackLocked()
	s.tripTime = time.Since(s.startedAt)
	s.remaining = 0
	s.speed = 0
	s.maneuver = nil
	s.setStateLocked(StateArrived)
	s.log.Infow("arrived at destination",
		"trip_duration", s.tripTime,
		"simulated", s.simulated)
}

// progressLocked recomputes remaining distance, ETA, step index, and the
// speed annotation for the route coordinate index the vehicle is at.
func (s *Session) progressLocked(idx int, pos geo.Point) {
	r := s.route
	if r == nil || len(r.Coordinates) == 0 {
		return
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.Coordinates) {
		idx = len(r.Coordinates) - 1
	}

	s.remaining = geo.Haversine(pos, r.Coordinates[idx]) + r.DistanceFrom(idx)
	progressed := r.TotalDistance - s.remaining
	if progressed < 0 {
		progressed = 0
	}
	s.stepIdx = r.StepAt(progressed)
	s.speedLimit = r.SpeedAt(idx)
	s.maneuver = upcomingManeuver(r, progressed, s.remaining)

	if r.TotalDistance > 0 {
		left := r.TotalDuration * s.remaining / r.TotalDistance
		s.eta = time.Now().Add(time.Duration(left * float64(time.Second)))
	}
}

func (s *Session) appendBreadcrumbLocked(p geo.Point) {
	if n := len(s.breadcrumbs); n > 0 && geo.Haversine(s.breadcrumbs[n-1], p) < s.cfg.BreadcrumbSpacingMeters {
		return
	}
	s.breadcrumbs = append(s.breadcrumbs, p)
	if len(s.breadcrumbs) > s.cfg.BreadcrumbCap {
		s.breadcrumbs = s.breadcrumbs[len(s.breadcrumbs)-s.cfg.BreadcrumbCap:]
	}
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:               s.state,
		Navigating:          s.state == StateNavigating || s.state == StateRerouting,
		Rerouting:           s.state == StateRerouting,
		Simulated:           s.simulated,
		Blocked:             s.blocked,
		Heading:             s.heading,
		SpeedKMH:            s.speed,
		SpeedLimitKMH:       s.speedLimit,
		DistanceRemaining:   s.remaining,
		CurrentStepIndex:    s.stepIdx,
		NextManeuver:        s.maneuver,
		Alert:               s.alert,
		TripDurationSeconds: s.tripTime.Seconds(),
	}
	if s.hasPos {
		p := s.position
		st.Position = &p
	}
	if s.hasDest {
		d := s.destination
		st.Destination = &d
	}
	if !s.eta.IsZero() && st.Navigating {
		t := s.eta
		st.ETA = &t
	}
	if !s.startedAt.IsZero() && s.state != StateIdle {
		t := s.startedAt
		st.StartedAt = &t
	}
	return st
}

// notifyLocked pushes the current snapshot to every subscriber without
// blocking. A full channel drops its stale snapshot first.
func (s *Session) notifyLocked() {
	st := s.statusLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// clearNotice drops a transient alert if it is still the current one.
func (s *Session) clearNotice(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertSeq != seq || s.alert == nil {
		return
	}
	s.alert = nil
	s.notifyLocked()
}

func upcomingManeuver(r *routing.Route, progressed, remaining float64) *UpcomingManeuver {
	if r == nil || len(r.Steps) == 0 {
		return nil
	}
	acc := 0.0
	for i, step := range r.Steps {
		acc += step.Distance
		if progressed < acc {
			if i+1 < len(r.Steps) {
				next := r.Steps[i+1]
				return &UpcomingManeuver{
					Type:           next.Maneuver.Type,
					Modifier:       next.Maneuver.Modifier,
					Road:           next.Name,
					DistanceMeters: acc - progressed,
				}
			}
			break
		}
	}
	return &UpcomingManeuver{Type: "arrive", DistanceMeters: remaining}
}
