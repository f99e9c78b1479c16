package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// TickSource drives simulated playback. The wall-clock implementation wraps
// time.Ticker; tests substitute a hand-cranked channel.
type TickSource interface {
	// Start returns a channel delivering ticks at the given interval,
	// replacing any previous run.
	Start(interval time.Duration) <-chan time.Time
	// Stop halts tick delivery.
	Stop()
}

// TimeTicker is the wall-clock TickSource.
type TimeTicker struct {
	t *time.Ticker
}

func (tt *TimeTicker) Start(interval time.Duration) <-chan time.Time {
	tt.Stop()
	tt.t = time.NewTicker(interval)
	return tt.t.C
}

func (tt *TimeTicker) Stop() {
	if tt.t != nil {
		tt.t.Stop()
		tt.t = nil
	}
}

// Run owns the live hazard monitor and simulated playback in one loop. It
// blocks until ctx is cancelled, so callers start it on its own goroutine.
// Zone change signals are coalesced; each one triggers at most one
// compromise check, and the state machine guarantees at most one reroute
// is in flight because checks only fire from Navigating, never Rerouting.
func (s *Session) Run(ctx context.Context) {
	changes, cancel := s.zones.Subscribe()
	defer cancel()

	for {
		s.mu.Lock()
		tickC := s.tickC
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			// Playback channel changed; re-select.
		case <-changes:
			s.onZonesChanged(ctx)
		case <-tickC:
			s.onTick()
		}
	}
}

// onZonesChanged re-tests the remaining route against the full zone set
// and kicks off a reroute on the first compromise found.
func (s *Session) onZonesChanged(ctx context.Context) {
	zones := s.zones.Snapshot()
	s.publishZoneCounts(zones)

	s.mu.Lock()
	if s.state != StateNavigating || s.route == nil || !s.hasPos {
		s.mu.Unlock()
		return
	}

	remaining := append([]geo.Point(nil), s.route.Coordinates[s.routeIdx:]...)
	var hit *hazard.Zone
	for i := range zones {
		if hazard.RouteIntersects(remaining, zones[i]) {
			hit = &zones[i]
			break
		}
	}
	if hit == nil {
		s.mu.Unlock()
		return
	}

	from := s.position
	dest := s.destination
	s.setStateLocked(StateRerouting)
	s.alert = &Alert{
		Kind:      "hazard",
		Text:      fmt.Sprintf("Hazard ahead: %s. Finding a safer route.", hit.Name),
		CreatedAt: time.Now(),
	}
	s.alertSeq++
	s.notifyLocked()
	s.mu.Unlock()

	s.metrics.RecordReroute("hazard_change")
	s.log.Warnw("active route compromised, rerouting",
		"zone", hit.Name,
		"zone_kind", hit.Kind,
		"from_lat", from.Latitude,
		"from_lng", from.Longitude)

	result, err := s.planner.Plan(ctx, from, dest, PlanOptions{AvoidHazards: true, AutoReroute: true})
	s.completeReroute(result, err)
}

// completeReroute settles one reroute evaluation. If the session stopped
// while the plan was in flight the result is discarded.
func (s *Session) completeReroute(result *PlanResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRerouting {
		s.log.Debugw("discarding reroute result, session no longer rerouting", "state", s.state)
		return
	}

	if err != nil {
		s.alert = &Alert{
			Kind:      "warning",
			Text:      "Rerouting failed. Keeping the previous route.",
			CreatedAt: time.Now(),
		}
		s.alertSeq++
		s.setStateLocked(StateNavigating)
		s.notifyLocked()
		s.log.Errorw("reroute evaluation failed", "error", err)
		return
	}

	s.route = result.Route
	s.plan = result
	s.blocked = result.Blocked
	s.routeIdx = 0
	if s.hasPos {
		s.routeIdx = result.Route.NearestIndex(s.position)
		s.progressLocked(s.routeIdx, s.position)
	}

	s.alertSeq++
	if result.Clear() {
		s.alert = &Alert{
			Kind:      "notice",
			Text:      "Reroute complete. The new route avoids all hazards.",
			Transient: true,
			CreatedAt: time.Now(),
		}
		seq := s.alertSeq
		time.AfterFunc(s.cfg.RerouteNoticeTTL, func() { s.clearNotice(seq) })
	} else {
		s.alert = &Alert{
			Kind:      "warning",
			Text:      "No safe path found. The route still crosses a hazard area.",
			CreatedAt: time.Now(),
		}
	}
	s.setStateLocked(StateNavigating)
	s.notifyLocked()
	s.log.Infow("reroute complete",
		"hazard_score", result.HazardScore,
		"blocked", result.Blocked,
		"detour", result.DetourLabel)
}

// onTick advances simulated playback by one route coordinate, recomputing
// heading, speed, and remaining distance from the consumed segment, and
// rolls the synthetic hazard spawner against the remaining route.
func (s *Session) onTick() {
	s.mu.Lock()
	if s.state != StateNavigating || !s.simulated || s.route == nil {
		s.mu.Unlock()
		return
	}

	coords := s.route.Coordinates
	if s.routeIdx >= len(coords)-1 {
		s.arriveLocked()
		s.notifyLocked()
		s.mu.Unlock()
		return
	}

	prev := coords[s.routeIdx]
	s.routeIdx++
	cur := coords[s.routeIdx]

	s.position = cur
	s.hasPos = true
	s.heading = geo.Bearing(prev, cur)
	s.speed = geo.Haversine(prev, cur) / s.cfg.SimTick.Seconds() * 3.6
	s.progressLocked(s.routeIdx, cur)
	s.appendBreadcrumbLocked(cur)

	var remaining []geo.Point
	if s.routeIdx >= len(coords)-1 {
		s.arriveLocked()
	} else {
		remaining = append([]geo.Point(nil), coords[s.routeIdx:]...)
	}
	s.notifyLocked()
	s.mu.Unlock()

	// The spawner feeds the zone set, whose change signal loops back into
	// onZonesChanged on the next Run iteration.
	if len(remaining) > 0 && s.spawner != nil {
		s.spawner.MaybeSpawn(remaining)
	}
}

func (s *Session) publishZoneCounts(zones []hazard.Zone) {
	counts := make(map[string]int, 3)
	for _, z := range zones {
		counts[string(z.Kind)]++
	}
	s.metrics.SetZoneCounts(counts)
}
