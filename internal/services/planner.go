// Package services hosts the route evaluator and the navigation session
// built on the geometry, hazard, and provider layers.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/detour"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
)

const tracerName = "github.com/SPIDERMANrr/HYDRONAV/internal/services"

// RouteFetcher is the provider dependency of the planner. The OSRM client
// satisfies it; tests substitute scripted fetchers.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, waypoints []geo.Point) (*routing.Route, error)
}

// PlanOptions control one evaluation pass.
type PlanOptions struct {
	// AvoidHazards enables scoring and detour search. When false the direct
	// route is returned unconditionally, even through a hazard.
	AvoidHazards bool
	// AutoReroute marks plans triggered by the live monitor rather than a
	// user request; it only affects logging and metrics.
	AutoReroute bool
}

// PlanResult is the outcome of one evaluation pass. Blocked reports that no
// detour improved on the direct route, which is a first-class outcome, not
// an error: the direct route is still returned so the user sees some path.
type PlanResult struct {
	Route            *routing.Route `json:"route"`
	Blocked          bool           `json:"blocked"`
	HazardScore      int            `json:"hazard_score"`
	DirectScore      int            `json:"direct_score"`
	DetourLabel      string         `json:"detour_label,omitempty"`
	CandidatesTried  int            `json:"candidates_tried"`
	CandidatesFailed int            `json:"candidates_failed"`
}

// Clear reports whether the selected route avoids every hazard.
func (r *PlanResult) Clear() bool {
	return r != nil && r.HazardScore == 0
}

// Planner evaluates routes against the live hazard set: direct fetch, score,
// concurrent detour candidate fan-out, then rank by (score, distance).
type Planner struct {
	fetcher RouteFetcher
	zones   *hazard.Set
	log     *zap.SugaredLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewPlanner wires a planner. Metrics may be nil.
func NewPlanner(fetcher RouteFetcher, zones *hazard.Set, log *zap.SugaredLogger, metrics *observability.Metrics) *Planner {
	return &Planner{
		fetcher: fetcher,
		zones:   zones,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// Plan runs one evaluation pass from start to end.
//
//  1. Fetch the direct route; provider exhaustion is fatal for this call.
//  2. Without AvoidHazards the direct route wins unconditionally.
//  3. A direct score of zero wins immediately.
//  4. Otherwise the zones the route actually crosses merge into one
//     planning hazard seeding eight detour candidates.
//  5. All candidate routes are fetched concurrently; failures are dropped,
//     never aborting the batch.
//  6. Survivors are ranked by ascending hazard score, ties by ascending
//     distance, and the best is selected when it strictly improves on the
//     direct score. Otherwise the direct route returns with Blocked set.
//
// Selection is deterministic for identical provider responses; completion
// order never matters.
func (p *Planner) Plan(ctx context.Context, start, end geo.Point, opts PlanOptions) (*PlanResult, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "planner.Plan", trace.WithAttributes(
		attribute.Bool("avoid_hazards", opts.AvoidHazards),
		attribute.Bool("auto_reroute", opts.AutoReroute),
	))
	defer span.End()
	defer func() {
		p.metrics.ObservePlan(time.Since(started).Seconds())
	}()

	direct, err := p.fetcher.FetchRoute(ctx, []geo.Point{start, end})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch direct route: %w", err)
	}

	zones := p.zones.Snapshot()
	directScore := hazard.Score(direct.Coordinates, zones)
	span.SetAttributes(attribute.Int("direct_score", directScore))

	if !opts.AvoidHazards {
		return &PlanResult{Route: direct, HazardScore: directScore, DirectScore: directScore}, nil
	}
	if directScore == 0 {
		return &PlanResult{Route: direct}, nil
	}

	crossed := hazard.IntersectingZones(direct.Coordinates, zones)
	merged := hazard.Merge(crossed)
	candidates := detour.Candidates(start, end, merged)

	p.log.Infow("direct route crosses hazards, evaluating detours",
		"direct_score", directScore,
		"zones_crossed", len(crossed),
		"candidates", len(candidates),
		"auto_reroute", opts.AutoReroute)

	evals := p.evaluateCandidates(ctx, start, end, candidates, zones)

	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].HazardScore != evals[j].HazardScore {
			return evals[i].HazardScore < evals[j].HazardScore
		}
		return evals[i].Route.TotalDistance < evals[j].Route.TotalDistance
	})

	result := &PlanResult{
		DirectScore:      directScore,
		CandidatesTried:  len(candidates),
		CandidatesFailed: len(candidates) - len(evals),
	}

	if len(evals) > 0 && evals[0].HazardScore < directScore {
		best := evals[0]
		result.Route = best.Route
		result.HazardScore = best.HazardScore
		result.DetourLabel = best.DetourLabel
		span.SetAttributes(
			attribute.String("selected", best.DetourLabel),
			attribute.Int("hazard_score", best.HazardScore),
		)
		p.log.Infow("selected detour route",
			"label", best.DetourLabel,
			"hazard_score", best.HazardScore,
			"distance_m", best.Route.TotalDistance)
		return result, nil
	}

	// No detour improved on the direct route. The user still gets a path,
	// flagged as blocked.
	result.Route = direct
	result.HazardScore = directScore
	result.Blocked = true
	span.SetAttributes(attribute.Bool("blocked", true))
	p.log.Warnw("no detour clears the hazards, returning direct route as blocked",
		"direct_score", directScore,
		"candidates_failed", result.CandidatesFailed)
	return result, nil
}

// evaluateCandidates fetches every candidate route concurrently and scores
// the survivors. All fetches are issued before any is awaited; results land
// in slots indexed by candidate so ranking never depends on completion
// order. A failed fetch drops its candidate without aborting the batch.
func (p *Planner) evaluateCandidates(ctx context.Context, start, end geo.Point, candidates []detour.Candidate, zones []hazard.Zone) []routing.Evaluation {
	ctx, span := p.tracer.Start(ctx, "planner.evaluateCandidates", trace.WithAttributes(
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	type outcome struct {
		route *routing.Route
		err   error
	}
	outcomes := make([]outcome, len(candidates))

	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c detour.Candidate) {
			defer wg.Done()
			route, err := p.fetcher.FetchRoute(ctx, []geo.Point{start, c.Waypoint, end})
			outcomes[i] = outcome{route: route, err: err}
		}(i, c)
	}
	wg.Wait()

	evals := make([]routing.Evaluation, 0, len(candidates))
	for i, c := range candidates {
		if outcomes[i].err != nil {
			p.metrics.RecordCandidateFetch("failed")
			p.log.Debugw("detour candidate fetch failed", "label", c.Label, "error", outcomes[i].err)
			continue
		}
		p.metrics.RecordCandidateFetch("ok")
		evals = append(evals, routing.Evaluation{
			Route:       outcomes[i].route,
			HazardScore: hazard.Score(outcomes[i].route.Coordinates, zones),
			DetourLabel: c.Label,
		})
	}
	return evals
}
