// Package observability bundles the Prometheus collectors and the
// OpenTelemetry tracer wiring shared across the engine.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's Prometheus collectors. All recorder
// methods are nil-safe so components can run unmetered in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	PlanDuration     prometheus.Histogram
	Reroutes         *prometheus.CounterVec
	CandidateFetches *prometheus.CounterVec
	HazardZones      *prometheus.GaugeVec
	SessionState     *prometheus.GaugeVec
}

// NewMetrics registers the engine collectors against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	providerRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_provider_requests_total",
		Help: "Route provider requests, labeled by endpoint (primary/backup) and outcome (ok/empty/error).",
	}, []string{"endpoint", "outcome"}), "routing_provider_requests_total")
	if err != nil {
		return nil, err
	}

	providerLatency, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routing_provider_request_duration_seconds",
		Help:    "Route provider request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"}), "routing_provider_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	planDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_plan_duration_seconds",
		Help:    "End-to-end route evaluation latency, including candidate fan-out.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}), "route_plan_duration_seconds")
	if err != nil {
		return nil, err
	}

	reroutes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_reroutes_total",
		Help: "Automatic reroute attempts, labeled by trigger.",
	}, []string{"trigger"}), "navigation_reroutes_total")
	if err != nil {
		return nil, err
	}

	candidates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detour_candidate_fetches_total",
		Help: "Detour candidate route fetches, labeled by outcome (ok/failed).",
	}, []string{"outcome"}), "detour_candidate_fetches_total")
	if err != nil {
		return nil, err
	}

	zones, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hazard_zones",
		Help: "Current number of active hazard zones, labeled by kind.",
	}, []string{"kind"}), "hazard_zones")
	if err != nil {
		return nil, err
	}

	sessionState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "navigation_session_state",
		Help: "Navigation state machine indicator: 1 for the current state, 0 otherwise.",
	}, []string{"state"}), "navigation_session_state")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:         gatherer,
		ProviderRequests: providerRequests,
		ProviderLatency:  providerLatency,
		PlanDuration:     planDuration,
		Reroutes:         reroutes,
		CandidateFetches: candidates,
		HazardZones:      zones,
		SessionState:     sessionState,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveProviderRequest records one provider attempt.
func (m *Metrics) ObserveProviderRequest(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if m.ProviderRequests != nil {
		m.ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
	}
	if m.ProviderLatency != nil {
		m.ProviderLatency.WithLabelValues(endpoint).Observe(seconds)
	}
}

// ObservePlan records one full route evaluation.
func (m *Metrics) ObservePlan(seconds float64) {
	if m == nil || m.PlanDuration == nil {
		return
	}
	m.PlanDuration.Observe(seconds)
}

// RecordReroute counts one automatic reroute attempt.
func (m *Metrics) RecordReroute(trigger string) {
	if m == nil || m.Reroutes == nil {
		return
	}
	m.Reroutes.WithLabelValues(trigger).Inc()
}

// RecordCandidateFetch counts one detour candidate fetch.
func (m *Metrics) RecordCandidateFetch(outcome string) {
	if m == nil || m.CandidateFetches == nil {
		return
	}
	m.CandidateFetches.WithLabelValues(outcome).Inc()
}

// SetZoneCounts replaces the per-kind zone gauges with the given counts.
func (m *Metrics) SetZoneCounts(byKind map[string]int) {
	if m == nil || m.HazardZones == nil {
		return
	}
	m.HazardZones.Reset()
	for kind, n := range byKind {
		m.HazardZones.WithLabelValues(kind).Set(float64(n))
	}
}

// SetSessionState marks the current navigation state.
func (m *Metrics) SetSessionState(state string) {
	if m == nil || m.SessionState == nil {
		return
	}
	m.SessionState.Reset()
	m.SessionState.WithLabelValues(state).Set(1)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
