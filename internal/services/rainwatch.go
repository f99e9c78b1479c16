package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/openweather"
	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// rainwatchSource tags zones spawned from live rain observations.
const rainwatchSource = "rainwatch"

// rainCheckTimeout bounds one conditions request.
const rainCheckTimeout = 15 * time.Second

// RainWatch polls current conditions around the navigating vehicle and
// spawns a circular risk zone when the rain intensity crosses the heavy
// rain threshold. Clearing skies withdraw the zone again.
type RainWatch struct {
	weather *openweather.Client
	zones   *hazard.Set
	session *Session
	cfg     config.WeatherConfig
	log     *zap.SugaredLogger
}

// NewRainWatch wires the rain watcher.
func NewRainWatch(weather *openweather.Client, zones *hazard.Set, session *Session, cfg config.WeatherConfig, log *zap.SugaredLogger) *RainWatch {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Minute
	}
	if cfg.RiskRadiusMeters <= 0 {
		cfg.RiskRadiusMeters = 500
	}
	return &RainWatch{
		weather: weather,
		zones:   zones,
		session: session,
		cfg:     cfg,
		log:     log,
	}
}

// Start polls on the configured interval until ctx ends.
func (r *RainWatch) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Check(ctx)
			}
		}
	}()
}

// Check runs one conditions probe. It only acts while the session is
// navigating with a known position; a feed error leaves the zone set
// untouched.
func (r *RainWatch) Check(ctx context.Context) {
	status := r.session.Status()
	if !status.Navigating || status.Position == nil {
		return
	}
	at := *status.Position

	checkCtx, cancel := context.WithTimeout(ctx, rainCheckTimeout)
	defer cancel()

	conditions, err := r.weather.CurrentConditions(checkCtx, at)
	if err != nil {
		r.log.Warnw("rain conditions check failed", "error", err)
		return
	}

	if conditions.RainMMPerHour < r.cfg.RainThresholdMMH {
		if r.hasRainZone() {
			r.zones.ReplaceSource(rainwatchSource, nil)
			r.log.Infow("rain eased, withdrawing rain risk zone",
				"rain_mmh", conditions.RainMMPerHour)
		}
		return
	}

	// Heavy rain. Skip re-spawning while an earlier zone still covers the
	// vehicle, otherwise the set would churn a fresh zone every poll.
	if existing, ok := r.rainZone(); ok && geo.Haversine(existing.Center, at) < r.cfg.RiskRadiusMeters/2 {
		return
	}

	name := "Heavy rain area"
	if conditions.LocationName != "" {
		name = fmt.Sprintf("Heavy rain near %s", conditions.LocationName)
	}
	zone, err := hazard.NewCircularZone(name, at, r.cfg.RiskRadiusMeters)
	if err != nil {
		r.log.Errorw("failed to build rain risk zone", "error", err)
		return
	}
	zone.Source = rainwatchSource

	r.zones.ReplaceSource(rainwatchSource, []hazard.Zone{zone})
	r.log.Warnw("heavy rain detected, spawned risk zone",
		"rain_mmh", conditions.RainMMPerHour,
		"threshold_mmh", r.cfg.RainThresholdMMH,
		"radius_m", r.cfg.RiskRadiusMeters,
		"description", conditions.Description)
}

func (r *RainWatch) rainZone() (hazard.Zone, bool) {
	for _, z := range r.zones.Snapshot() {
		if z.Source == rainwatchSource {
			return z, true
		}
	}
	return hazard.Zone{}, false
}

func (r *RainWatch) hasRainZone() bool {
	_, ok := r.rainZone()
	return ok
}
