package hazard

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// spawnLookahead is how many route points ahead of the vehicle a synthetic
// zone is dropped.
const spawnLookahead = 10

// Spawner drops synthetic circular hazards onto the remaining route during
// simulated playback so the reroute path gets exercised without waiting on
// a real feed. Not safe for concurrent use; the session loop owns it.
type Spawner struct {
	set         *Set
	probability float64
	radius      float64
	rng         *rand.Rand
	log         *zap.SugaredLogger
	spawned     int
}

// NewSpawner builds a spawner rolling at the given per-tick probability.
// The rng is injected so tests can drive deterministic outcomes.
func NewSpawner(set *Set, probability, radiusMeters float64, rng *rand.Rand, log *zap.SugaredLogger) *Spawner {
	return &Spawner{
		set:         set,
		probability: probability,
		radius:      radiusMeters,
		rng:         rng,
		log:         log,
	}
}

// MaybeSpawn rolls once against the configured probability. On a hit it
// registers a circular_risk zone centered a short way ahead on the
// remaining route and reports the new zone. Routes too short to look ahead
// on never spawn.
func (sp *Spawner) MaybeSpawn(remaining []geo.Point) (Zone, bool) {
	if len(remaining) < 2 || sp.probability <= 0 {
		return Zone{}, false
	}
	if sp.rng.Float64() >= sp.probability {
		return Zone{}, false
	}

	idx := spawnLookahead
	if idx > len(remaining)-1 {
		idx = len(remaining) - 1
	}

	sp.spawned++
	zone, err := NewCircularZone(fmt.Sprintf("Flash flood report %d", sp.spawned), remaining[idx], sp.radius)
	if err != nil {
		return Zone{}, false
	}
	zone.Source = "simulation"

	sp.set.Add(zone)
	sp.log.Infow("spawned synthetic hazard",
		"zone_id", zone.ID,
		"lat", zone.Center.Latitude,
		"lng", zone.Center.Longitude,
		"radius_m", sp.radius)
	return zone, true
}
