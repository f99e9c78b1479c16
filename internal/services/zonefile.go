package services

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// zoneFileSource tags every zone loaded from the seed file so a reload can
// swap them atomically.
const zoneFileSource = "zonefile"

// ZoneFileService loads seed hazard zones from a YAML file and reloads
// them whenever the file changes on disk.
type ZoneFileService struct {
	path  string
	zones *hazard.Set
	log   *zap.SugaredLogger
}

// NewZoneFileService builds the loader for the given file path.
func NewZoneFileService(path string, zones *hazard.Set, log *zap.SugaredLogger) *ZoneFileService {
	return &ZoneFileService{path: path, zones: zones, log: log}
}

type zoneFileDoc struct {
	Zones []zoneFileEntry `yaml:"zones"`
}

type zoneFileEntry struct {
	Name    string          `yaml:"name"`
	Kind    string          `yaml:"kind"`
	Polygon []zoneFilePoint `yaml:"polygon"`
	Center  *zoneFilePoint  `yaml:"center"`
	RadiusM float64         `yaml:"radius_m"`
}

type zoneFilePoint struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// Load parses the file and replaces the zone file's slice of the live set.
func (z *ZoneFileService) Load() error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(z.path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to read zones file %s: %w", z.path, err)
	}

	var doc zoneFileDoc
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("failed to parse zones file %s: %w", z.path, err)
	}

	zones := make([]hazard.Zone, 0, len(doc.Zones))
	for i, entry := range doc.Zones {
		zone, err := entry.build()
		if err != nil {
			z.log.Warnw("skipping zone file entry", "index", i, "name", entry.Name, "error", err)
			continue
		}
		zone.Source = zoneFileSource
		zones = append(zones, zone)
	}

	z.zones.ReplaceSource(zoneFileSource, zones)
	z.log.Infow("zone file loaded", "path", z.path, "zones", len(zones))
	return nil
}

// Watch reloads the file on every change until ctx ends. The initial load
// must already have happened; a broken edit keeps the last good zones.
func (z *ZoneFileService) Watch(ctx context.Context) error {
	provider := file.Provider(z.path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			z.log.Errorw("zone file watch error", "path", z.path, "error", err)
			return
		}
		if err := z.Load(); err != nil {
			z.log.Errorw("zone file reload failed, keeping previous zones", "path", z.path, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch zones file %s: %w", z.path, err)
	}

	go func() {
		<-ctx.Done()
		if err := provider.Unwatch(); err != nil {
			z.log.Warnw("failed to stop zone file watcher", "error", err)
		}
	}()
	return nil
}

func (e zoneFileEntry) build() (hazard.Zone, error) {
	if len(e.Polygon) > 0 {
		kind := hazard.KindManualPolygon
		switch e.Kind {
		case "", string(hazard.KindManualPolygon):
		case string(hazard.KindGeocodedArea):
			kind = hazard.KindGeocodedArea
		default:
			return hazard.Zone{}, fmt.Errorf("unknown polygon zone kind %q", e.Kind)
		}

		points := make([]geo.Point, len(e.Polygon))
		for i, p := range e.Polygon {
			points[i] = geo.Point{Latitude: p.Lat, Longitude: p.Lng}
		}
		return hazard.NewPolygonZone(e.Name, kind, points)
	}

	if e.Center != nil {
		center := geo.Point{Latitude: e.Center.Lat, Longitude: e.Center.Lng}
		return hazard.NewCircularZone(e.Name, center, e.RadiusM)
	}

	return hazard.Zone{}, fmt.Errorf("zone needs a polygon or a center with radius_m")
}
