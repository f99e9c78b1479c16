// Package floodmap imports flood-plain polygons from an ESRI shapefile
// as hazard zones at startup.
package floodmap

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// Loader reads flood-plain shapefiles.
type Loader struct {
	log *zap.SugaredLogger
}

// NewLoader creates a shapefile loader.
func NewLoader(log *zap.SugaredLogger) *Loader {
	return &Loader{log: log}
}

// Load reads every polygon record from the shapefile at path into hazard
// zones. Zone names come from the attribute column nameField when it
// exists. Hole rings are skipped; each outer ring becomes its own zone.
func (l *Loader) Load(path, nameField string) ([]hazard.Zone, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer reader.Close()

	nameIdx := fieldIndex(reader.Fields(), nameField)
	if nameIdx < 0 && nameField != "" {
		l.log.Warnw("shapefile has no name column, using generated names",
			"path", path, "field", nameField)
	}

	var zones []hazard.Zone
	for reader.Next() {
		n, shape := reader.Shape()

		polygon, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		name := ""
		if nameIdx >= 0 {
			name = strings.TrimSpace(reader.ReadAttribute(n, nameIdx))
		}
		if name == "" {
			name = fmt.Sprintf("Flood plain %d", n+1)
		}

		for _, part := range splitParts(polygon.Points, polygon.Parts) {
			ring := toPoints(part)
			if len(ring) < 3 || isHole(ring) {
				continue
			}
			zone, err := hazard.NewPolygonZone(name, hazard.KindGeocodedArea, ring)
			if err != nil {
				l.log.Warnw("skipping degenerate flood plain ring",
					"record", n, "name", name, "error", err)
				continue
			}
			zone.Source = "floodmap"
			zones = append(zones, zone)
		}
	}

	l.log.Infow("loaded flood plain shapefile", "path", path, "zones", len(zones))
	return zones, nil
}

// fieldIndex finds an attribute column by name. Shapefile field names
// are fixed-width byte arrays padded with nulls.
func fieldIndex(fields []shp.Field, name string) int {
	if name == "" {
		return -1
	}
	for i, field := range fields {
		fieldName := strings.TrimRight(string(field.Name[:]), "\x00 ")
		if strings.EqualFold(fieldName, name) {
			return i
		}
	}
	return -1
}

// splitParts slices a record's point array into its rings.
func splitParts(points []shp.Point, parts []int32) [][]shp.Point {
	if len(parts) <= 1 {
		return [][]shp.Point{points}
	}
	rings := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < end {
			rings = append(rings, points[int(start):end])
		}
	}
	return rings
}

func toPoints(ring []shp.Point) []geo.Point {
	points := make([]geo.Point, 0, len(ring))
	for _, pt := range ring {
		p := geo.Point{Latitude: pt.Y, Longitude: pt.X}
		if p.Valid() {
			points = append(points, p)
		}
	}
	return points
}

// isHole reports whether a ring winds counter-clockwise. Shapefile outer
// rings wind clockwise; counter-clockwise rings are interior holes.
func isHole(ring []geo.Point) bool {
	var doubled float64
	for i := range ring {
		j := (i + 1) % len(ring)
		doubled += ring[i].Longitude*ring[j].Latitude - ring[j].Longitude*ring[i].Latitude
	}
	return doubled > 0
}
