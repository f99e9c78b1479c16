// Package kmlexport renders the live engine state as a KML document so the
// active route, the hazard set, and the breadcrumb trail can be inspected in
// Google Earth or any KML-capable map tool.
package kmlexport

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
)

// Document bundles everything one export carries. Any field may be empty;
// the writer only emits sections that have content.
type Document struct {
	Name        string
	Route       *routing.Route
	Zones       []hazard.Zone
	Breadcrumbs []geo.Point
}

// Write renders doc as an indented KML document.
func Write(w io.Writer, doc Document) error {
	name := doc.Name
	if name == "" {
		name = "HYDRONAV export"
	}

	children := []kml.Element{
		kml.Name(name),
		kml.SharedStyle("route",
			kml.LineStyle(
				kml.Color(color.RGBA{R: 0x1e, G: 0x6e, B: 0xff, A: 0xff}),
				kml.Width(4),
			),
		),
		kml.SharedStyle("trail",
			kml.LineStyle(
				kml.Color(color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xb4}),
				kml.Width(2),
			),
		),
		zoneStyle(hazard.KindManualPolygon, color.RGBA{R: 0xd9, G: 0x26, B: 0x26, A: 0xff}),
		zoneStyle(hazard.KindGeocodedArea, color.RGBA{R: 0xe8, G: 0x8c, B: 0x1e, A: 0xff}),
		zoneStyle(hazard.KindCircularRisk, color.RGBA{R: 0x7a, G: 0x3d, B: 0xc8, A: 0xff}),
	}

	if r := doc.Route; r != nil && len(r.Coordinates) >= 2 {
		children = append(children,
			kml.Placemark(
				kml.Name("Active route"),
				kml.Description(fmt.Sprintf("%.1f km, %.0f min", r.TotalDistance/1000, r.TotalDuration/60)),
				kml.StyleURL("#route"),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coordinates(r.Coordinates)...),
				),
			),
			kml.Placemark(
				kml.Name("Destination"),
				kml.Point(
					kml.Coordinates(coordinate(r.Coordinates[len(r.Coordinates)-1])),
				),
			),
		)
	}

	if len(doc.Zones) > 0 {
		folder := []kml.Element{kml.Name("Hazard zones")}
		for _, z := range doc.Zones {
			folder = append(folder, zonePlacemark(z))
		}
		children = append(children, kml.Folder(folder...))
	}

	if len(doc.Breadcrumbs) >= 2 {
		children = append(children,
			kml.Placemark(
				kml.Name("Breadcrumb trail"),
				kml.StyleURL("#trail"),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coordinates(doc.Breadcrumbs)...),
				),
			),
		)
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func zonePlacemark(z hazard.Zone) kml.Element {
	desc := fmt.Sprintf("kind: %s", z.Kind)
	if z.Source != "" {
		desc += fmt.Sprintf(", source: %s", z.Source)
	}
	if z.RadiusMeters > 0 {
		desc += fmt.Sprintf(", radius: %.0f m", z.RadiusMeters)
	}

	return kml.Placemark(
		kml.Name(z.Name),
		kml.Description(desc),
		kml.StyleURL("#"+zoneStyleID(z.Kind)),
		kml.Polygon(
			kml.OuterBoundaryIs(
				kml.LinearRing(
					kml.Coordinates(ring(z.Polygon)...),
				),
			),
		),
	)
}

func zoneStyle(kind hazard.Kind, line color.RGBA) kml.Element {
	fill := line
	fill.A = 0x55
	return kml.SharedStyle(zoneStyleID(kind),
		kml.LineStyle(
			kml.Color(line),
			kml.Width(2),
		),
		kml.PolyStyle(
			kml.Color(fill),
			kml.Fill(true),
			kml.Outline(true),
		),
	)
}

func zoneStyleID(kind hazard.Kind) string {
	return "zone-" + string(kind)
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = coordinate(p)
	}
	return coords
}

// ring closes the polygon explicitly. Zones store open rings, but a KML
// LinearRing must repeat its first vertex at the end.
func ring(points []geo.Point) []kml.Coordinate {
	coords := coordinates(points)
	if len(coords) > 0 && coords[0] != coords[len(coords)-1] {
		coords = append(coords, coords[0])
	}
	return coords
}
