package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/detour"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "score":
		handleScore()
	case "candidates":
		handleCandidates()
	case "merge":
		handleMerge()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleScore() {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	routeStr := fs.String("route", "", "Route coordinates as lat,lng;lat,lng;...")
	centerStr := fs.String("center", "", "Zone center as lat,lng")
	radius := fs.Float64("radius", 400, "Zone radius in meters")
	polygonStr := fs.String("polygon", "", "Zone polygon as lat,lng;lat,lng;... (overrides center/radius)")

	fs.Parse(os.Args[2:])

	if *routeStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-detour score --route \"16.3067,80.4365;16.3500,80.5000;16.5062,80.6480\" --center \"16.3500,80.5000\" --radius 400")
		fmt.Println("  (Score a three-point route against a 400 m flood zone on its middle point)")
		os.Exit(1)
	}

	route, err := parseCoordinatePairs(*routeStr)
	if err != nil {
		log.Fatalf("Error parsing route: %v", err)
	}

	zone, err := buildZone("cli-zone", *centerStr, *radius, *polygonStr)
	if err != nil {
		log.Fatalf("Error building zone: %v", err)
	}

	score := hazard.Score(route, []hazard.Zone{zone})

	fmt.Printf("Hazard scoring:\n")
	fmt.Printf("  Route points: %d (%.2f km)\n", len(route), geo.PathLength(route)/1000)
	fmt.Printf("  Zone: %s, center (%.5f, %.5f), radius %.0f m\n",
		zone.Kind, zone.Center.Latitude, zone.Center.Longitude, zone.RadiusMeters)
	fmt.Printf("  Points inside zone: %d\n", score)

	if score > 0 {
		fmt.Printf("  A route with this score would trigger detour planning.\n")
	} else if hazard.RouteIntersects(route, zone) {
		fmt.Printf("  Boundary case: the padded-box monitor check still flags this route.\n")
	} else {
		fmt.Printf("  Route is clear of this zone.\n")
	}
}

func handleCandidates() {
	fs := flag.NewFlagSet("candidates", flag.ExitOnError)
	fromStr := fs.String("from", "", "Trip start as lat,lng")
	toStr := fs.String("to", "", "Trip destination as lat,lng")
	centerStr := fs.String("center", "", "Blocking zone center as lat,lng")
	radius := fs.Float64("radius", 400, "Blocking zone radius in meters")

	fs.Parse(os.Args[2:])

	if *fromStr == "" || *toStr == "" || *centerStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-detour candidates --from \"16.3067,80.4365\" --to \"16.5062,80.6480\" --center \"16.4000,80.5400\" --radius 500")
		fmt.Println("  (Show the eight waypoints the planner would try around the zone)")
		os.Exit(1)
	}

	from, err := parsePoint(*fromStr)
	if err != nil {
		log.Fatalf("Error parsing --from: %v", err)
	}
	to, err := parsePoint(*toStr)
	if err != nil {
		log.Fatalf("Error parsing --to: %v", err)
	}
	zone, err := buildZone("cli-zone", *centerStr, *radius, "")
	if err != nil {
		log.Fatalf("Error building zone: %v", err)
	}

	cands := detour.Candidates(from, to, zone)

	fmt.Printf("Detour candidates for (%.5f, %.5f) -> (%.5f, %.5f):\n",
		from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	fmt.Printf("  Zone center (%.5f, %.5f), radius %.0f m\n\n",
		zone.Center.Latitude, zone.Center.Longitude, zone.RadiusMeters)

	for i, c := range cands {
		clearance := geo.Haversine(c.Waypoint, zone.Center)
		extra := geo.Haversine(from, c.Waypoint) + geo.Haversine(c.Waypoint, to) - geo.Haversine(from, to)
		inside := ""
		if geo.PointInPolygon(c.Waypoint, zone.Polygon) {
			inside = "  STILL INSIDE ZONE"
		}
		fmt.Printf("  %d. %-12s (%.5f, %.5f)  clearance %.0f m  extra %.0f m%s\n",
			i+1, c.Label, c.Waypoint.Latitude, c.Waypoint.Longitude, clearance, extra, inside)
	}
}

func handleMerge() {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	zonesStr := fs.String("zones", "", "Circular zones as lat,lng:radius;lat,lng:radius;...")

	fs.Parse(os.Args[2:])

	if *zonesStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-detour merge --zones \"16.3500,80.5000:300;16.3520,80.5040:250\"")
		fmt.Println("  (Merge two overlapping flood zones into one detour target)")
		os.Exit(1)
	}

	var zones []hazard.Zone
	for _, part := range strings.Split(*zonesStr, ";") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 2 {
			log.Fatalf("Error parsing zone %q: want lat,lng:radius", part)
		}
		center, err := parsePoint(fields[0])
		if err != nil {
			log.Fatalf("Error parsing zone center %q: %v", fields[0], err)
		}
		r, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			log.Fatalf("Error parsing zone radius %q: %v", fields[1], err)
		}
		zone, err := hazard.NewCircularZone(fmt.Sprintf("cli-zone-%d", len(zones)+1), center, r)
		if err != nil {
			log.Fatalf("Error building zone: %v", err)
		}
		zones = append(zones, zone)
	}

	merged := hazard.Merge(zones)

	fmt.Printf("Merged %d zones:\n", len(zones))
	for i, z := range zones {
		fmt.Printf("  %d: center (%.5f, %.5f), radius %.0f m\n",
			i+1, z.Center.Latitude, z.Center.Longitude, z.RadiusMeters)
	}
	fmt.Printf("Result:\n")
	fmt.Printf("  Center: (%.5f, %.5f)\n", merged.Center.Latitude, merged.Center.Longitude)
	fmt.Printf("  Radius: %.0f m\n", merged.RadiusMeters)
	fmt.Printf("  Bounds: [%.5f, %.5f] x [%.5f, %.5f]\n",
		merged.Bounds.MinLat, merged.Bounds.MaxLat, merged.Bounds.MinLng, merged.Bounds.MaxLng)
}

func buildZone(name, centerStr string, radius float64, polygonStr string) (hazard.Zone, error) {
	if polygonStr != "" {
		polygon, err := parseCoordinatePairs(polygonStr)
		if err != nil {
			return hazard.Zone{}, err
		}
		return hazard.NewPolygonZone(name, hazard.KindManualPolygon, polygon)
	}
	if centerStr == "" {
		return hazard.Zone{}, fmt.Errorf("either --center or --polygon is required")
	}
	center, err := parsePoint(centerStr)
	if err != nil {
		return hazard.Zone{}, err
	}
	return hazard.NewCircularZone(name, center, radius)
}

func parsePoint(s string) (geo.Point, error) {
	coords := strings.Split(strings.TrimSpace(s), ",")
	if len(coords) != 2 {
		return geo.Point{}, fmt.Errorf("invalid coordinate pair: %s", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude: %s", coords[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude: %s", coords[1])
	}
	return geo.NewPoint(lat, lng)
}

func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))
	for _, pair := range pairs {
		p, err := parsePoint(pair)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func printUsage() {
	fmt.Printf(`test-detour - Hazard scoring and detour candidate inspection tool

USAGE:
    test-detour <command> [options]

COMMANDS:
    score         Score a route against a hazard zone
    candidates    Show the eight detour waypoints for a blocked trip
    merge         Merge circular zones into one detour target
    help          Show this help message

EXAMPLES:
    # Does this route cross the zone, and how badly?
    test-detour score --route "16.3067,80.4365;16.3500,80.5000;16.5062,80.6480" --center "16.3500,80.5000" --radius 400

    # Where would the planner route around it?
    test-detour candidates --from "16.3067,80.4365" --to "16.5062,80.6480" --center "16.4000,80.5400" --radius 500

    # What do two overlapping zones merge into?
    test-detour merge --zones "16.3500,80.5000:300;16.3520,80.5040:250"

For more information, visit: https://github.com/SPIDERMANrr/HYDRONAV
`)
}
