// Package floodwatch ingests flood advisory KML feeds and turns their
// placemarks into hazard zones.
package floodwatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// defaultPointRadius covers point-only advisories that carry no radius
// attribute.
const defaultPointRadius = 300.0

// Feed is one configured advisory source.
type Feed struct {
	Name string
	URL  string
}

// Parser downloads and parses flood advisory KML feeds.
type Parser struct {
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// Advisory is one parsed feed placemark.
type Advisory struct {
	FeedName        string      `json:"feed_name"`
	Name            string      `json:"name"`
	DescriptionHTML string      `json:"description_html,omitempty"`
	DescriptionText string      `json:"description_text,omitempty"`
	Polygon         []geo.Point `json:"polygon,omitempty"`
	Point           *geo.Point  `json:"point,omitempty"`
	RadiusMeters    float64     `json:"radius_m,omitempty"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// NewParser creates a feed parser.
func NewParser(log *zap.SugaredLogger) *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Fetch downloads one feed and parses its placemarks. Placemarks without
// usable geometry are dropped.
func (p *Parser) Fetch(ctx context.Context, feed Feed) ([]Advisory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed error %d from %s", resp.StatusCode, feed.URL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	advisories, err := p.ParseKML(data, feed.Name, time.Now())
	if err != nil {
		return nil, err
	}
	return advisories, nil
}

// ParseKML parses KML bytes into advisories, walking folders recursively.
func (p *Parser) ParseKML(data []byte, feedName string, fetchedAt time.Time) ([]Advisory, error) {
	var doc kmlRoot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	var advisories []Advisory
	collect := func(placemarks []kmlPlacemark) {
		for i := range placemarks {
			adv, ok := p.processPlacemark(&placemarks[i], feedName, fetchedAt)
			if !ok {
				continue
			}
			advisories = append(advisories, adv)
		}
	}

	var walk func(c *kmlContainer)
	walk = func(c *kmlContainer) {
		collect(c.Placemarks)
		for i := range c.Folders {
			walk(&c.Folders[i])
		}
	}
	walk(&doc.Document)
	collect(doc.Placemarks)

	return advisories, nil
}

// processPlacemark converts a placemark into an advisory: a polygon ring
// when one is present, otherwise a point with its radius attribute.
func (p *Parser) processPlacemark(pm *kmlPlacemark, feedName string, fetchedAt time.Time) (Advisory, bool) {
	adv := Advisory{
		FeedName:        feedName,
		Name:            strings.TrimSpace(pm.Name),
		DescriptionHTML: strings.TrimSpace(pm.Description),
		FetchedAt:       fetchedAt,
	}
	adv.DescriptionText = textFromHTML(adv.DescriptionHTML)

	if pm.Polygon != nil {
		ring := parseCoordinates(pm.Polygon.OuterBoundary.LinearRing.Coordinates)
		if len(ring) >= 3 {
			adv.Polygon = ring
			return adv, true
		}
	}

	if pm.Point != nil {
		points := parseCoordinates(pm.Point.Coordinates)
		if len(points) > 0 {
			adv.Point = &points[0]
			adv.RadiusMeters = pm.radiusAttr()
			if adv.RadiusMeters <= 0 {
				adv.RadiusMeters = defaultPointRadius
			}
			return adv, true
		}
	}

	if p.log != nil {
		p.log.Debugw("skipping placemark without usable geometry", "feed", feedName, "name", adv.Name)
	}
	return Advisory{}, false
}

// HazardZone converts an advisory into a geocoded-area zone.
func (a *Advisory) HazardZone() (hazard.Zone, error) {
	name := a.Name
	if name == "" {
		name = a.FeedName + " advisory"
	}

	var zone hazard.Zone
	var err error
	if len(a.Polygon) >= 3 {
		zone, err = hazard.NewPolygonZone(name, hazard.KindGeocodedArea, a.Polygon)
	} else if a.Point != nil {
		zone, err = hazard.NewCircularZone(name, *a.Point, a.RadiusMeters)
		if err == nil {
			zone.Kind = hazard.KindGeocodedArea
		}
	} else {
		err = fmt.Errorf("advisory %q has no geometry", name)
	}
	if err != nil {
		return hazard.Zone{}, err
	}
	zone.Source = a.FeedName
	return zone, nil
}

// Fingerprint hashes the geometry-relevant content of a batch so refresh
// cycles can skip replacing zones that did not change.
func Fingerprint(advisories []Advisory) string {
	lines := make([]string, 0, len(advisories))
	for _, a := range advisories {
		var b strings.Builder
		b.WriteString(a.Name)
		for _, pt := range a.Polygon {
			fmt.Fprintf(&b, "|%.6f,%.6f", pt.Latitude, pt.Longitude)
		}
		if a.Point != nil {
			fmt.Fprintf(&b, "|%.6f,%.6f,r%.0f", a.Point.Latitude, a.Point.Longitude, a.RadiusMeters)
		}
		lines = append(lines, b.String())
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// parseCoordinates splits a KML coordinate string: whitespace-separated
// "longitude,latitude[,altitude]" tuples.
func parseCoordinates(raw string) []geo.Point {
	fields := strings.Fields(raw)
	points := make([]geo.Point, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, ",")
		if len(parts) < 2 {
			continue
		}
		lng, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		p := geo.Point{Latitude: lat, Longitude: lng}
		if p.Valid() {
			points = append(points, p)
		}
	}
	return points
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// textFromHTML strips tags and entities from a description blob.
func textFromHTML(htmlContent string) string {
	text := tagPattern.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

type kmlRoot struct {
	XMLName    xml.Name       `xml:"kml"`
	Document   kmlContainer   `xml:"Document"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlContainer struct {
	Folders    []kmlContainer `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string           `xml:"name"`
	Description  string           `xml:"description"`
	Point        *kmlPoint        `xml:"Point"`
	Polygon      *kmlPolygon      `xml:"Polygon"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData"`
}

func (pm *kmlPlacemark) radiusAttr() float64 {
	if pm.ExtendedData == nil {
		return 0
	}
	for _, d := range pm.ExtendedData.Data {
		if !strings.EqualFold(d.Name, "radius") {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64); err == nil {
			return v
		}
	}
	return 0
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	OuterBoundary struct {
		LinearRing struct {
			Coordinates string `xml:"coordinates"`
		} `xml:"LinearRing"`
	} `xml:"outerBoundaryIs"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}
