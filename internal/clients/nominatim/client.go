// Package nominatim provides free-text place search against a Nominatim
// geocoding endpoint, including area polygons for hazard zones.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/cache"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// degeneratePad widens a collapsed bounding box (a point result) so a
// usable rectangle zone can still be built from it.
const degeneratePad = 0.001

// Config holds the client settings.
type Config struct {
	URL       string
	UserAgent string
	Limit     int
	CacheTTL  time.Duration
}

// Client queries the Nominatim search API. Results are cached by query so
// repeated lookups stay within the public endpoint's usage policy.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache
	log        *zap.SugaredLogger
}

// Place is one geocoding candidate, validated and normalized.
type Place struct {
	DisplayName string      `json:"display_name"`
	Location    geo.Point   `json:"location"`
	Bounds      geo.Bounds  `json:"bounds"`
	Class       string      `json:"class"`
	Type        string      `json:"type"`
	Importance  float64     `json:"importance"`
	Polygon     []geo.Point `json:"polygon,omitempty"`
}

// NewClient creates a geocoding client. The cache may be nil to disable
// result caching.
func NewClient(cfg Config, store *cache.Cache, log *zap.SugaredLogger) *Client {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      store,
		log:        log,
	}
}

// Search looks up free-text place candidates, requesting polygon geometry
// so area results can become hazard zones.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}

	cacheKey := "geocode:" + strings.ToLower(query)
	if c.cache != nil {
		var cached []Place
		if found, err := c.cache.Get(cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	params.Set("polygon_geojson", "1")

	requestURL := fmt.Sprintf("%s/search?%s", strings.TrimSuffix(c.cfg.URL, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Nominatim's usage policy requires an identifying User-Agent
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.New("geocoder rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocoder error %d: %s", resp.StatusCode, string(body))
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		place, err := r.toPlace()
		if err != nil {
			c.log.Warnw("dropping unparseable geocoding result", "display_name", r.DisplayName, "error", err)
			continue
		}
		places = append(places, place)
	}

	if c.cache != nil {
		if err := c.cache.Set(cacheKey, places, c.cfg.CacheTTL, "nominatim"); err != nil {
			c.log.Warnw("failed to cache geocoding results", "query", query, "error", err)
		}
	}
	return places, nil
}

// HazardZone converts a place into a geocoded-area hazard zone: the
// result's polygon when one came back, otherwise its bounding box as a
// rectangle. Point results get a small padded box.
func (p *Place) HazardZone() (hazard.Zone, error) {
	if len(p.Polygon) >= 3 {
		zone, err := hazard.NewPolygonZone(p.DisplayName, hazard.KindGeocodedArea, p.Polygon)
		if err != nil {
			return hazard.Zone{}, err
		}
		zone.Source = "nominatim"
		return zone, nil
	}

	box := p.Bounds
	if box.MinLat == box.MaxLat || box.MinLng == box.MaxLng {
		box = box.Pad(degeneratePad)
	}
	zone, err := hazard.NewPolygonZone(p.DisplayName, hazard.KindGeocodedArea, box.Polygon())
	if err != nil {
		return hazard.Zone{}, err
	}
	zone.Source = "nominatim"
	return zone, nil
}

// searchResult mirrors the Nominatim search response shape. Coordinates
// arrive as strings and the bounding box as [minLat, maxLat, minLng,
// maxLng] strings.
type searchResult struct {
	DisplayName string          `json:"display_name"`
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	BoundingBox []string        `json:"boundingbox"`
	Class       string          `json:"class"`
	Type        string          `json:"type"`
	Importance  float64         `json:"importance"`
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
}

func (r *searchResult) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("bad latitude %q: %w", r.Lat, err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("bad longitude %q: %w", r.Lon, err)
	}
	location, err := geo.NewPoint(lat, lng)
	if err != nil {
		return Place{}, err
	}

	place := Place{
		DisplayName: r.DisplayName,
		Location:    location,
		Class:       r.Class,
		Type:        r.Type,
		Importance:  r.Importance,
	}

	if len(r.BoundingBox) == 4 {
		box, err := parseBoundingBox(r.BoundingBox)
		if err != nil {
			return Place{}, err
		}
		place.Bounds = box
	} else {
		place.Bounds = geo.BoundsOf([]geo.Point{location})
	}

	if ring := outerRing(r.GeoJSON); len(ring) >= 3 {
		place.Polygon = ring
	}
	return place, nil
}

func parseBoundingBox(raw []string) (geo.Bounds, error) {
	vals := make([]float64, 4)
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return geo.Bounds{}, fmt.Errorf("bad bounding box value %q: %w", s, err)
		}
		vals[i] = v
	}
	box := geo.Bounds{MinLat: vals[0], MaxLat: vals[1], MinLng: vals[2], MaxLng: vals[3]}
	if !(geo.Point{Latitude: box.MinLat, Longitude: box.MinLng}).Valid() ||
		!(geo.Point{Latitude: box.MaxLat, Longitude: box.MaxLng}).Valid() {
		return geo.Bounds{}, errors.New("bounding box out of range")
	}
	return box, nil
}

// outerRing extracts the largest outer ring from a GeoJSON Polygon or
// MultiPolygon, converted to engine points. Other geometry types yield
// nil.
func outerRing(raw json.RawMessage) []geo.Point {
	if len(raw) == 0 {
		return nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}

	var ring [][]float64
	switch probe.Type {
	case "Polygon":
		var g struct {
			Coordinates [][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &g); err != nil || len(g.Coordinates) == 0 {
			return nil
		}
		ring = g.Coordinates[0]
	case "MultiPolygon":
		var g struct {
			Coordinates [][][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil
		}
		for _, poly := range g.Coordinates {
			if len(poly) > 0 && len(poly[0]) > len(ring) {
				ring = poly[0]
			}
		}
	default:
		return nil
	}

	points := make([]geo.Point, 0, len(ring))
	for _, pair := range ring {
		if len(pair) < 2 {
			continue
		}
		p := geo.Point{Latitude: pair[1], Longitude: pair[0]}
		if p.Valid() {
			points = append(points, p)
		}
	}
	return points
}
