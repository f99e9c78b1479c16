// Package osrm fetches routes from an OSRM-compatible routing provider.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/routing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
)

const tracerName = "github.com/SPIDERMANrr/HYDRONAV/internal/clients/osrm"

// ErrNoRoute is the sentinel for "routing currently unavailable": both
// endpoints exhausted, or the request was unroutable. Callers keep any
// prior route and decide how to surface the gap.
var ErrNoRoute = errors.New("no route available")

// Config holds the client settings.
type Config struct {
	PrimaryURL string
	BackupURL  string
	// Profile is the routing profile path segment, e.g. "driving".
	Profile        string
	RequestTimeout time.Duration
	// Geometries selects the response encoding: geojson, polyline, or
	// polyline6.
	Geometries string
	// AnnotateSpeeds requests per-segment speed annotations.
	AnnotateSpeeds bool
}

// Client talks to a primary OSRM endpoint with a silent fallback to a
// backup carrying the identical request and response shape.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.SugaredLogger
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

// NewClient creates a provider client. The metrics handle may be nil.
func NewClient(cfg Config, log *zap.SugaredLogger, metrics *observability.Metrics) *Client {
	if cfg.Profile == "" {
		cfg.Profile = "driving"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Geometries == "" {
		cfg.Geometries = "geojson"
	}
	return &Client{
		cfg: cfg,
		// Per-attempt deadlines come from the request context; the
		// client-level timeout is a backstop.
		httpClient: &http.Client{Timeout: cfg.RequestTimeout + time.Second},
		log:        log,
		metrics:    metrics,
		tracer:     otel.Tracer(tracerName),
	}
}

// FetchRoute fetches a route through the given waypoints. Invalid
// coordinates are dropped first; fewer than two valid waypoints yields
// ErrNoRoute without touching the network. Any primary failure triggers
// exactly one retry against the backup endpoint; when both fail the
// result is ErrNoRoute carrying both attempt errors.
func (c *Client) FetchRoute(ctx context.Context, waypoints []geo.Point) (*routing.Route, error) {
	valid := geo.FilterValid(waypoints)
	if len(valid) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 valid waypoints, got %d", ErrNoRoute, len(valid))
	}

	route, primaryErr := c.fetchFrom(ctx, "primary", c.cfg.PrimaryURL, valid)
	if primaryErr == nil {
		return route, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, multierr.Append(primaryErr, ctx.Err()))
	}
	if c.cfg.BackupURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, primaryErr)
	}

	c.log.Warnw("primary routing endpoint failed, trying backup", "error", primaryErr)

	route, backupErr := c.fetchFrom(ctx, "backup", c.cfg.BackupURL, valid)
	if backupErr == nil {
		return route, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNoRoute, multierr.Append(primaryErr, backupErr))
}

func (c *Client) fetchFrom(ctx context.Context, endpoint, base string, waypoints []geo.Point) (*routing.Route, error) {
	ctx, span := c.tracer.Start(ctx, "osrm.fetch", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("waypoints", len(waypoints)),
	))
	defer span.End()

	route, err := c.attempt(ctx, endpoint, base, waypoints)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return route, nil
}

func (c *Client) attempt(ctx context.Context, endpoint, base string, waypoints []geo.Point) (*routing.Route, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.requestURL(base, waypoints), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveProviderRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.ObserveProviderRequest(endpoint, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider error %d: %s", resp.StatusCode, string(body))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.metrics.ObserveProviderRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		c.metrics.ObserveProviderRequest(endpoint, "empty", time.Since(start).Seconds())
		return nil, fmt.Errorf("provider returned no routes (code %q)", parsed.Code)
	}

	route, err := c.processRoute(parsed.Routes[0])
	if err != nil {
		c.metrics.ObserveProviderRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, err
	}
	c.metrics.ObserveProviderRequest(endpoint, "ok", time.Since(start).Seconds())
	return route, nil
}

// requestURL builds the OSRM route request: longitude,latitude pairs
// joined by semicolons, full geometry, and per-leg turn steps.
func (c *Client) requestURL(base string, waypoints []geo.Point) string {
	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude)
	}

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("steps", "true")
	q.Set("geometries", c.cfg.Geometries)
	if c.cfg.AnnotateSpeeds {
		q.Set("annotations", "speed")
	}

	return fmt.Sprintf("%s/route/v1/%s/%s?%s",
		strings.TrimSuffix(base, "/"), c.cfg.Profile, strings.Join(coords, ";"), q.Encode())
}

func (c *Client) processRoute(r route) (*routing.Route, error) {
	coords, err := c.decodeGeometry(r.Geometry)
	if err != nil {
		return nil, err
	}
	if len(coords) < 2 {
		return nil, errors.New("provider geometry has fewer than 2 points")
	}

	out := &routing.Route{
		Coordinates:   coords,
		TotalDistance: r.Distance,
		TotalDuration: r.Duration,
		Bounds:        geo.BoundsOf(coords),
	}

	// Only the first leg's steps and annotations feed guidance; later
	// legs of a via-point route re-merge into the same display.
	if len(r.Legs) > 0 {
		leg := r.Legs[0]
		out.Steps = make([]routing.Step, 0, len(leg.Steps))
		for _, s := range leg.Steps {
			step := routing.Step{
				Name:     s.Name,
				Distance: s.Distance,
				Duration: s.Duration,
				Maneuver: routing.Maneuver{
					Type:          s.Maneuver.Type,
					Modifier:      s.Maneuver.Modifier,
					BearingBefore: s.Maneuver.BearingBefore,
					BearingAfter:  s.Maneuver.BearingAfter,
				},
			}
			if len(s.Maneuver.Location) >= 2 {
				loc := geo.Point{Latitude: s.Maneuver.Location[1], Longitude: s.Maneuver.Location[0]}
				if loc.Valid() {
					step.Maneuver.Location = loc
				}
			}
			if points, err := c.decodeGeometry(s.Geometry); err == nil {
				step.Geometry = points
			}
			out.Steps = append(out.Steps, step)
		}

		if leg.Annotation != nil && len(leg.Annotation.Speed) > 0 {
			speeds := make([]float64, len(leg.Annotation.Speed))
			for i, mps := range leg.Annotation.Speed {
				speeds[i] = mps * 3.6
			}
			out.SegmentSpeeds = speeds
		}
	}

	return out, nil
}

// decodeGeometry handles both encodings OSRM can return: a JSON string
// holding an encoded polyline, or a GeoJSON LineString object.
func (c *Client) decodeGeometry(raw json.RawMessage) ([]geo.Point, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, errors.New("missing geometry")
	}

	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("failed to decode geometry string: %w", err)
		}
		precision := 5
		if c.cfg.Geometries == "polyline6" {
			precision = 6
		}
		return geo.DecodePolyline(encoded, precision)
	}

	var line lineString
	if err := json.Unmarshal(raw, &line); err != nil {
		return nil, fmt.Errorf("failed to decode geojson geometry: %w", err)
	}

	points := make([]geo.Point, 0, len(line.Coordinates))
	for _, pair := range line.Coordinates {
		if len(pair) < 2 {
			continue
		}
		// GeoJSON order is [lng, lat]
		p := geo.Point{Latitude: pair[1], Longitude: pair[0]}
		if p.Valid() {
			points = append(points, p)
		}
	}
	return points, nil
}

// response mirrors the OSRM route service envelope.
type response struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Geometry json.RawMessage `json:"geometry"`
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Legs     []leg           `json:"legs"`
}

type leg struct {
	Steps      []step      `json:"steps"`
	Annotation *annotation `json:"annotation,omitempty"`
}

type annotation struct {
	Speed []float64 `json:"speed,omitempty"`
}

type step struct {
	Name     string          `json:"name"`
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
	Maneuver maneuver        `json:"maneuver"`
}

type maneuver struct {
	Type          string    `json:"type"`
	Modifier      string    `json:"modifier,omitempty"`
	BearingBefore float64   `json:"bearing_before"`
	BearingAfter  float64   `json:"bearing_after"`
	Location      []float64 `json:"location"`
}

type lineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}
