// Package openweather reads current conditions from the OpenWeatherMap
// API, feeding the rain watch that spawns risk zones near the session.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

// Config holds the client settings.
type Config struct {
	APIKey string
	URL    string
}

// Client provides access to the OpenWeatherMap current weather API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Conditions is the subset of a weather observation the engine uses.
type Conditions struct {
	Location      geo.Point `json:"location"`
	LocationName  string    `json:"location_name,omitempty"`
	Description   string    `json:"description,omitempty"`
	RainMMPerHour float64   `json:"rain_mm_per_hour"`
	TemperatureC  float64   `json:"temperature_c"`
	WindSpeedMS   float64   `json:"wind_speed_ms"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewClient creates an OpenWeatherMap client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "https://api.openweathermap.org/data/2.5/weather"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CurrentConditions retrieves the current observation nearest the given
// point.
func (c *Client) CurrentConditions(ctx context.Context, at geo.Point) (*Conditions, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	if !at.Valid() {
		return nil, fmt.Errorf("invalid observation point %+v", at)
	}

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", at.Latitude))
	params.Set("lon", fmt.Sprintf("%.6f", at.Longitude))
	params.Set("appid", c.cfg.APIKey)
	params.Set("units", "metric")

	requestURL := fmt.Sprintf("%s?%s", c.cfg.URL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.New("rate limit exceeded")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.New("invalid API key")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return processCurrentResponse(response), nil
}

// processCurrentResponse converts the API shape into engine conditions.
// Rain intensity prefers the 1h window, falling back to a 3h average.
func processCurrentResponse(response currentResponse) *Conditions {
	cond := &Conditions{
		Location:     geo.Point{Latitude: response.Coord.Lat, Longitude: response.Coord.Lon},
		LocationName: response.Name,
		TemperatureC: response.Main.Temp,
		WindSpeedMS:  response.Wind.Speed,
		ObservedAt:   time.Unix(response.Dt, 0).UTC(),
	}
	if len(response.Weather) > 0 {
		cond.Description = response.Weather[0].Description
	}
	if response.Rain != nil {
		cond.RainMMPerHour = response.Rain.OneHour
		if cond.RainMMPerHour == 0 && response.Rain.ThreeHour > 0 {
			cond.RainMMPerHour = response.Rain.ThreeHour / 3
		}
	}
	return cond
}

// currentResponse represents the current weather API response.
type currentResponse struct {
	Coord   owmCoord       `json:"coord"`
	Weather []owmCondition `json:"weather"`
	Main    owmMain        `json:"main"`
	Wind    owmWind        `json:"wind"`
	Rain    *owmRain       `json:"rain,omitempty"`
	Name    string         `json:"name"`
	Dt      int64          `json:"dt"`
}

type owmCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmMain struct {
	Temp     float64 `json:"temp"`
	Humidity int     `json:"humidity"`
}

type owmWind struct {
	Speed float64 `json:"speed"`
	Deg   float64 `json:"deg"`
}

// owmRain carries accumulated precipitation in mm over the trailing
// window.
type owmRain struct {
	OneHour   float64 `json:"1h"`
	ThreeHour float64 `json:"3h"`
}
