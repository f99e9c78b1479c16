// Package config loads server configuration from defaults, an optional
// YAML file, HYDRONAV_ environment variables, and programmatic overrides,
// in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes environment overrides. A double underscore separates
// nesting levels so keys with underscores survive, e.g.
// HYDRONAV_ROUTING__PRIMARY_URL maps to routing.primary_url.
const envPrefix = "HYDRONAV_"

// Config is the complete server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Routing       RoutingConfig       `yaml:"routing"`
	Geocoding     GeocodingConfig     `yaml:"geocoding"`
	Hazards       HazardsConfig       `yaml:"hazards"`
	Weather       WeatherConfig       `yaml:"weather"`
	Navigation    NavigationConfig    `yaml:"navigation"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
	// JWTSecret enables bearer-token auth on mutating routes when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// RoutingConfig holds the route provider endpoints and request policy.
type RoutingConfig struct {
	PrimaryURL     string        `yaml:"primary_url"`
	BackupURL      string        `yaml:"backup_url"`
	Profile        string        `yaml:"profile"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Geometries selects the provider geometry encoding: geojson,
	// polyline, or polyline6.
	Geometries string `yaml:"geometries"`
	// AnnotateSpeeds requests per-segment speed annotations.
	AnnotateSpeeds bool `yaml:"annotate_speeds"`
}

// GeocodingConfig holds the Nominatim-style geocoder settings.
type GeocodingConfig struct {
	URL       string        `yaml:"url"`
	UserAgent string        `yaml:"user_agent"`
	Limit     int           `yaml:"limit"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// FeedConfig is one KML advisory feed to poll.
type FeedConfig struct {
	Name            string        `yaml:"name"`
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// HazardsConfig holds zone ingestion settings.
type HazardsConfig struct {
	// ZonesFile is an optional YAML file of seed zones, reloaded on change.
	ZonesFile string       `yaml:"zones_file"`
	Feeds     []FeedConfig `yaml:"feeds"`
	// FloodmapShapefile is an optional ESRI shapefile of flood-plain
	// polygons imported at startup.
	FloodmapShapefile string `yaml:"floodmap_shapefile"`
	FloodmapNameField string `yaml:"floodmap_name_field"`
}

// WeatherConfig holds the rain watch settings.
type WeatherConfig struct {
	APIKey          string        `yaml:"api_key"`
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// RainThresholdMMH is the 1h rain intensity above which a risk zone
	// is spawned near the session.
	RainThresholdMMH float64 `yaml:"rain_threshold_mmh"`
	RiskRadiusMeters float64 `yaml:"risk_radius_m"`
}

// NavigationConfig holds session and playback tuning.
type NavigationConfig struct {
	ArrivalThresholdMeters  float64       `yaml:"arrival_threshold_m"`
	SimTick                 time.Duration `yaml:"sim_tick"`
	SpawnProbability        float64       `yaml:"spawn_probability"`
	SpawnRadiusMeters       float64       `yaml:"spawn_radius_m"`
	RerouteNoticeTTL        time.Duration `yaml:"reroute_notice_ttl"`
	BreadcrumbCap           int           `yaml:"breadcrumb_cap"`
	BreadcrumbSpacingMeters float64       `yaml:"breadcrumb_spacing_m"`
}

// AlertsConfig holds the optional alert text enhancement settings.
type AlertsConfig struct {
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	Model        string        `yaml:"model"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig mirrors the OpenTelemetry exporter setup.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	// Exporter selects stdout or otlp.
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
// The provider endpoints are the public OSRM demo instances; deployments
// point these at their own routers.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CorsOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Routing: RoutingConfig{
			PrimaryURL:     "https://router.project-osrm.org",
			BackupURL:      "https://routing.openstreetmap.de/routed-car",
			Profile:        "driving",
			RequestTimeout: 5 * time.Second,
			Geometries:     "geojson",
			AnnotateSpeeds: true,
		},
		Geocoding: GeocodingConfig{
			URL:       "https://nominatim.openstreetmap.org",
			UserAgent: "hydronav/1.0 (flood-aware navigation)",
			Limit:     5,
			CacheTTL:  15 * time.Minute,
		},
		Hazards: HazardsConfig{
			FloodmapNameField: "NAME",
		},
		Weather: WeatherConfig{
			URL:             "https://api.openweathermap.org/data/2.5/weather",
			RefreshInterval: 10 * time.Minute,
			// 7.6 mm/h is the meteorological floor for heavy rain.
			RainThresholdMMH: 7.6,
			RiskRadiusMeters: 500,
		},
		Navigation: NavigationConfig{
			ArrivalThresholdMeters:  30,
			SimTick:                 200 * time.Millisecond,
			SpawnProbability:        0.015,
			SpawnRadiusMeters:       250,
			RerouteNoticeTTL:        5 * time.Second,
			BreadcrumbCap:           50,
			BreadcrumbSpacingMeters: 5,
		},
		Alerts: AlertsConfig{
			Model:    "gpt-4o-mini",
			CacheTTL: time.Hour,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				ServiceName: "hydronav",
				Exporter:    "stdout",
				SampleRatio: 1.0,
			},
		},
	}
}

// Load builds the configuration by layering an optional YAML file,
// HYDRONAV_ environment variables, and programmatic overrides on top of
// the defaults.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply config overrides: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Routing.PrimaryURL == "" {
		return fmt.Errorf("routing.primary_url is required")
	}
	if c.Routing.RequestTimeout <= 0 {
		return fmt.Errorf("routing.request_timeout must be positive")
	}
	switch c.Routing.Geometries {
	case "geojson", "polyline", "polyline6":
	default:
		return fmt.Errorf("routing.geometries %q must be geojson, polyline, or polyline6", c.Routing.Geometries)
	}
	if c.Navigation.SimTick <= 0 {
		return fmt.Errorf("navigation.sim_tick must be positive")
	}
	if c.Navigation.ArrivalThresholdMeters <= 0 {
		return fmt.Errorf("navigation.arrival_threshold_m must be positive")
	}
	if c.Navigation.SpawnProbability < 0 || c.Navigation.SpawnProbability > 1 {
		return fmt.Errorf("navigation.spawn_probability %f out of range", c.Navigation.SpawnProbability)
	}
	if c.Navigation.BreadcrumbCap < 1 {
		return fmt.Errorf("navigation.breadcrumb_cap must be at least 1")
	}
	if c.Observability.Tracing.SampleRatio < 0 || c.Observability.Tracing.SampleRatio > 1 {
		return fmt.Errorf("observability.tracing.sample_ratio %f out of range", c.Observability.Tracing.SampleRatio)
	}
	for i, feed := range c.Hazards.Feeds {
		if feed.URL == "" {
			return fmt.Errorf("hazards.feeds[%d].url is required", i)
		}
		if feed.RefreshInterval <= 0 {
			return fmt.Errorf("hazards.feeds[%d].refresh_interval must be positive", i)
		}
	}
	return nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}
