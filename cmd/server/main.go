// Command server runs the flood-aware navigation engine: the HTTP API, the
// live navigation session, and the hazard ingesters (seed file, advisory
// feeds, flood map, rain watch).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/api"
	"github.com/SPIDERMANrr/HYDRONAV/internal/cache"
	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/floodwatch"
	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/nominatim"
	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/openweather"
	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/osrm"
	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/alerts"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/floodmap"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
	"github.com/SPIDERMANrr/HYDRONAV/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("server exited", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.Tracing.Enabled,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRatio: cfg.Observability.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warnw("failed to flush traces", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	store := cache.New(logger)
	store.StartPeriodicCleanup(ctx, time.Hour)

	zones := hazard.NewSet()

	router := osrm.NewClient(osrm.Config{
		PrimaryURL:     cfg.Routing.PrimaryURL,
		BackupURL:      cfg.Routing.BackupURL,
		Profile:        cfg.Routing.Profile,
		RequestTimeout: cfg.Routing.RequestTimeout,
		Geometries:     cfg.Routing.Geometries,
		AnnotateSpeeds: cfg.Routing.AnnotateSpeeds,
	}, logger, metrics)

	geocoder := nominatim.NewClient(nominatim.Config{
		URL:       cfg.Geocoding.URL,
		UserAgent: cfg.Geocoding.UserAgent,
		Limit:     cfg.Geocoding.Limit,
		CacheTTL:  cfg.Geocoding.CacheTTL,
	}, store, logger)

	planner := services.NewPlanner(router, zones, logger, metrics)

	var spawner *hazard.Spawner
	if cfg.Navigation.SpawnProbability > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		spawner = hazard.NewSpawner(zones, cfg.Navigation.SpawnProbability, cfg.Navigation.SpawnRadiusMeters, rng, logger)
	}

	session := services.NewSession(planner, zones, spawner, nil, cfg.Navigation, logger, metrics)
	go session.Run(ctx)

	if cfg.Hazards.ZonesFile != "" {
		zoneFile := services.NewZoneFileService(cfg.Hazards.ZonesFile, zones, logger)
		if err := zoneFile.Load(); err != nil {
			logger.Warnw("failed to load seed zones", "error", err)
		}
		if err := zoneFile.Watch(ctx); err != nil {
			logger.Warnw("failed to watch seed zones", "error", err)
		}
	}

	if cfg.Hazards.FloodmapShapefile != "" {
		imported, err := floodmap.NewLoader(logger).Load(cfg.Hazards.FloodmapShapefile, cfg.Hazards.FloodmapNameField)
		if err != nil {
			logger.Warnw("failed to import flood map", "path", cfg.Hazards.FloodmapShapefile, "error", err)
		} else {
			zones.ReplaceSource("floodmap", imported)
		}
	}

	var alertSource api.AlertSource
	if len(cfg.Hazards.Feeds) > 0 {
		feeds := services.NewFeedService(floodwatch.NewParser(logger), zones, buildEnhancer(cfg, store, logger), cfg.Hazards.Feeds, logger)
		feeds.Start(ctx)
		alertSource = feeds
	}

	if cfg.Weather.APIKey != "" {
		weather := openweather.NewClient(openweather.Config{APIKey: cfg.Weather.APIKey, URL: cfg.Weather.URL})
		services.NewRainWatch(weather, zones, session, cfg.Weather, logger).Start(ctx)
	} else {
		logger.Infow("rain watch disabled, no weather API key configured")
	}

	apiServer := api.NewServer(cfg.Server, session, zones, geocoder, alertSource, metrics, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "port", cfg.Server.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Infow("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	session.Stop()
	return nil
}

// buildEnhancer picks the alert text pipeline: the OpenAI rewrite with
// content-based caching when a key is configured, plain templates otherwise.
func buildEnhancer(cfg *config.Config, store *cache.Cache, logger *zap.SugaredLogger) alerts.Enhancer {
	if cfg.Alerts.OpenAIAPIKey == "" {
		logger.Infow("alert enhancement using templates, no OpenAI key configured")
		return alerts.NewTemplateEnhancer()
	}
	logger.Infow("alert enhancement using OpenAI", "model", cfg.Alerts.Model)
	base := alerts.NewEnhancer(cfg.Alerts.OpenAIAPIKey, cfg.Alerts.Model)
	return alerts.NewCachedEnhancer(base, store, cfg.Alerts.CacheTTL, logger)
}
