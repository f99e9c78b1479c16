// Command simulate runs a headless simulated drive: plan a route, play it
// back coordinate by coordinate, reroute around any hazards that appear,
// and print progress until arrival. Useful for exercising the engine
// without the HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/osrm"
	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/kmlexport"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
	"github.com/SPIDERMANrr/HYDRONAV/internal/services"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		fromArg    = flag.String("from", "16.3067,80.4365", "start coordinate as lat,lng")
		toArg      = flag.String("to", "16.5062,80.6480", "destination coordinate as lat,lng")
		zonesFile  = flag.String("zones", "", "YAML file of seed hazard zones")
		tick       = flag.Duration("tick", 0, "playback tick interval (default from config)")
		spawn      = flag.Float64("spawn", -1, "per-tick synthetic hazard probability, 0 disables")
		seed       = flag.Int64("seed", 0, "spawner RNG seed, 0 means time-based")
		kmlOut     = flag.String("kml", "", "write the finished trip as KML to this file")
		verbose    = flag.Bool("v", false, "verbose engine logging")
	)
	flag.Parse()

	// A .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	overrides := map[string]interface{}{
		"logging.development": true,
	}
	if !*verbose {
		// Keep engine logs out of the progress output.
		overrides["logging.level"] = "warn"
	}
	if *tick > 0 {
		overrides["navigation.sim_tick"] = tick.String()
	}
	if *spawn >= 0 {
		overrides["navigation.spawn_probability"] = *spawn
	}
	if *zonesFile != "" {
		overrides["hazards.zones_file"] = *zonesFile
	}

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	from, err := parsePoint(*fromArg)
	if err != nil {
		log.Fatalf("bad -from: %v", err)
	}
	to, err := parsePoint(*toArg)
	if err != nil {
		log.Fatalf("bad -to: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := drive(ctx, cfg, logger, from, to, *seed, *kmlOut); err != nil {
		logger.Fatalw("simulation failed", "error", err)
	}
}

// drive assembles the same core the server uses, minus the HTTP surface,
// and follows the session until it arrives or the context is cancelled.
func drive(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, from, to geo.Point, seed int64, kmlOut string) error {
	zones := hazard.NewSet()

	router := osrm.NewClient(osrm.Config{
		PrimaryURL:     cfg.Routing.PrimaryURL,
		BackupURL:      cfg.Routing.BackupURL,
		Profile:        cfg.Routing.Profile,
		RequestTimeout: cfg.Routing.RequestTimeout,
		Geometries:     cfg.Routing.Geometries,
		AnnotateSpeeds: cfg.Routing.AnnotateSpeeds,
	}, logger, nil)
	planner := services.NewPlanner(router, zones, logger, nil)

	var spawner *hazard.Spawner
	if cfg.Navigation.SpawnProbability > 0 {
		src := rand.NewSource(time.Now().UnixNano())
		if seed != 0 {
			src = rand.NewSource(seed)
		}
		spawner = hazard.NewSpawner(zones, cfg.Navigation.SpawnProbability, cfg.Navigation.SpawnRadiusMeters, rand.New(src), logger)
	}

	session := services.NewSession(planner, zones, spawner, nil, cfg.Navigation, logger, nil)
	go session.Run(ctx)
	defer session.Stop()

	if cfg.Hazards.ZonesFile != "" {
		if err := services.NewZoneFileService(cfg.Hazards.ZonesFile, zones, logger).Load(); err != nil {
			return fmt.Errorf("failed to load zone file %s: %w", cfg.Hazards.ZonesFile, err)
		}
	}

	fmt.Printf("planning %.4f,%.4f -> %.4f,%.4f (%d hazard zones loaded)\n",
		from.Latitude, from.Longitude, to.Latitude, to.Longitude, zones.Len())

	plan, err := session.PlanTo(ctx, from, to)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	printPlan(plan)

	updates, cancel := session.Subscribe()
	defer cancel()

	if err := session.Start(true); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	var (
		lastAlert string
		lastState services.State
		lastLine  time.Time
	)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("interrupted")
			return nil
		case st := <-updates:
			if st.Alert != nil && st.Alert.Text != lastAlert {
				lastAlert = st.Alert.Text
				fmt.Printf("  ! %s\n", st.Alert.Text)
			}
			// One line per second is enough; state changes always print.
			if st.State != lastState || time.Since(lastLine) >= time.Second {
				printProgress(st)
				lastState = st.State
				lastLine = time.Now()
			}
			if st.State == services.StateArrived {
				printSummary(session, st)
				if kmlOut != "" {
					if err := exportTrip(session, zones, kmlOut); err != nil {
						return fmt.Errorf("kml export failed: %w", err)
					}
					fmt.Printf("trip written to %s\n", kmlOut)
				}
				return nil
			}
		}
	}
}

func printPlan(plan *services.PlanResult) {
	if plan == nil || plan.Route == nil {
		fmt.Println("planner returned no route")
		return
	}
	fmt.Printf("route ready: %.1f km, ~%.0f min, %d points\n",
		plan.Route.TotalDistance/1000, plan.Route.TotalDuration/60, len(plan.Route.Coordinates))
	switch {
	case plan.Blocked:
		fmt.Printf("  no clear route found, best candidate still crosses %d hazard point(s)\n", plan.HazardScore)
	case plan.DetourLabel != "":
		fmt.Printf("  detour %s avoids %d hazard point(s) on the direct route\n", plan.DetourLabel, plan.DirectScore)
	case plan.DirectScore > 0:
		fmt.Printf("  direct route clear after scoring (direct score %d)\n", plan.DirectScore)
	}
}

func printProgress(st services.Status) {
	pos := "--"
	if st.Position != nil {
		pos = fmt.Sprintf("%.5f,%.5f", st.Position.Latitude, st.Position.Longitude)
	}
	eta := "--:--:--"
	if st.ETA != nil {
		eta = st.ETA.Format("15:04:05")
	}
	fmt.Printf("[%-15s] %s  %5.1f km/h  %6.0f m left  eta %s\n",
		st.State, pos, st.SpeedKMH, st.DistanceRemaining, eta)
}

func printSummary(session *services.Session, st services.Status) {
	fmt.Printf("arrived after %.1f s, %d breadcrumbs recorded\n",
		st.TripDurationSeconds, len(session.Breadcrumbs()))
}

func exportTrip(session *services.Session, zones *hazard.Set, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	doc := kmlexport.Document{
		Name:        "Simulated drive",
		Route:       session.Route(),
		Zones:       zones.Snapshot(),
		Breadcrumbs: session.Breadcrumbs(),
	}
	if err := kmlexport.Write(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parsePoint(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("bad latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("bad longitude: %w", err)
	}
	return geo.NewPoint(lat, lng)
}
