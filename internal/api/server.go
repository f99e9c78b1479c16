// Package api exposes the engine over HTTP: hazard management, geocoding,
// route planning, the navigation session, and the KML export. Handlers hold
// no state of their own; everything lives in the injected services.
package api

import (
	"context"
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/nominatim"
	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/alerts"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
	"github.com/SPIDERMANrr/HYDRONAV/internal/observability"
	"github.com/SPIDERMANrr/HYDRONAV/internal/services"
)

// Geocoder resolves free-text place queries. The nominatim client satisfies
// it; tests substitute canned responders.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]nominatim.Place, error)
}

// AlertSource lists the current enhanced traveler alerts. The feed service
// satisfies it.
type AlertSource interface {
	Alerts() []alerts.TravelerAlert
}

// Server is the HTTP surface over one navigation session and its hazard set.
type Server struct {
	cfg      config.ServerConfig
	session  *services.Session
	zones    *hazard.Set
	geocoder Geocoder
	alerts   AlertSource
	metrics  *observability.Metrics
	log      *zap.SugaredLogger
}

// NewServer wires the HTTP surface. The geocoder and alert source may be nil
// when the matching providers are not configured; their endpoints then
// respond with an empty result or 503.
func NewServer(cfg config.ServerConfig, session *services.Session, zones *hazard.Set, geocoder Geocoder, alertSource AlertSource, metrics *observability.Metrics, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg:      cfg,
		session:  session,
		zones:    zones,
		geocoder: geocoder,
		alerts:   alertSource,
		metrics:  metrics,
		log:      log,
	}
}

// Router builds the full route table. Read endpoints are open; mutating
// endpoints pass the bearer-token guard when a JWT secret is configured.
// The status stream stays outside the gzip wrapper because compressed
// events would sit in the gzip buffer instead of reaching the client.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.corsMiddleware)
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	api.HandleFunc("/navigation/stream", s.handleStream).Methods(http.MethodGet)

	zipped := api.NewRoute().Subrouter()
	zipped.Use(gziphandler.GzipHandler)
	zipped.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	zipped.HandleFunc("/hazards", s.handleListHazards).Methods(http.MethodGet)
	zipped.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	zipped.HandleFunc("/navigation/status", s.handleStatus).Methods(http.MethodGet)
	zipped.HandleFunc("/navigation/breadcrumbs", s.handleBreadcrumbs).Methods(http.MethodGet)
	zipped.HandleFunc("/export/kml", s.handleExportKML).Methods(http.MethodGet)

	guarded := zipped.NewRoute().Subrouter()
	guarded.Use(s.authMiddleware)
	guarded.HandleFunc("/hazards", s.handleCreateHazard).Methods(http.MethodPost)
	guarded.HandleFunc("/hazards/{id}", s.handleDeleteHazard).Methods(http.MethodDelete)
	guarded.HandleFunc("/hazards/geocode", s.handleGeocodeHazard).Methods(http.MethodPost)
	guarded.HandleFunc("/route/plan", s.handlePlanRoute).Methods(http.MethodPost)
	guarded.HandleFunc("/navigation/start", s.handleStartNavigation).Methods(http.MethodPost)
	guarded.HandleFunc("/navigation/stop", s.handleStopNavigation).Methods(http.MethodPost)
	guarded.HandleFunc("/navigation/position", s.handleReportPosition).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
