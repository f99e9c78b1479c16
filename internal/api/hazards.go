package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/nominatim"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/alerts"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// apiSource marks zones created through the HTTP surface.
const apiSource = "api"

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	if s.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding is not configured")
		return
	}

	places, err := s.geocoder.Search(r.Context(), query)
	if err != nil {
		s.log.Warnw("search failed", "query", query, "error", err)
		writeError(w, http.StatusBadGateway, "search failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Results []nominatim.Place `json:"results"`
		Count   int               `json:"count"`
	}{Results: places, Count: len(places)})
}

func (s *Server) handleListHazards(w http.ResponseWriter, _ *http.Request) {
	zones := s.zones.Snapshot()
	if zones == nil {
		zones = []hazard.Zone{}
	}
	writeJSON(w, http.StatusOK, struct {
		Zones []hazard.Zone `json:"zones"`
		Count int           `json:"count"`
	}{Zones: zones, Count: len(zones)})
}

type createHazardRequest struct {
	Name         string      `json:"name"`
	Kind         string      `json:"kind,omitempty"`
	Polygon      []geo.Point `json:"polygon,omitempty"`
	Center       *geo.Point  `json:"center,omitempty"`
	RadiusMeters float64     `json:"radius_m,omitempty"`
}

// handleCreateHazard accepts either a polygon or a center with radius_m,
// mirroring the zone file schema.
func (s *Server) handleCreateHazard(w http.ResponseWriter, r *http.Request) {
	var req createHazardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		req.Name = "Manual hazard area"
	}

	var (
		zone hazard.Zone
		err  error
	)
	switch {
	case len(req.Polygon) > 0:
		kind := hazard.KindManualPolygon
		switch req.Kind {
		case "", string(hazard.KindManualPolygon):
		case string(hazard.KindGeocodedArea):
			kind = hazard.KindGeocodedArea
		default:
			writeError(w, http.StatusBadRequest, "unknown polygon zone kind "+req.Kind)
			return
		}
		zone, err = hazard.NewPolygonZone(req.Name, kind, req.Polygon)
	case req.Center != nil:
		zone, err = hazard.NewCircularZone(req.Name, *req.Center, req.RadiusMeters)
	default:
		writeError(w, http.StatusBadRequest, "hazard needs a polygon or a center with radius_m")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zone.Source = apiSource
	s.zones.Add(zone)
	s.log.Infow("hazard zone added",
		"id", zone.ID,
		"name", zone.Name,
		"kind", zone.Kind)
	writeJSON(w, http.StatusCreated, zone)
}

func (s *Server) handleDeleteHazard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.zones.Remove(id) {
		writeError(w, http.StatusNotFound, "unknown hazard id")
		return
	}
	s.log.Infow("hazard zone removed", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

type geocodeHazardRequest struct {
	Query string `json:"query"`
}

// handleGeocodeHazard turns a place query into a hazard zone using the first
// geocoding result that carries usable geometry.
func (s *Server) handleGeocodeHazard(w http.ResponseWriter, r *http.Request) {
	var req geocodeHazardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	if s.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding is not configured")
		return
	}

	places, err := s.geocoder.Search(r.Context(), req.Query)
	if err != nil {
		s.log.Warnw("geocode failed", "query", req.Query, "error", err)
		writeError(w, http.StatusBadGateway, "geocode failed: "+err.Error())
		return
	}

	for _, place := range places {
		zone, err := place.HazardZone()
		if err != nil {
			s.log.Debugw("geocoding result has no usable geometry",
				"place", place.DisplayName,
				"error", err)
			continue
		}
		s.zones.Add(zone)
		s.log.Infow("hazard zone geocoded",
			"id", zone.ID,
			"name", zone.Name,
			"query", req.Query)
		writeJSON(w, http.StatusCreated, struct {
			Zone  hazard.Zone     `json:"zone"`
			Place nominatim.Place `json:"place"`
		}{Zone: zone, Place: place})
		return
	}

	writeError(w, http.StatusNotFound, "no geocoding result with usable geometry for "+req.Query)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	list := []alerts.TravelerAlert{}
	if s.alerts != nil {
		list = append(list, s.alerts.Alerts()...)
	}
	writeJSON(w, http.StatusOK, struct {
		Alerts []alerts.TravelerAlert `json:"alerts"`
		Count  int                    `json:"count"`
	}{Alerts: list, Count: len(list)})
}
