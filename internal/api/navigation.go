package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/smoothing"
	"github.com/SPIDERMANrr/HYDRONAV/internal/services"
)

// streamHeartbeat keeps idle SSE connections from being reaped by proxies.
const streamHeartbeat = 15 * time.Second

type planRequest struct {
	Start        *geo.Point `json:"start,omitempty"`
	Destination  geo.Point  `json:"destination"`
	AvoidHazards *bool      `json:"avoid_hazards,omitempty"`
}

// handlePlanRoute plans a route to the requested destination. The start
// defaults to the session's current position; hazard avoidance defaults to
// on whenever the zone set is non-empty.
func (s *Server) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Destination.Valid() {
		writeError(w, http.StatusBadRequest, "destination is not a valid coordinate")
		return
	}

	var start geo.Point
	if req.Start != nil {
		start = *req.Start
		if !start.Valid() {
			writeError(w, http.StatusBadRequest, "start is not a valid coordinate")
			return
		}
	} else {
		status := s.session.Status()
		if status.Position == nil {
			writeError(w, http.StatusBadRequest, "no current position, start is required")
			return
		}
		start = *status.Position
	}

	avoid := s.zones.Len() > 0
	if req.AvoidHazards != nil {
		avoid = *req.AvoidHazards
	}

	result, err := s.session.PlanRoute(r.Context(), start, req.Destination, avoid)
	if err != nil {
		if errors.Is(err, services.ErrInvalidState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type startRequest struct {
	Simulate bool `json:"simulate"`
}

// handleStartNavigation begins navigating the ready route. An empty body
// means a live drive.
func (s *Server) handleStartNavigation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.session.Start(req.Simulate); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleStopNavigation(w http.ResponseWriter, _ *http.Request) {
	s.session.Stop()
	writeJSON(w, http.StatusOK, s.session.Status())
}

// handleReportPosition feeds one raw GPS fix into the session.
func (s *Server) handleReportPosition(w http.ResponseWriter, r *http.Request) {
	var fix smoothing.Fix
	if !decodeJSON(w, r, &fix) {
		return
	}

	if err := s.session.ReportPosition(fix); err != nil {
		if errors.Is(err, services.ErrInvalidState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleBreadcrumbs(w http.ResponseWriter, _ *http.Request) {
	crumbs := s.session.Breadcrumbs()
	if crumbs == nil {
		crumbs = []geo.Point{}
	}
	writeJSON(w, http.StatusOK, struct {
		Breadcrumbs []geo.Point `json:"breadcrumbs"`
		Count       int         `json:"count"`
	}{Breadcrumbs: crumbs, Count: len(crumbs)})
}

// handleStream pushes status snapshots as server-sent events. Updates are
// coalesced latest-wins by the session, so a slow client only ever lags by
// one snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := s.session.Subscribe()
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case status := <-updates:
			payload, err := json.Marshal(status)
			if err != nil {
				s.log.Errorw("failed to encode status event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
