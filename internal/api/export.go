package api

import (
	"net/http"

	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/kmlexport"
)

// handleExportKML renders the active route, the hazard set, and the
// breadcrumb trail as a KML document.
func (s *Server) handleExportKML(w http.ResponseWriter, _ *http.Request) {
	doc := kmlexport.Document{
		Route:       s.session.Route(),
		Zones:       s.zones.Snapshot(),
		Breadcrumbs: s.session.Breadcrumbs(),
	}

	h := w.Header()
	h.Set("Content-Type", "application/vnd.google-earth.kml+xml")
	h.Set("Content-Disposition", `attachment; filename="hydronav-export.kml"`)
	if err := kmlexport.Write(w, doc); err != nil {
		s.log.Errorw("kml export failed", "error", err)
	}
}
