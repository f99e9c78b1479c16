// Package alerts turns raw hazard notices into traveler-friendly text,
// optionally via an OpenAI rewrite with content-based caching.
package alerts

import (
	"context"
	"time"
)

// Severity levels for traveler alerts.
const (
	SeverityAdvisory = "advisory"
	SeverityWarning  = "warning"
	SeverityDanger   = "danger"
)

// RawAlert is an unprocessed hazard notice from a feed, the rain watch,
// or the navigation engine itself.
type RawAlert struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Source      string    `json:"source,omitempty"`
	ReportedAt  time.Time `json:"reported_at,omitempty"`
}

// TravelerAlert is the display form of a hazard notice.
type TravelerAlert struct {
	ID       string `json:"id"`
	Headline string `json:"headline"`
	Advice   string `json:"advice"`
	// Severity is one of advisory, warning, danger.
	Severity    string    `json:"severity"`
	Original    string    `json:"original_description"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Enhancer rewrites raw notices for display.
type Enhancer interface {
	Enhance(ctx context.Context, raw RawAlert) (TravelerAlert, error)
	HealthCheck(ctx context.Context) error
}

func validSeverity(s string) bool {
	return s == SeverityAdvisory || s == SeverityWarning || s == SeverityDanger
}
