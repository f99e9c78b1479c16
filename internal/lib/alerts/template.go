package alerts

import (
	"context"
	"strings"
	"time"
)

// templateEnhancer produces deterministic traveler text without any
// external calls.
type templateEnhancer struct{}

// NewTemplateEnhancer creates the offline fallback enhancer.
func NewTemplateEnhancer() Enhancer {
	return &templateEnhancer{}
}

func (e *templateEnhancer) Enhance(_ context.Context, raw RawAlert) (TravelerAlert, error) {
	severity := inferSeverity(raw.Title + " " + raw.Description)

	headline := raw.Title
	if headline == "" {
		headline = raw.Description
	}
	if headline == "" {
		headline = "Hazard reported ahead"
	}

	return TravelerAlert{
		ID:          raw.ID,
		Headline:    truncate(headline, 120),
		Advice:      adviceFor(severity),
		Severity:    severity,
		Original:    raw.Description,
		ProcessedAt: time.Now(),
	}, nil
}

func (e *templateEnhancer) HealthCheck(context.Context) error {
	return nil
}

var (
	dangerTerms = []string{
		"submerged", "washed out", "washout", "impassable", "closed",
		"breach", "collapsed", "do not cross",
	}
	warningTerms = []string{
		"overflow", "rising", "flood", "waterlogged", "heavy rain",
		"standing water", "inundat",
	}
)

// inferSeverity scans for hazard keywords, worst match wins.
func inferSeverity(text string) string {
	lower := strings.ToLower(text)
	for _, term := range dangerTerms {
		if strings.Contains(lower, term) {
			return SeverityDanger
		}
	}
	for _, term := range warningTerms {
		if strings.Contains(lower, term) {
			return SeverityWarning
		}
	}
	return SeverityAdvisory
}

func adviceFor(severity string) string {
	switch severity {
	case SeverityDanger:
		return "Do not attempt to pass. Turn around and follow the suggested detour."
	case SeverityWarning:
		return "Expect water on the road. Slow down and be ready to reroute."
	default:
		return "Conditions may change quickly. Stay alert near the affected area."
	}
}
