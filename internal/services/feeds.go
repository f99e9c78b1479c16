package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/floodwatch"
	"github.com/SPIDERMANrr/HYDRONAV/internal/config"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/alerts"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/hazard"
)

// feedFetchTimeout bounds one advisory feed download.
const feedFetchTimeout = 30 * time.Second

// FeedService polls the configured KML advisory feeds, folds their
// advisories into the hazard set, and keeps traveler-friendly alert text
// for each. Content fingerprints skip zone churn when a feed body has not
// changed between refreshes.
type FeedService struct {
	parser   *floodwatch.Parser
	zones    *hazard.Set
	enhancer alerts.Enhancer
	feeds    []config.FeedConfig
	log      *zap.SugaredLogger

	mu           sync.Mutex
	fingerprints map[string]string
	alerts       map[string][]alerts.TravelerAlert
}

// NewFeedService wires the advisory feed poller. The enhancer may be nil,
// in which case alert text passes through the offline templates.
func NewFeedService(parser *floodwatch.Parser, zones *hazard.Set, enhancer alerts.Enhancer, feeds []config.FeedConfig, log *zap.SugaredLogger) *FeedService {
	if enhancer == nil {
		enhancer = alerts.NewTemplateEnhancer()
	}
	return &FeedService{
		parser:       parser,
		zones:        zones,
		enhancer:     enhancer,
		feeds:        feeds,
		log:          log,
		fingerprints: make(map[string]string),
		alerts:       make(map[string][]alerts.TravelerAlert),
	}
}

// Start launches one polling goroutine per configured feed. Each polls
// immediately and then on its own refresh interval until ctx ends.
func (f *FeedService) Start(ctx context.Context) {
	for _, fc := range f.feeds {
		go f.poll(ctx, fc)
	}
}

// Alerts returns the current traveler alerts across all feeds.
func (f *FeedService) Alerts() []alerts.TravelerAlert {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []alerts.TravelerAlert
	for _, fc := range f.feeds {
		out = append(out, f.alerts[fc.Name]...)
	}
	return out
}

// Refresh fetches one feed immediately, outside its polling schedule.
func (f *FeedService) Refresh(ctx context.Context, fc config.FeedConfig) error {
	return f.refreshFeed(ctx, fc)
}

func (f *FeedService) poll(ctx context.Context, fc config.FeedConfig) {
	if fc.RefreshInterval <= 0 {
		fc.RefreshInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(fc.RefreshInterval)
	defer ticker.Stop()

	if err := f.refreshFeed(ctx, fc); err != nil {
		f.log.Warnw("advisory feed refresh failed", "feed", fc.Name, "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.refreshFeed(ctx, fc); err != nil {
				f.log.Warnw("advisory feed refresh failed", "feed", fc.Name, "error", err)
			}
		}
	}
}

// refreshFeed downloads one feed and replaces its zones and alerts. A
// failed fetch keeps the previous zones; stale hazards beat no hazards.
func (f *FeedService) refreshFeed(ctx context.Context, fc config.FeedConfig) error {
	fetchCtx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
	defer cancel()

	advisories, err := f.parser.Fetch(fetchCtx, floodwatch.Feed{Name: fc.Name, URL: fc.URL})
	if err != nil {
		return fmt.Errorf("failed to fetch feed %s: %w", fc.Name, err)
	}

	fingerprint := floodwatch.Fingerprint(advisories)
	f.mu.Lock()
	unchanged := f.fingerprints[fc.Name] == fingerprint && len(f.alerts[fc.Name]) > 0
	f.fingerprints[fc.Name] = fingerprint
	f.mu.Unlock()
	if unchanged {
		f.log.Debugw("advisory feed unchanged", "feed", fc.Name)
		return nil
	}

	zones := make([]hazard.Zone, 0, len(advisories))
	enhanced := make([]alerts.TravelerAlert, 0, len(advisories))
	for i, adv := range advisories {
		zone, err := adv.HazardZone()
		if err != nil {
			f.log.Warnw("dropping advisory with unusable geometry",
				"feed", fc.Name, "advisory", adv.Name, "error", err)
			continue
		}
		zones = append(zones, zone)
		enhanced = append(enhanced, f.enhance(ctx, fc.Name, i, adv, zone))
	}

	f.zones.ReplaceSource(fc.Name, zones)
	f.mu.Lock()
	f.alerts[fc.Name] = enhanced
	f.mu.Unlock()

	f.log.Infow("advisory feed refreshed",
		"feed", fc.Name,
		"advisories", len(advisories),
		"zones", len(zones))
	return nil
}

// enhance turns one advisory into traveler alert text. Enhancement failures
// fall back to the offline templates so the alert always exists.
func (f *FeedService) enhance(ctx context.Context, feedName string, i int, adv floodwatch.Advisory, zone hazard.Zone) alerts.TravelerAlert {
	raw := alerts.RawAlert{
		ID:          fmt.Sprintf("%s-%d", feedName, i),
		Title:       adv.Name,
		Description: adv.DescriptionText,
		Location:    fmt.Sprintf("%.4f,%.4f", zone.Center.Latitude, zone.Center.Longitude),
		Source:      feedName,
		ReportedAt:  adv.FetchedAt,
	}

	enhanceCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	out, err := f.enhancer.Enhance(enhanceCtx, raw)
	if err != nil {
		f.log.Warnw("alert enhancement failed, using template text",
			"feed", feedName, "advisory", adv.Name, "error", err)
		out, _ = alerts.NewTemplateEnhancer().Enhance(ctx, raw)
	}
	return out
}
