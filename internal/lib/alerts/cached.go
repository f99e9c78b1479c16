package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/cache"
)

// CachedEnhancer wraps an Enhancer with content-based caching so each
// distinct hazard pays for at most one rewrite per TTL window.
type CachedEnhancer struct {
	enhancer Enhancer
	store    *cache.Cache
	hasher   *ContentHasher
	ttl      time.Duration
	log      *zap.SugaredLogger
}

// NewCachedEnhancer creates the caching wrapper. A non-positive TTL
// defaults to 24 hours.
func NewCachedEnhancer(enhancer Enhancer, store *cache.Cache, ttl time.Duration, log *zap.SugaredLogger) *CachedEnhancer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEnhancer{
		enhancer: enhancer,
		store:    store,
		hasher:   NewContentHasher(),
		ttl:      ttl,
		log:      log,
	}
}

// Enhance returns the cached rewrite for identical content, calling the
// wrapped enhancer only on a miss.
func (c *CachedEnhancer) Enhance(ctx context.Context, raw RawAlert) (TravelerAlert, error) {
	key := "alert:" + c.hasher.HashRawAlert(raw)

	var cached TravelerAlert
	if found, err := c.store.Get(key, &cached); err == nil && found {
		// The hash covers content, not identity; restore the caller's ID
		cached.ID = raw.ID
		return cached, nil
	}

	enhanced, err := c.enhancer.Enhance(ctx, raw)
	if err != nil {
		return TravelerAlert{}, err
	}

	if err := c.store.Set(key, enhanced, c.ttl, "alerts"); err != nil {
		c.log.Warnw("failed to cache enhanced alert", "key", key, "error", err)
	}
	return enhanced, nil
}

// HealthCheck delegates to the wrapped enhancer.
func (c *CachedEnhancer) HealthCheck(ctx context.Context) error {
	return c.enhancer.HealthCheck(ctx)
}

// IsCached reports whether a notice would be served from cache.
func (c *CachedEnhancer) IsCached(raw RawAlert) bool {
	key := "alert:" + c.hasher.HashRawAlert(raw)
	var cached TravelerAlert
	found, err := c.store.Get(key, &cached)
	return err == nil && found
}
