package mapbox

import (
	"context"
	"fmt"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedLookup wraps a PlaceLookup with an in-memory LRU cache keyed by
// coordinate. Hotspots sit on fixed cell centers, so repeat selections of the
// same cell hit the cache.
type CachedLookup struct {
	inner   domain.PlaceLookup
	cache   *lru.Cache[string, domain.PlaceResult]
	metrics *observability.Metrics
}

// NewCachedLookup creates a cache decorator around a lookup.
func NewCachedLookup(inner domain.PlaceLookup, maxEntries int, metrics *observability.Metrics) (*CachedLookup, error) {
	cache, err := lru.New[string, domain.PlaceResult](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create place cache: %w", err)
	}
	return &CachedLookup{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedLookup) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.PlaceResult, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.cache.Add(key, result)
	}
	return result, nil
}

// Len reports the number of cached places.
func (c *CachedLookup) Len() int { return c.cache.Len() }
