package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/airfield-alerts/internal/observability"
)

// CachedProvider wraps a Provider with a shared Redis cache keyed by coordinate,
// so sweeper replicas and repeated runs inside the TTL reuse one reading.
type CachedProvider struct {
	inner   Provider
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		redis:   client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("observation:%.3f,%.3f", lat, lon)
}

// Fetch returns the cached reading for the coordinate, or fetches and caches a
// fresh one. A non-positive TTL disables caching, since Redis would keep the
// entry forever.
func (c *CachedProvider) Fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	if c.ttl <= 0 {
		return c.inner.Fetch(ctx, lat, lon)
	}
	key := cacheKey(lat, lon)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var obs Observation
		if jsonErr := json.Unmarshal(data, &obs); jsonErr == nil {
			c.metrics.ObservationCache.WithLabelValues("hit").Inc()
			return obs, nil
		}
		c.logger.Warn("discarding corrupt cached observation", "key", key)
	case !errors.Is(err, redis.Nil):
		// A cache outage degrades to direct fetches.
		c.logger.Warn("observation cache read failed", "key", key, "error", err)
	}
	c.metrics.ObservationCache.WithLabelValues("miss").Inc()

	obs, err := c.inner.Fetch(ctx, lat, lon)
	if err != nil {
		return Observation{}, err
	}

	if data, err := json.Marshal(obs); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("observation cache write failed", "key", key, "error", err)
		}
	}
	return obs, nil
}
