package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/airfield-alerts/internal/observability"
)

type countingProvider struct {
	calls int
	obs   Observation
	err   error
}

func (p *countingProvider) Fetch(_ context.Context, lat, lon float64) (Observation, error) {
	p.calls++
	if p.err != nil {
		return Observation{}, p.err
	}
	obs := p.obs
	obs.Latitude, obs.Longitude = lat, lon
	return obs, nil
}

func newTestCache(t *testing.T, inner Provider) (*CachedProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCachedProvider(inner, client, 5*time.Minute, observability.NewMetricsForTesting(), discardLogger()), mr
}

func TestCachedProvider_HitAvoidsProviderCall(t *testing.T) {
	inner := &countingProvider{obs: Observation{Temperature: 18, Condition: "Fog", Visibility: 2}}
	cached, _ := newTestCache(t, inner)

	first, err := cached.Fetch(context.Background(), 51.4706, -0.4619)
	require.NoError(t, err)
	second, err := cached.Fetch(context.Background(), 51.4706, -0.4619)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, first.Condition, second.Condition)
	assert.InDelta(t, 2.0, second.Visibility, 0.0001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(cached.metrics.ObservationCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(cached.metrics.ObservationCache.WithLabelValues("miss")), 0)
}

func TestCachedProvider_ExpiresAfterTTL(t *testing.T) {
	inner := &countingProvider{}
	cached, mr := newTestCache(t, inner)

	_, err := cached.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cacheKey(1, 2)))

	mr.FastForward(6 * time.Minute)

	_, err = cached.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_DistinctCoordinates(t *testing.T) {
	inner := &countingProvider{}
	cached, _ := newTestCache(t, inner)

	_, _ = cached.Fetch(context.Background(), 1, 2)
	_, _ = cached.Fetch(context.Background(), 3, 4)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("provider down")}
	cached, mr := newTestCache(t, inner)

	_, err := cached.Fetch(context.Background(), 1, 2)
	require.Error(t, err)
	assert.False(t, mr.Exists(cacheKey(1, 2)))
}

func TestCachedProvider_RedisDownFallsThrough(t *testing.T) {
	inner := &countingProvider{obs: Observation{Condition: "Clear"}}
	cached, mr := newTestCache(t, inner)
	mr.Close()

	obs, err := cached.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Clear", obs.Condition)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProvider_NonPositiveTTLBypassesCache(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Minute} {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })

		inner := &countingProvider{obs: Observation{Condition: "Clear"}}
		cached := NewCachedProvider(inner, client, ttl, observability.NewMetricsForTesting(), discardLogger())

		_, err := cached.Fetch(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.False(t, mr.Exists(cacheKey(1, 2)), "ttl %s must not store an entry", ttl)

		mr.FastForward(24 * time.Hour)
		inner.obs.Condition = "Thunderstorm"

		obs, err := cached.Fetch(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, "Thunderstorm", obs.Condition)
		assert.Equal(t, 2, inner.calls)
	}
}
