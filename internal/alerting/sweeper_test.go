package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/internal/protocol"
	"github.com/smukkama/airfield-alerts/internal/weather"
)

var (
	egll = database.Airfield{ID: "af-egll", Code: "EGLL", Latitude: 51.47, Longitude: -0.46, IsActive: true}
	lfpg = database.Airfield{ID: "af-lfpg", Code: "LFPG", Latitude: 49.01, Longitude: 2.55, IsActive: true}
	kjfk = database.Airfield{ID: "af-kjfk", Code: "KJFK", Latitude: 40.64, Longitude: -73.78, IsActive: true}
)

func activeThreshold(user string, af database.Airfield, windMax float64) database.ActiveThreshold {
	return database.ActiveThreshold{
		Threshold: database.Threshold{
			ID: user + "-" + af.ID, UserID: user, AirfieldID: af.ID,
			WindSpeedMax: ptr(windMax), IsActive: true,
		},
		Airfield: af,
	}
}

type sweepFixture struct {
	store     *memoryStore
	provider  *stubProvider
	publisher *recordingPublisher
	metrics   *observability.Metrics
	sweeper   *Sweeper
}

func newSweepFixture(t *testing.T, thresholds ...database.ActiveThreshold) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		store: &memoryStore{thresholds: thresholds},
		provider: &stubProvider{
			obs:   map[float64]weather.Observation{},
			errs:  map[float64]error{},
			delay: map[float64]time.Duration{},
		},
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
	f.sweeper = NewSweeper(SweeperDeps{
		Thresholds: f.store,
		Alerts:     f.store,
		Provider:   f.provider,
		Policy:     NewTupleDedup(f.store, f.metrics, discardLogger()),
		Publisher:  f.publisher,
		Metrics:    f.metrics,
		Logger:     discardLogger(),
	}, SweeperConfig{Concurrency: 2, FetchTimeout: time.Second})
	return f
}

func TestSweeper_EvaluatesEachThreshold(t *testing.T) {
	f := newSweepFixture(t,
		activeThreshold("u1", egll, 30),
		activeThreshold("u2", egll, 50),
		activeThreshold("u1", lfpg, 30),
	)
	f.provider.obs[egll.Latitude] = weather.Observation{WindSpeed: 45, Visibility: 10, Condition: "Clouds"}
	f.provider.obs[lfpg.Latitude] = weather.Observation{WindSpeed: 10, Visibility: 10, Condition: "Clear"}

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Thresholds)
	assert.Equal(t, 2, res.Airfields)
	assert.Equal(t, 2, f.provider.calls, "one fetch per distinct airfield")
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Notified)

	active := f.store.active()
	require.Len(t, active, 1)
	assert.Equal(t, "u1", active[0].UserID)
	assert.Equal(t, database.SeverityHigh, active[0].Severity)

	require.Len(t, f.publisher.msgs, 1)
	n, err := protocol.DecodeAlertNotification(f.publisher.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "EGLL", n.AirfieldCode)
	assert.Equal(t, "u1-af-egll", f.publisher.keys[0])

	assert.NoError(t, f.sweeper.CheckReadiness(context.Background()))
}

func TestSweeper_RepeatedRunsDoNotDuplicate(t *testing.T) {
	f := newSweepFixture(t, activeThreshold("u1", egll, 30))
	f.provider.obs[egll.Latitude] = weather.Observation{WindSpeed: 55, Condition: "Thunderstorm"}

	first, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	second, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted, "wind and storm")
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Suppressed)
	assert.Len(t, f.store.active(), 2)
}

func TestSweeper_FetchFailureSkipsOnlyThatAirfield(t *testing.T) {
	f := newSweepFixture(t,
		activeThreshold("u1", egll, 30),
		activeThreshold("u1", lfpg, 30),
		activeThreshold("u1", kjfk, 30),
	)
	f.provider.errs[egll.Latitude] = errors.New("503 service unavailable")
	f.provider.delay[lfpg.Latitude] = 5 * time.Second // exceeds the fetch timeout
	f.provider.obs[kjfk.Latitude] = weather.Observation{WindSpeed: 70}

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.FetchFailures)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, kjfk.ID, f.store.active()[0].AirfieldID)
	assert.Equal(t, database.SeverityCritical, f.store.active()[0].Severity)
}

func TestSweeper_ThresholdStoreFailureFailsRun(t *testing.T) {
	f := newSweepFixture(t)
	f.store.thresholdErr = errors.New("relation does not exist")

	_, err := f.sweeper.Run(context.Background())
	require.Error(t, err)
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.metrics.SweepRuns.WithLabelValues("failed")), 0)
	assert.ErrorIs(t, f.sweeper.CheckReadiness(context.Background()), ErrNoSweepYet)
}

func TestSweeper_NoThresholds(t *testing.T) {
	f := newSweepFixture(t)

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Airfields)
	assert.Zero(t, f.provider.calls)
}

func TestSweeper_ExpiresOldAlerts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	f := newSweepFixture(t)
	f.store.alerts = []database.Alert{
		{ID: "expired", IsActive: true, ExpiresAt: &past},
		{ID: "live", IsActive: true, ExpiresAt: &future},
		{ID: "open", IsActive: true},
	}

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Expired)
	assert.Len(t, f.store.active(), 2)
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.metrics.AlertsExpired), 0)
}

func TestSweeper_SetsExpiryFromTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	f := newSweepFixture(t, activeThreshold("u1", egll, 30))
	f.sweeper.cfg.AlertTTL = 6 * time.Hour
	f.provider.obs[egll.Latitude] = weather.Observation{WindSpeed: 45}

	_, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	active := f.store.active()
	require.Len(t, active, 1)
	require.NotNil(t, active[0].ExpiresAt)
	assert.Equal(t, now.Add(6*time.Hour), *active[0].ExpiresAt)
}

func TestSweeper_LeaseHeldElsewhereSkips(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lease := NewRedisLease(client, "sweep:lease")
	_, ok, err := lease.TryAcquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f := newSweepFixture(t, activeThreshold("u1", egll, 30))
	f.sweeper.deps.Lease = lease

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, f.provider.calls)
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.metrics.SweepRuns.WithLabelValues("skipped")), 0)
}

func TestSweeper_ReleasesLeaseAfterRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newSweepFixture(t)
	lease := NewRedisLease(client, "sweep:lease")
	f.sweeper.deps.Lease = lease

	_, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)

	holder, err := lease.Holder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestSweeper_LeaseErrorProceeds(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	f := newSweepFixture(t, activeThreshold("u1", egll, 30))
	f.sweeper.deps.Lease = NewRedisLease(client, "sweep:lease")
	f.provider.obs[egll.Latitude] = weather.Observation{WindSpeed: 45}

	res, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Inserted)
}

func TestSweeper_CancelledContext(t *testing.T) {
	f := newSweepFixture(t, activeThreshold("u1", egll, 30))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sweeper.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.alerts)
}
