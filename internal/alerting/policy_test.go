package alerting

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/pkg/config"
)

func candidate(user, airfield string, typ database.AlertType, sev database.Severity) database.Alert {
	return newAlert(airfield, user, typ, sev, "t", "m", nil, nil, 100)
}

func TestNewPolicy(t *testing.T) {
	m := observability.NewMetricsForTesting()
	store := &memoryStore{}

	p, err := NewPolicy(config.PolicyTuple, store, m, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &TupleDedup{}, p)

	p, err = NewPolicy(config.PolicyReplace, store, m, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, config.PolicyReplace, p.Name())

	_, err = NewPolicy("latest", store, m, discardLogger())
	assert.Error(t, err)
}

func TestTupleDedup_ConsecutiveIdenticalRunsLeaveOneActive(t *testing.T) {
	store := &memoryStore{}
	p := NewTupleDedup(store, observability.NewMetricsForTesting(), discardLogger())
	ctx := context.Background()

	first := p.Persist(ctx, []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})
	second := p.Persist(ctx, []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})

	assert.Len(t, first.Inserted, 1)
	assert.Empty(t, second.Inserted)
	assert.Equal(t, 1, second.Suppressed)
	assert.Len(t, store.active(), 1)
}

func TestTupleDedup_DistinctTuplesPass(t *testing.T) {
	store := &memoryStore{alerts: []database.Alert{
		{ID: "old", UserID: "u1", AirfieldID: "a1", AlertType: database.AlertTypeWind, Severity: database.SeverityMedium, IsActive: true},
	}}
	p := NewTupleDedup(store, observability.NewMetricsForTesting(), discardLogger())

	res := p.Persist(context.Background(), []database.Alert{
		candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh),  // new severity
		candidate("u2", "a1", database.AlertTypeWind, database.SeverityMedium), // other user
		candidate("u1", "a2", database.AlertTypeWind, database.SeverityMedium), // other airfield
	})
	assert.Len(t, res.Inserted, 3)
	assert.Equal(t, 0, res.Suppressed)
	assert.Len(t, store.active(), 4, "existing alert is preserved")
}

func TestTupleDedup_InBatchDuplicates(t *testing.T) {
	store := &memoryStore{}
	m := observability.NewMetricsForTesting()
	p := NewTupleDedup(store, m, discardLogger())

	res := p.Persist(context.Background(), []database.Alert{
		candidate("u1", "a1", database.AlertTypeStorm, database.SeverityCritical),
		candidate("u1", "a1", database.AlertTypeStorm, database.SeverityCritical),
	})
	assert.Len(t, res.Inserted, 1)
	assert.Equal(t, 1, res.Suppressed)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.AlertsSuppressed), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.AlertsCreated.WithLabelValues("storm", "critical")), 0)
}

func TestTupleDedup_ActiveReadFailureDropsBatch(t *testing.T) {
	store := &memoryStore{activeErr: errors.New("connection refused")}
	m := observability.NewMetricsForTesting()
	p := NewTupleDedup(store, m, discardLogger())

	res := p.Persist(context.Background(), []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})
	assert.Empty(t, res.Inserted)
	assert.NotContains(t, store.calls, "insert")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PersistErrors), 0)
}

func TestTupleDedup_InsertFailureIsSwallowed(t *testing.T) {
	store := &memoryStore{insertErr: errors.New("deadlock detected")}
	m := observability.NewMetricsForTesting()
	p := NewTupleDedup(store, m, discardLogger())

	res := p.Persist(context.Background(), []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})
	assert.Empty(t, res.Inserted)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PersistErrors), 0)
}

func TestTupleDedup_EmptyBatchSkipsStore(t *testing.T) {
	store := &memoryStore{}
	p := NewTupleDedup(store, observability.NewMetricsForTesting(), discardLogger())
	p.Persist(context.Background(), nil)
	assert.Empty(t, store.calls)
}

func TestReplaceByAirfield_DeactivatesBeforeInsert(t *testing.T) {
	store := &memoryStore{alerts: []database.Alert{
		{ID: "old-1", UserID: "u1", AirfieldID: "a1", AlertType: database.AlertTypeWind, Severity: database.SeverityHigh, IsActive: true},
		{ID: "other", UserID: "u1", AirfieldID: "a2", AlertType: database.AlertTypeWind, Severity: database.SeverityHigh, IsActive: true},
	}}
	p := NewReplaceByAirfield(store, observability.NewMetricsForTesting(), discardLogger())

	res := p.Persist(context.Background(), []database.Alert{
		candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh),
		candidate("u1", "a1", database.AlertTypeVisibility, database.SeverityMedium),
	})
	require.Len(t, res.Inserted, 2)
	assert.Equal(t, []string{"deactivate", "insert"}, store.calls)

	var ids []string
	for _, a := range store.active() {
		ids = append(ids, a.ID)
	}
	assert.NotContains(t, ids, "old-1")
	assert.Contains(t, ids, "other", "other airfields are untouched")
	assert.Len(t, ids, 3)
}

func TestReplaceByAirfield_EmptyBatchKeepsExisting(t *testing.T) {
	store := &memoryStore{alerts: []database.Alert{
		{ID: "old", UserID: "u1", AirfieldID: "a1", IsActive: true},
	}}
	p := NewReplaceByAirfield(store, observability.NewMetricsForTesting(), discardLogger())

	res := p.Persist(context.Background(), nil)
	assert.Empty(t, res.Inserted)
	assert.Empty(t, store.calls)
	assert.Len(t, store.active(), 1)
}

func TestReplaceByAirfield_GroupsPerPair(t *testing.T) {
	store := &memoryStore{}
	p := NewReplaceByAirfield(store, observability.NewMetricsForTesting(), discardLogger())

	p.Persist(context.Background(), []database.Alert{
		candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh),
		candidate("u2", "a1", database.AlertTypeWind, database.SeverityHigh),
		candidate("u1", "a1", database.AlertTypeWeather, database.SeverityMedium),
	})
	assert.Equal(t, []string{"deactivate", "insert", "deactivate", "insert"}, store.calls)
	assert.Len(t, store.active(), 3)
}

func TestReplaceByAirfield_DeactivateFailureSkipsInsert(t *testing.T) {
	store := &memoryStore{
		alerts: []database.Alert{
			{ID: "old-1", UserID: "u1", AirfieldID: "a1", AlertType: database.AlertTypeWind, Severity: database.SeverityHigh, IsActive: true},
		},
		deactivateErr: errors.New("timeout"),
	}
	m := observability.NewMetricsForTesting()
	p := NewReplaceByAirfield(store, m, discardLogger())

	res := p.Persist(context.Background(), []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})
	assert.Empty(t, res.Inserted)
	assert.Equal(t, []string{"deactivate"}, store.calls)
	require.Len(t, store.active(), 1, "no second active alert for the same tuple")
	assert.Equal(t, "old-1", store.active()[0].ID)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PersistErrors), 0)
}

func TestReplaceByAirfield_InsertFailureIsSwallowed(t *testing.T) {
	store := &memoryStore{insertErr: errors.New("disk full")}
	m := observability.NewMetricsForTesting()
	p := NewReplaceByAirfield(store, m, discardLogger())

	res := p.Persist(context.Background(), []database.Alert{candidate("u1", "a1", database.AlertTypeWind, database.SeverityHigh)})
	assert.Empty(t, res.Inserted)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PersistErrors), 0)
}
