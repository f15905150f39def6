package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/pkg/config"
)

// PersistResult reports what a Policy did with a candidate batch.
type PersistResult struct {
	Inserted   []database.Alert
	Suppressed int
}

// Policy de-duplicates candidates against the active set and writes the survivors.
// Store failures are logged and counted, never returned.
type Policy interface {
	Name() string
	Persist(ctx context.Context, candidates []database.Alert) PersistResult
}

// NewPolicy returns the policy registered under name.
func NewPolicy(name string, store AlertStore, metrics *observability.Metrics, logger *slog.Logger) (Policy, error) {
	switch name {
	case config.PolicyTuple:
		return NewTupleDedup(store, metrics, logger), nil
	case config.PolicyReplace:
		return NewReplaceByAirfield(store, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q", name)
	}
}

type tupleKey struct {
	userID     string
	airfieldID string
	alertType  database.AlertType
	severity   database.Severity
}

func keyOf(a database.Alert) tupleKey {
	return tupleKey{a.UserID, a.AirfieldID, a.AlertType, a.Severity}
}

// TupleDedup drops any candidate whose (user, airfield, type, severity) is
// already active, or already earlier in the same batch. Existing alerts are
// never touched, so a worsening condition surfaces only as a new severity tuple.
type TupleDedup struct {
	store   AlertStore
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewTupleDedup(store AlertStore, metrics *observability.Metrics, logger *slog.Logger) *TupleDedup {
	return &TupleDedup{store: store, metrics: metrics, logger: logger}
}

func (p *TupleDedup) Name() string { return config.PolicyTuple }

func (p *TupleDedup) Persist(ctx context.Context, candidates []database.Alert) PersistResult {
	if len(candidates) == 0 {
		return PersistResult{}
	}

	active, err := p.store.ActiveAlerts(ctx)
	if err != nil {
		p.metrics.PersistErrors.Inc()
		p.logger.Error("load active alerts failed, dropping batch", "candidates", len(candidates), "error", err)
		return PersistResult{}
	}

	seen := make(map[tupleKey]struct{}, len(active)+len(candidates))
	for _, a := range active {
		seen[keyOf(a)] = struct{}{}
	}

	var fresh []database.Alert
	suppressed := 0
	for _, c := range candidates {
		k := keyOf(c)
		if _, dup := seen[k]; dup {
			suppressed++
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, c)
	}
	p.metrics.AlertsSuppressed.Add(float64(suppressed))

	if len(fresh) == 0 {
		p.logger.Debug("no new alerts, conditions stable or already alerted", "suppressed", suppressed)
		return PersistResult{Suppressed: suppressed}
	}

	if err := p.store.InsertAlerts(ctx, fresh); err != nil {
		p.metrics.PersistErrors.Inc()
		p.logger.Error("insert alerts failed", "count", len(fresh), "error", err)
		return PersistResult{Suppressed: suppressed}
	}

	countCreated(p.metrics, fresh)
	return PersistResult{Inserted: fresh, Suppressed: suppressed}
}

// ReplaceByAirfield clears a (user, airfield) pair's active alerts and inserts
// the fresh batch for that pair. Pairs with no candidates are left untouched.
type ReplaceByAirfield struct {
	store   AlertStore
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewReplaceByAirfield(store AlertStore, metrics *observability.Metrics, logger *slog.Logger) *ReplaceByAirfield {
	return &ReplaceByAirfield{store: store, metrics: metrics, logger: logger}
}

func (p *ReplaceByAirfield) Name() string { return config.PolicyReplace }

func (p *ReplaceByAirfield) Persist(ctx context.Context, candidates []database.Alert) PersistResult {
	type pair struct{ userID, airfieldID string }

	var order []pair
	groups := make(map[pair][]database.Alert)
	for _, c := range candidates {
		k := pair{c.UserID, c.AirfieldID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	var result PersistResult
	for _, k := range order {
		batch := groups[k]

		// Inserting over alerts that are still active would duplicate tuples.
		if err := p.store.DeactivateAirfieldAlerts(ctx, k.userID, k.airfieldID); err != nil {
			p.metrics.PersistErrors.Inc()
			p.logger.Error("deactivate airfield alerts failed, skipping insert",
				"user_id", k.userID, "airfield_id", k.airfieldID, "count", len(batch), "error", err)
			continue
		}

		if err := p.store.InsertAlerts(ctx, batch); err != nil {
			p.metrics.PersistErrors.Inc()
			p.logger.Error("insert alerts failed",
				"user_id", k.userID, "airfield_id", k.airfieldID, "count", len(batch), "error", err)
			continue
		}

		countCreated(p.metrics, batch)
		result.Inserted = append(result.Inserted, batch...)
	}
	return result
}

func countCreated(m *observability.Metrics, alerts []database.Alert) {
	for _, a := range alerts {
		m.AlertsCreated.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
	}
}
