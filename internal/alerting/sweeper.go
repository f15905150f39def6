package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/internal/weather"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Skipped       bool      `json:"skipped,omitempty"`
	Thresholds    int       `json:"thresholds"`
	Airfields     int       `json:"airfields"`
	FetchFailures int       `json:"fetch_failures"`
	Expired       int64     `json:"expired"`
	Candidates    int       `json:"candidates"`
	Suppressed    int       `json:"suppressed"`
	Inserted      int       `json:"inserted"`
	Notified      int       `json:"notified"`
}

// SweeperDeps are the collaborators of a Sweeper. Lease and Publisher are optional.
type SweeperDeps struct {
	Thresholds ThresholdStore
	Alerts     AlertStore
	Provider   weather.Provider
	Policy     Policy
	Publisher  Publisher
	Lease      Lease
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// SweeperConfig tunes a Sweeper.
type SweeperConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
	LockTTL      time.Duration
	AlertTTL     time.Duration
}

// Sweeper evaluates every active user threshold against a fresh observation
// of its airfield.
type Sweeper struct {
	deps SweeperDeps
	cfg  SweeperConfig

	mu        sync.Mutex // one run at a time within this process
	completed atomic.Bool
}

func NewSweeper(deps SweeperDeps, cfg SweeperConfig) *Sweeper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Sweeper{deps: deps, cfg: cfg}
}

type fetchJob struct {
	index    int
	airfield database.Airfield
}

type fetchResult struct {
	obs weather.Observation
	err error
}

// Run performs one sweep. It returns an error only when the run could not
// start: the threshold store was unreadable or ctx ended before persisting.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := clock.Now()
	result := SweepResult{RunID: uuid.NewString(), StartedAt: start.UTC()}
	logger := s.deps.Logger.With("run_id", result.RunID)

	if s.deps.Lease != nil {
		token, ok, err := s.deps.Lease.TryAcquire(ctx, s.cfg.LockTTL)
		switch {
		case err != nil:
			// Without Redis a concurrent replica may duplicate inserts; that race is tolerated.
			logger.Warn("sweep lease unavailable, continuing without it", "error", err)
		case !ok:
			logger.Info("sweep skipped, lease held by another replica")
			s.deps.Metrics.SweepRuns.WithLabelValues("skipped").Inc()
			result.Skipped = true
			return result, nil
		default:
			defer func() {
				if err := s.deps.Lease.Release(context.WithoutCancel(ctx), token); err != nil {
					logger.Warn("sweep lease release failed", "error", err)
				}
			}()
		}
	}

	thresholds, err := s.deps.Thresholds.ActiveThresholds(ctx)
	if err != nil {
		s.deps.Metrics.SweepRuns.WithLabelValues("failed").Inc()
		logger.Error("load active thresholds failed", "error", err)
		return result, fmt.Errorf("load active thresholds: %w", err)
	}
	result.Thresholds = len(thresholds)

	result.Expired = s.expire(ctx, logger)

	if len(thresholds) == 0 {
		logger.Info("no active thresholds")
		s.finish(start, result, logger)
		return result, nil
	}

	// One fetch per distinct airfield.
	var airfields []database.Airfield
	byAirfield := make(map[string][]database.Threshold)
	codes := make(map[string]string)
	for _, t := range thresholds {
		if _, seen := byAirfield[t.AirfieldID]; !seen {
			airfields = append(airfields, t.Airfield)
			codes[t.AirfieldID] = t.Airfield.Code
		}
		byAirfield[t.AirfieldID] = append(byAirfield[t.AirfieldID], t.Threshold)
	}
	result.Airfields = len(airfields)

	observations := s.fetchAll(ctx, airfields)

	if err := ctx.Err(); err != nil {
		s.deps.Metrics.SweepRuns.WithLabelValues("failed").Inc()
		logger.Warn("sweep abandoned", "error", err)
		return result, err
	}

	var candidates []database.Alert
	for i, af := range airfields {
		r := observations[i]
		if r.err != nil {
			result.FetchFailures++
			logger.Warn("observation fetch failed, skipping airfield",
				"airfield_id", af.ID, "code", af.Code, "error", r.err)
			continue
		}
		for j := range byAirfield[af.ID] {
			candidates = append(candidates, EvaluateThreshold(&byAirfield[af.ID][j], af, r.obs)...)
		}
	}
	candidates = WithExpiry(candidates, s.cfg.AlertTTL)
	result.Candidates = len(candidates)

	persisted := s.deps.Policy.Persist(ctx, candidates)
	result.Suppressed = persisted.Suppressed
	result.Inserted = len(persisted.Inserted)
	result.Notified = publishAlerts(ctx, s.deps.Publisher, persisted.Inserted, codes, logger)

	s.finish(start, result, logger)
	return result, nil
}

func (s *Sweeper) expire(ctx context.Context, logger *slog.Logger) int64 {
	n, err := s.deps.Alerts.DeactivateExpired(ctx, clock.Now().UTC())
	if err != nil {
		s.deps.Metrics.PersistErrors.Inc()
		logger.Error("deactivate expired alerts failed", "error", err)
		return 0
	}
	s.deps.Metrics.AlertsExpired.Add(float64(n))
	return n
}

// fetchAll fetches observations with a bounded pool of workers. Each fetch
// gets its own timeout so one slow airfield does not stall the rest.
func (s *Sweeper) fetchAll(ctx context.Context, airfields []database.Airfield) []fetchResult {
	results := make([]fetchResult, len(airfields))
	jobs := make(chan fetchJob)

	workers := min(s.cfg.Concurrency, len(airfields))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
				obs, err := s.deps.Provider.Fetch(fctx, job.airfield.Latitude, job.airfield.Longitude)
				cancel()
				if err == nil {
					obs.AirfieldID = job.airfield.ID
				}
				results[job.index] = fetchResult{obs: obs, err: err}
			}
		}()
	}

	for i, af := range airfields {
		select {
		case jobs <- fetchJob{index: i, airfield: af}:
		case <-ctx.Done():
			for j := i; j < len(airfields); j++ {
				results[j] = fetchResult{err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Sweeper) finish(start time.Time, result SweepResult, logger *slog.Logger) {
	s.deps.Metrics.SweepRuns.WithLabelValues("success").Inc()
	s.deps.Metrics.SweepDuration.Observe(clock.Since(start).Seconds())
	s.completed.Store(true)

	logger.Info("sweep complete",
		"thresholds", result.Thresholds,
		"airfields", result.Airfields,
		"fetch_failures", result.FetchFailures,
		"expired", result.Expired,
		"candidates", result.Candidates,
		"suppressed", result.Suppressed,
		"inserted", result.Inserted,
	)
}

// ErrNoSweepYet is reported by CheckReadiness until a sweep has completed.
var ErrNoSweepYet = errors.New("no sweep completed yet")

// CheckReadiness reports ready once the first sweep has completed.
func (s *Sweeper) CheckReadiness(_ context.Context) error {
	if !s.completed.Load() {
		return ErrNoSweepYet
	}
	return nil
}
