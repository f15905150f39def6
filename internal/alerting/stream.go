package alerting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/observability"
	"github.com/smukkama/airfield-alerts/internal/protocol"
)

// MessageSource is a committing message reader. *queue.Consumer satisfies it.
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// readinessChecker is implemented by sources that can probe their broker.
// *queue.Consumer does.
type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// StreamEvaluator evaluates dashboard refreshes against the fixed bands.
type StreamEvaluator struct {
	source    MessageSource
	policy    Policy
	publisher Publisher
	bands     Bands
	alertTTL  time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger

	backoff time.Duration
	ready   chan struct{}
}

// NewStreamEvaluator wires the evaluator. publisher may be nil.
func NewStreamEvaluator(source MessageSource, policy Policy, publisher Publisher, bands Bands, alertTTL time.Duration,
	metrics *observability.Metrics, logger *slog.Logger) *StreamEvaluator {
	return &StreamEvaluator{
		source:    source,
		policy:    policy,
		publisher: publisher,
		bands:     bands,
		alertTTL:  alertTTL,
		metrics:   metrics,
		logger:    logger,
		backoff:   time.Second,
		ready:     make(chan struct{}),
	}
}

// Handle evaluates one encoded EvaluationRequest and persists the result.
func (e *StreamEvaluator) Handle(ctx context.Context, data []byte) ([]database.Alert, error) {
	req, err := protocol.DecodeEvaluationRequest(data)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, req), nil
}

// Evaluate runs the band rules for one request and persists with the configured policy.
func (e *StreamEvaluator) Evaluate(ctx context.Context, req *protocol.EvaluationRequest) []database.Alert {
	obs := req.Observation
	obs.AirfieldID = req.Airfield.ID

	candidates := EvaluateBands(req.Airfield, req.UserID, obs, e.bands.WithOverrides(req.Bands))
	candidates = WithExpiry(candidates, e.alertTTL)

	logger := e.logger.With("user_id", req.UserID, "airfield_id", req.Airfield.ID, "code", req.Airfield.Code)
	if len(candidates) == 0 {
		logger.Debug("conditions within bands")
		return nil
	}

	persisted := e.policy.Persist(ctx, candidates)
	publishAlerts(ctx, e.publisher, persisted.Inserted, map[string]string{req.Airfield.ID: req.Airfield.Code}, logger)

	logger.Info("evaluation complete",
		"candidates", len(candidates),
		"inserted", len(persisted.Inserted),
		"suppressed", persisted.Suppressed,
	)
	return persisted.Inserted
}

// Run consumes until ctx is cancelled. Offsets are committed after each
// message is handled; undecodable messages are committed and skipped.
func (e *StreamEvaluator) Run(ctx context.Context) error {
	e.logger.Info("stream evaluator started", "policy", e.policy.Name())
	close(e.ready)

	for {
		msg, err := e.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("consume failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-clock.After(e.backoff):
			}
			continue
		}

		if _, err := e.Handle(ctx, msg.Value); err != nil {
			e.metrics.EvaluationRequests.WithLabelValues("decode_error").Inc()
			e.logger.Warn("discarding evaluation request",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else {
			e.metrics.EvaluationRequests.WithLabelValues("processed").Inc()
		}

		if err := e.source.Commit(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			e.logger.Error("commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// CheckReadiness reports ready once Run has started consuming and, when the
// source can report it, the source is reachable.
func (e *StreamEvaluator) CheckReadiness(ctx context.Context) error {
	select {
	case <-e.ready:
	default:
		return errors.New("stream evaluator not started")
	}
	if rc, ok := e.source.(readinessChecker); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}
