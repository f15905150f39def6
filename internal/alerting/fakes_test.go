package alerting

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/weather"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory ThresholdStore and AlertStore.
type memoryStore struct {
	mu         sync.Mutex
	thresholds []database.ActiveThreshold
	alerts     []database.Alert
	calls      []string

	thresholdErr  error
	activeErr     error
	insertErr     error
	deactivateErr error
}

func (s *memoryStore) ActiveThresholds(_ context.Context) ([]database.ActiveThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thresholdErr != nil {
		return nil, s.thresholdErr
	}
	return append([]database.ActiveThreshold(nil), s.thresholds...), nil
}

func (s *memoryStore) ActiveAlerts(_ context.Context) ([]database.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "active")
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	var out []database.Alert
	for _, a := range s.alerts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertAlerts(_ context.Context, alerts []database.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "insert")
	if s.insertErr != nil {
		return s.insertErr
	}
	s.alerts = append(s.alerts, alerts...)
	return nil
}

func (s *memoryStore) DeactivateAirfieldAlerts(_ context.Context, userID, airfieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "deactivate")
	if s.deactivateErr != nil {
		return s.deactivateErr
	}
	for i := range s.alerts {
		if s.alerts[i].UserID == userID && s.alerts[i].AirfieldID == airfieldID {
			s.alerts[i].IsActive = false
		}
	}
	return nil
}

func (s *memoryStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.IsActive && a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			a.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) active() []database.Alert {
	all, _ := s.ActiveAlerts(context.Background())
	return all
}

// stubProvider returns canned observations keyed by latitude.
type stubProvider struct {
	mu    sync.Mutex
	obs   map[float64]weather.Observation
	errs  map[float64]error
	delay map[float64]time.Duration
	calls int
}

func (p *stubProvider) Fetch(ctx context.Context, lat, _ float64) (weather.Observation, error) {
	p.mu.Lock()
	p.calls++
	d := p.delay[lat]
	err := p.errs[lat]
	obs := p.obs[lat]
	p.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return weather.Observation{}, ctx.Err()
		}
	}
	if err != nil {
		return weather.Observation{}, err
	}
	return obs, nil
}

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	msgs [][]byte
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, value)
	return nil
}

// sliceSource replays messages then blocks until ctx is cancelled.
type sliceSource struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newSliceSource(values ...[]byte) *sliceSource {
	s := &sliceSource{drained: make(chan struct{})}
	for i, v := range values {
		s.msgs = append(s.msgs, kafka.Message{Offset: int64(i), Value: v})
	}
	return s
}

func (s *sliceSource) Consume(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.msgs) > 0 {
		msg := s.msgs[0]
		s.msgs = s.msgs[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *sliceSource) Commit(_ context.Context, msg kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msg.Offset)
	if len(s.msgs) == 0 {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
	}
	return nil
}

// probingSource is a sliceSource that also reports broker readiness.
type probingSource struct {
	*sliceSource
	err error
}

func (s probingSource) CheckReadiness(context.Context) error { return s.err }
