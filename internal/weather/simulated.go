package weather

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

var simulatedConditions = []string{"Clear", "Partly cloudy", "Overcast", "Rain", "Fog", "Thunderstorm"}

// SimulatedProvider produces synthetic observations for development without an API key.
// Readings are stable for a given coordinate within one window.
type SimulatedProvider struct {
	clock  clockwork.Clock
	window time.Duration
}

// NewSimulatedProvider returns a provider whose readings change every window.
func NewSimulatedProvider(clock clockwork.Clock, window time.Duration) *SimulatedProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SimulatedProvider{clock: clock, window: window}
}

func (p *SimulatedProvider) Fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}

	now := p.clock.Now().UTC()
	bucket := now.Truncate(p.window)

	h := fnv.New64a()
	h.Write([]byte(strconv.FormatFloat(lat, 'f', 4, 64)))
	h.Write([]byte(strconv.FormatFloat(lon, 'f', 4, 64)))
	h.Write([]byte(strconv.FormatInt(bucket.Unix(), 10)))
	r := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // synthetic data

	return Observation{
		Latitude:      lat,
		Longitude:     lon,
		ObservedAt:    now,
		Temperature:   r.Float64()*30 + 5,
		WindSpeed:     KnotsToKmh(r.Float64() * 50),
		WindDirection: float64(r.Intn(360)),
		Visibility:    r.Float64()*10 + 0.5,
		Pressure:      r.Float64()*50 + 980,
		Humidity:      r.Float64() * 100,
		Condition:     simulatedConditions[r.Intn(len(simulatedConditions))],
	}, nil
}
