package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/smukkama/airfield-alerts/internal/observability"
)

// OpenWeatherClient implements Provider against the OpenWeatherMap current weather API.
type OpenWeatherClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewOpenWeatherClient creates a client; timeout bounds every request.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch requests metric-unit current conditions and normalises them:
// wind m/s -> km/h, visibility m -> km.
func (c *OpenWeatherClient) Fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	obs, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.metrics.ObservationFetches.WithLabelValues("error").Inc()
		return Observation{}, err
	}
	c.metrics.ObservationFetches.WithLabelValues("success").Inc()
	return obs, nil
}

func (c *OpenWeatherClient) fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', 6, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	fullURL := c.baseURL + "/data/2.5/weather?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("openweather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Observation{}, fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	var owm currentWeather
	if err := json.NewDecoder(resp.Body).Decode(&owm); err != nil {
		return Observation{}, fmt.Errorf("decode response: %w", err)
	}

	obs := Observation{
		Latitude:      lat,
		Longitude:     lon,
		ObservedAt:    c.clock.Now().UTC(),
		Temperature:   owm.Main.Temp,
		WindSpeed:     owm.Wind.Speed * 3.6,
		WindDirection: owm.Wind.Deg,
		Pressure:      owm.Main.Pressure,
		Humidity:      owm.Main.Humidity,
	}
	if owm.Visibility != nil {
		obs.Visibility = *owm.Visibility / 1000
	} else {
		// OpenWeatherMap omits visibility when it is unlimited; 10 km is its cap.
		obs.Visibility = 10
	}
	if owm.Dt > 0 {
		obs.ObservedAt = time.Unix(owm.Dt, 0).UTC()
	}
	if len(owm.Weather) > 0 {
		obs.Condition = owm.Weather[0].Main
		obs.Description = owm.Weather[0].Description
	}

	c.logger.Debug("observation fetched",
		"lat", lat, "lon", lon,
		"condition", obs.Condition,
		"wind_kmh", obs.WindSpeed,
	)
	return obs, nil
}

// OpenWeatherMap API response types.

type currentWeather struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"` // m/s with units=metric
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Dt int64 `json:"dt"`
}
