package weather

import (
	"context"
	"time"
)

const kmhPerKnot = 1.852

// Observation is a point-in-time reading for one location.
type Observation struct {
	AirfieldID    string    `json:"airfield_id,omitempty"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	ObservedAt    time.Time `json:"observed_at"`
	Temperature   float64   `json:"temperature"`    // °C
	WindSpeed     float64   `json:"wind_speed"`     // km/h
	WindDirection float64   `json:"wind_direction"` // degrees
	Visibility    float64   `json:"visibility"`     // km
	Condition     string    `json:"condition"`
	Description   string    `json:"description,omitempty"`
	Pressure      float64   `json:"pressure"` // hPa
	Humidity      float64   `json:"humidity"` // %
}

// Knots returns the wind speed converted from km/h to knots.
func (o Observation) Knots() float64 {
	return o.WindSpeed / kmhPerKnot
}

// KnotsToKmh converts a speed in knots to km/h.
func KnotsToKmh(knots float64) float64 {
	return knots * kmhPerKnot
}

// Provider returns the current observation at a coordinate.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64) (Observation, error)
}
