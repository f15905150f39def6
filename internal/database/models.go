package database

import (
	"time"
)

// Severity orders alerts from least to most urgent.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns 1-4 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as min. Unknown values never qualify.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() > 0 && s.Rank() >= min.Rank()
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// SeveritiesAtLeast returns the severities that satisfy AtLeast(min).
func SeveritiesAtLeast(min Severity) []Severity {
	var out []Severity
	for _, s := range Severities {
		if s.AtLeast(min) {
			out = append(out, s)
		}
	}
	return out
}

// AlertType names the rule category that produced an alert.
type AlertType string

const (
	AlertTypeWind        AlertType = "wind"
	AlertTypeTemperature AlertType = "temperature"
	AlertTypeVisibility  AlertType = "visibility"
	AlertTypeWeather     AlertType = "weather"
	AlertTypeStorm       AlertType = "storm"
)

// Airfield is reference data; the service never writes it.
type Airfield struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Country   string    `db:"country" json:"country,omitempty"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	Elevation float64   `db:"elevation" json:"elevation,omitempty"`
	Timezone  string    `db:"timezone" json:"timezone,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// Threshold holds one user's limits for one airfield. Nil bounds are unset.
type Threshold struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	AirfieldID     string    `db:"airfield_id" json:"airfield_id"`
	WindSpeedMax   *float64  `db:"wind_speed_max" json:"wind_speed_max,omitempty"`
	TemperatureMin *float64  `db:"temperature_min" json:"temperature_min,omitempty"`
	TemperatureMax *float64  `db:"temperature_max" json:"temperature_max,omitempty"`
	VisibilityMin  *float64  `db:"visibility_min" json:"visibility_min,omitempty"`
	CrosswindMax   *float64  `db:"crosswind_max" json:"crosswind_max,omitempty"`
	CeilingMin     *float64  `db:"ceiling_min" json:"ceiling_min,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"-"`
	UpdatedAt      time.Time `db:"updated_at" json:"-"`
}

// ActiveThreshold is a threshold joined with the airfield it applies to.
type ActiveThreshold struct {
	Threshold
	Airfield Airfield `db:"airfield"`
}

// Alert is a persisted threshold breach.
type Alert struct {
	ID              string     `db:"id" json:"id"`
	AirfieldID      string     `db:"airfield_id" json:"airfield_id"`
	UserID          string     `db:"user_id" json:"user_id"`
	AlertType       AlertType  `db:"alert_type" json:"alert_type"`
	Severity        Severity   `db:"severity" json:"severity"`
	Title           string     `db:"title" json:"title"`
	Message         string     `db:"message" json:"message"`
	ThresholdValue  *float64   `db:"threshold_value" json:"threshold_value,omitempty"`
	ActualValue     *float64   `db:"actual_value" json:"actual_value,omitempty"`
	ConfidenceScore int        `db:"confidence_score" json:"confidence_score"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}
