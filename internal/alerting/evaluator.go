package alerting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/weather"
)

const (
	// Confidence for readings checked against fixed bands.
	confidenceCaution  = 85
	confidenceHigh     = 90
	confidenceCritical = 95

	// Confidence for a measured value compared to a user's own threshold.
	confidenceMeasured = 100
)

// Wind breach over a user's ceiling, in km/h, above which severity escalates.
const (
	windBreachHigh     = 10
	windBreachCritical = 20
)

// Condition-rule thresholds.
const (
	fogVisibilityKm = 3
	rainWindKnots   = 20
)

var severeConditions = []string{"rain", "fog", "thunderstorm", "snow", "hail"}

type band struct {
	severity   database.Severity
	cutoff     float64
	confidence int
	marker     string
}

// EvaluateBands checks one observation against the fixed wind and visibility
// bands and the severe-weather vocabulary. It emits at most one alert per rule.
func EvaluateBands(airfield database.Airfield, userID string, obs weather.Observation, bands Bands) []database.Alert {
	var alerts []database.Alert

	if a, ok := windBandAlert(airfield, userID, obs, bands); ok {
		alerts = append(alerts, a)
	}
	if a, ok := visibilityBandAlert(airfield, userID, obs, bands); ok {
		alerts = append(alerts, a)
	}
	if a, ok := conditionAlert(airfield, userID, obs); ok {
		alerts = append(alerts, a)
	}
	return alerts
}

func windBandAlert(airfield database.Airfield, userID string, obs weather.Observation, bands Bands) (database.Alert, bool) {
	knots := obs.Knots()
	speed := int(math.Round(knots))
	dir := int(math.Round(obs.WindDirection))

	// Most severe first; the first band met wins.
	levels := []band{
		{database.SeverityCritical, bands.WindRed, confidenceCritical, "🔴"},
		{database.SeverityHigh, bands.WindOrange, confidenceHigh, "🟠"},
		{database.SeverityMedium, bands.WindYellow, confidenceCaution, "🟡"},
	}
	for _, b := range levels {
		if knots < b.cutoff {
			continue
		}

		var title, message string
		switch b.severity {
		case database.SeverityCritical:
			title = fmt.Sprintf("%s Critical Wind Alert - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Extreme wind conditions detected: %d knots from %d°. Flight operations severely restricted.", speed, dir)
		case database.SeverityHigh:
			title = fmt.Sprintf("%s High Wind Alert - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Strong wind conditions: %d knots from %d°. Exercise caution for all operations.", speed, dir)
		default:
			title = fmt.Sprintf("%s Wind Caution - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Moderate wind conditions: %d knots from %d°. Monitor closely.", speed, dir)
		}
		return newAlert(airfield.ID, userID, database.AlertTypeWind, b.severity, title, message,
			float64Ptr(b.cutoff), float64Ptr(round1(knots)), b.confidence), true
	}
	return database.Alert{}, false
}

func visibilityBandAlert(airfield database.Airfield, userID string, obs weather.Observation, bands Bands) (database.Alert, bool) {
	vis := obs.Visibility

	// Lower is worse, so the smallest cutoff is checked first.
	levels := []band{
		{database.SeverityCritical, bands.VisibilityRed, confidenceCritical, "🔴"},
		{database.SeverityHigh, bands.VisibilityOrange, confidenceHigh, "🟠"},
		{database.SeverityMedium, bands.VisibilityYellow, confidenceCaution, "🟡"},
	}
	for _, b := range levels {
		if vis >= b.cutoff {
			continue
		}

		var title, message string
		switch b.severity {
		case database.SeverityCritical:
			title = fmt.Sprintf("%s Critical Visibility Alert - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Extremely low visibility: %.1f km. IFR conditions, visual operations not recommended.", vis)
		case database.SeverityHigh:
			title = fmt.Sprintf("%s Low Visibility Alert - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Reduced visibility: %.1f km. Marginal VFR conditions.", vis)
		default:
			title = fmt.Sprintf("%s Visibility Caution - %s", b.marker, airfield.Code)
			message = fmt.Sprintf("Moderate visibility: %.1f km. Monitor conditions.", vis)
		}
		return newAlert(airfield.ID, userID, database.AlertTypeVisibility, b.severity, title, message,
			float64Ptr(b.cutoff), float64Ptr(vis), b.confidence), true
	}
	return database.Alert{}, false
}

func conditionAlert(airfield database.Airfield, userID string, obs weather.Observation) (database.Alert, bool) {
	condition := strings.ToLower(obs.Condition)
	if !containsAny(condition, severeConditions...) {
		return database.Alert{}, false
	}

	severity, marker := database.SeverityMedium, "🟡"
	switch {
	case containsAny(condition, "thunderstorm", "hail"):
		severity, marker = database.SeverityCritical, "🔴"
	case strings.Contains(condition, "fog") && obs.Visibility < fogVisibilityKm:
		severity, marker = database.SeverityHigh, "🟠"
	case strings.Contains(condition, "rain") && obs.Knots() > rainWindKnots:
		severity, marker = database.SeverityHigh, "🟠"
	}

	advice := "Monitor situation closely."
	if severity == database.SeverityCritical {
		advice = "Immediate action required."
	}
	title := fmt.Sprintf("%s Weather Alert - %s", marker, airfield.Code)
	message := fmt.Sprintf("%s reported. %s", obs.Condition, advice)

	return newAlert(airfield.ID, userID, database.AlertTypeWeather, severity, title, message,
		nil, nil, confidenceCaution), true
}

// EvaluateThreshold checks one observation against a user's own limits.
// A nil or inactive threshold produces nothing. Unset bounds are skipped;
// the storm check applies to every active threshold.
func EvaluateThreshold(t *database.Threshold, airfield database.Airfield, obs weather.Observation) []database.Alert {
	if t == nil || !t.IsActive {
		return nil
	}

	var alerts []database.Alert

	if t.WindSpeedMax != nil && obs.WindSpeed > *t.WindSpeedMax {
		breach := obs.WindSpeed - *t.WindSpeedMax
		severity := database.SeverityMedium
		if breach > windBreachHigh {
			severity = database.SeverityHigh
		}
		if breach > windBreachCritical {
			severity = database.SeverityCritical
		}
		alerts = append(alerts, newAlert(t.AirfieldID, t.UserID, database.AlertTypeWind, severity,
			fmt.Sprintf("%s Wind Alert for %s", strings.ToUpper(string(severity)), airfield.Code),
			fmt.Sprintf("Wind speed at %.0f km/h, exceeding your threshold of %g km/h.", math.Round(obs.WindSpeed), *t.WindSpeedMax),
			float64Ptr(*t.WindSpeedMax), float64Ptr(math.Round(obs.WindSpeed)), confidenceMeasured))
	}

	if t.TemperatureMin != nil && obs.Temperature < *t.TemperatureMin {
		alerts = append(alerts, newAlert(t.AirfieldID, t.UserID, database.AlertTypeTemperature, database.SeverityLow,
			fmt.Sprintf("Low Temperature Alert (%s)", airfield.Code),
			fmt.Sprintf("Temperature at %.0f°C, below your threshold of %g°C.", math.Round(obs.Temperature), *t.TemperatureMin),
			float64Ptr(*t.TemperatureMin), float64Ptr(math.Round(obs.Temperature)), confidenceMeasured))
	}

	if t.TemperatureMax != nil && obs.Temperature > *t.TemperatureMax {
		alerts = append(alerts, newAlert(t.AirfieldID, t.UserID, database.AlertTypeTemperature, database.SeverityMedium,
			fmt.Sprintf("High Temperature Alert (%s)", airfield.Code),
			fmt.Sprintf("Temperature at %.0f°C, above your threshold of %g°C.", math.Round(obs.Temperature), *t.TemperatureMax),
			float64Ptr(*t.TemperatureMax), float64Ptr(math.Round(obs.Temperature)), confidenceMeasured))
	}

	if t.VisibilityMin != nil && obs.Visibility < *t.VisibilityMin {
		alerts = append(alerts, newAlert(t.AirfieldID, t.UserID, database.AlertTypeVisibility, database.SeverityHigh,
			fmt.Sprintf("Low Visibility Alert (%s)", airfield.Code),
			fmt.Sprintf("Visibility at %.1f km, below your minimum of %g km.", obs.Visibility, *t.VisibilityMin),
			float64Ptr(*t.VisibilityMin), float64Ptr(round1(obs.Visibility)), confidenceMeasured))
	}

	if containsAny(strings.ToLower(obs.Condition), "thunder", "storm") {
		detail := obs.Description
		if detail == "" {
			detail = strings.ToLower(obs.Condition)
		}
		alerts = append(alerts, newAlert(t.AirfieldID, t.UserID, database.AlertTypeStorm, database.SeverityCritical,
			fmt.Sprintf("Storm Warning (%s)", airfield.Code),
			fmt.Sprintf("Active thunderstorm detected: %s.", detail),
			nil, nil, confidenceMeasured))
	}

	return alerts
}

// WithExpiry sets ExpiresAt = CreatedAt + ttl on each alert. A non-positive ttl is a no-op.
func WithExpiry(alerts []database.Alert, ttl time.Duration) []database.Alert {
	if ttl <= 0 {
		return alerts
	}
	for i := range alerts {
		exp := alerts[i].CreatedAt.Add(ttl)
		alerts[i].ExpiresAt = &exp
	}
	return alerts
}

func newAlert(airfieldID, userID string, alertType database.AlertType, severity database.Severity,
	title, message string, threshold, actual *float64, confidence int) database.Alert {
	return database.Alert{
		ID:              uuid.NewString(),
		AirfieldID:      airfieldID,
		UserID:          userID,
		AlertType:       alertType,
		Severity:        severity,
		Title:           title,
		Message:         message,
		ThresholdValue:  threshold,
		ActualValue:     actual,
		ConfidenceScore: confidence,
		IsActive:        true,
		CreatedAt:       clock.Now().UTC(),
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func float64Ptr(v float64) *float64 { return &v }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
