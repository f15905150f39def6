package protocol

import (
	"encoding/json"
	"time"

	"github.com/smukkama/airfield-alerts/internal/database"
)

// AlertNotification is published for every newly inserted alert.
type AlertNotification struct {
	AlertID         string             `json:"alert_id"`
	UserID          string             `json:"user_id"`
	AirfieldID      string             `json:"airfield_id"`
	AirfieldCode    string             `json:"airfield_code,omitempty"`
	AlertType       database.AlertType `json:"alert_type"`
	Severity        database.Severity  `json:"severity"`
	Title           string             `json:"title"`
	Message         string             `json:"message"`
	ThresholdValue  *float64           `json:"threshold_value,omitempty"`
	ActualValue     *float64           `json:"actual_value,omitempty"`
	ConfidenceScore int                `json:"confidence_score"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
}

// NewAlertNotification builds the notification for a persisted alert.
func NewAlertNotification(alert database.Alert, airfieldCode string) *AlertNotification {
	return &AlertNotification{
		AlertID:         alert.ID,
		UserID:          alert.UserID,
		AirfieldID:      alert.AirfieldID,
		AirfieldCode:    airfieldCode,
		AlertType:       alert.AlertType,
		Severity:        alert.Severity,
		Title:           alert.Title,
		Message:         alert.Message,
		ThresholdValue:  alert.ThresholdValue,
		ActualValue:     alert.ActualValue,
		ConfidenceScore: alert.ConfidenceScore,
		CreatedAt:       alert.CreatedAt,
		ExpiresAt:       alert.ExpiresAt,
	}
}

// Key partitions notifications by recipient and airfield.
func (n *AlertNotification) Key() string {
	return n.UserID + "-" + n.AirfieldID
}

// EncodeAlertNotification encodes an AlertNotification to JSON
func EncodeAlertNotification(n *AlertNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeAlertNotification decodes JSON to AlertNotification
func DecodeAlertNotification(data []byte) (*AlertNotification, error) {
	var n AlertNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
