package alerting

import (
	"context"
	"time"

	"github.com/smukkama/airfield-alerts/internal/database"
)

// ThresholdStore reads the limits to evaluate. *database.DB satisfies it.
type ThresholdStore interface {
	ActiveThresholds(ctx context.Context) ([]database.ActiveThreshold, error)
}

// AlertStore is the persistence sink. *database.DB satisfies it.
type AlertStore interface {
	ActiveAlerts(ctx context.Context) ([]database.Alert, error)
	InsertAlerts(ctx context.Context, alerts []database.Alert) error
	DeactivateAirfieldAlerts(ctx context.Context, userID, airfieldID string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Publisher sends a keyed message. *queue.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}
