package alerting

import (
	"context"
	"log/slog"

	"github.com/smukkama/airfield-alerts/internal/database"
	"github.com/smukkama/airfield-alerts/internal/protocol"
)

// publishAlerts sends one notification per inserted alert. Failures are logged;
// the alert rows are already committed.
func publishAlerts(ctx context.Context, pub Publisher, alerts []database.Alert, codes map[string]string, logger *slog.Logger) int {
	if pub == nil {
		return 0
	}

	sent := 0
	for _, a := range alerts {
		n := protocol.NewAlertNotification(a, codes[a.AirfieldID])
		data, err := protocol.EncodeAlertNotification(n)
		if err != nil {
			logger.Error("encode alert notification failed", "alert_id", a.ID, "error", err)
			continue
		}
		if err := pub.Publish(ctx, n.Key(), data); err != nil {
			logger.Warn("publish alert notification failed", "alert_id", a.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}
