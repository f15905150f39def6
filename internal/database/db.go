package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrAlertNotFound is returned when an update targets an alert id that does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// DB wraps the database connection
type DB struct {
	*sqlx.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in lexical order.
func (db *DB) RunMigrations(ctx context.Context, migrationsDir string, logger *slog.Logger) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		logger.Info("running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	logger.Info("migrations complete", "count", len(sqlFiles))
	return nil
}

const activeThresholdsQuery = `
	SELECT t.id, t.user_id, t.airfield_id, t.wind_speed_max, t.temperature_min,
	       t.temperature_max, t.visibility_min, t.crosswind_max, t.ceiling_min,
	       t.is_active, t.created_at, t.updated_at,
	       a.id         AS "airfield.id",
	       a.code       AS "airfield.code",
	       a.name       AS "airfield.name",
	       a.country    AS "airfield.country",
	       a.latitude   AS "airfield.latitude",
	       a.longitude  AS "airfield.longitude",
	       a.elevation  AS "airfield.elevation",
	       a.timezone   AS "airfield.timezone",
	       a.is_active  AS "airfield.is_active",
	       a.created_at AS "airfield.created_at"
	FROM weather_thresholds t
	JOIN airfields a ON a.id = t.airfield_id
	WHERE t.is_active = true AND a.is_active = true
	ORDER BY t.airfield_id, t.user_id
`

// ActiveThresholds returns every active threshold whose airfield is also active.
func (db *DB) ActiveThresholds(ctx context.Context) ([]ActiveThreshold, error) {
	var thresholds []ActiveThreshold
	if err := db.SelectContext(ctx, &thresholds, activeThresholdsQuery); err != nil {
		return nil, fmt.Errorf("select active thresholds: %w", err)
	}
	return thresholds, nil
}

const alertColumns = `id, airfield_id, user_id, alert_type, severity, title, message,
	threshold_value, actual_value, confidence_score, is_active, created_at,
	acknowledged_at, expires_at`

// ActiveAlerts returns all active alerts across users.
func (db *DB) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM weather_alerts WHERE is_active = true`

	var alerts []Alert
	if err := db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, fmt.Errorf("select active alerts: %w", err)
	}
	return alerts, nil
}

// ListActiveAlerts returns a user's active alerts at or above min, newest first.
// An empty userID lists every user's alerts.
func (db *DB) ListActiveAlerts(ctx context.Context, userID string, min Severity) ([]Alert, error) {
	levels := make([]string, 0, len(Severities))
	for _, s := range SeveritiesAtLeast(min) {
		levels = append(levels, string(s))
	}

	query := `SELECT ` + alertColumns + ` FROM weather_alerts
		WHERE is_active = true
		  AND severity = ANY($1)
		  AND ($2 = '' OR user_id::text = $2)
		ORDER BY created_at DESC`

	var alerts []Alert
	if err := db.SelectContext(ctx, &alerts, query, pq.Array(levels), userID); err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alerts, nil
}

const insertAlertQuery = `
	INSERT INTO weather_alerts (
		id, airfield_id, user_id, alert_type, severity, title, message,
		threshold_value, actual_value, confidence_score, is_active, created_at,
		acknowledged_at, expires_at
	) VALUES (
		:id, :airfield_id, :user_id, :alert_type, :severity, :title, :message,
		:threshold_value, :actual_value, :confidence_score, :is_active, :created_at,
		:acknowledged_at, :expires_at
	)
`

// InsertAlerts writes the alerts in one transaction; either all land or none do.
func (db *DB) InsertAlerts(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert alerts: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i := range alerts {
		if _, err := tx.NamedExecContext(ctx, insertAlertQuery, &alerts[i]); err != nil {
			return fmt.Errorf("insert alert %s: %w", alerts[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert alerts: %w", err)
	}
	return nil
}

// DeactivateAirfieldAlerts clears every active alert for a (user, airfield) pair.
func (db *DB) DeactivateAirfieldAlerts(ctx context.Context, userID, airfieldID string) error {
	query := `
		UPDATE weather_alerts
		SET is_active = false
		WHERE user_id = $1 AND airfield_id = $2 AND is_active = true
	`
	if _, err := db.ExecContext(ctx, query, userID, airfieldID); err != nil {
		return fmt.Errorf("deactivate airfield alerts: %w", err)
	}
	return nil
}

// DeactivateExpired clears active alerts whose expires_at is not after now.
func (db *DB) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE weather_alerts
		SET is_active = false
		WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1
	`
	result, err := db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired alerts: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// AcknowledgeAlert marks an alert as read and removes it from the active set.
func (db *DB) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE weather_alerts
		SET acknowledged_at = $2, is_active = false
		WHERE id = $1
	`
	return db.updateOne(ctx, query, id, at)
}

// DismissAlert removes an alert from the active set without acknowledging it.
func (db *DB) DismissAlert(ctx context.Context, id string) error {
	query := `UPDATE weather_alerts SET is_active = false WHERE id = $1`
	return db.updateOne(ctx, query, id)
}

func (db *DB) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
