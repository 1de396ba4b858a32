package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
)

// alertsRepo implements AlertRepo for PostgreSQL
type alertsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAlertsRepo creates a new PostgreSQL alerts repository
func NewAlertsRepo(db *sqlx.DB, timeout time.Duration) persistence.AlertRepo {
	return &alertsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert records one alert.
func (r *alertsRepo) Insert(ctx context.Context, alert models.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO alerts (symbol, alert_type, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query,
		alert.Symbol, alert.AlertType, alert.Message, alert.Read, alert.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert alert for %s: %w", alert.Symbol, err)
	}
	return nil
}

// RecentExists reports whether a same-type alert for the symbol falls
// within the dedup window.
func (r *alertsRepo) RecentExists(ctx context.Context, symbol, alertType string, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE symbol = $1 AND alert_type = $2 AND created_at >= $3
		)`

	var exists bool
	cutoff := time.Now().UTC().Add(-window)
	if err := r.db.GetContext(ctx, &exists, query, symbol, alertType, cutoff); err != nil {
		return false, fmt.Errorf("failed to check recent alerts for %s: %w", symbol, err)
	}
	return exists, nil
}

// MarkRead flags one alert as read.
func (r *alertsRepo) MarkRead(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert %d read: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark alert %d read: %w", id, err)
	}
	return affected > 0, nil
}

// Recent returns up to limit alerts, newest first.
func (r *alertsRepo) Recent(ctx context.Context, limit int) ([]models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, alert_type, message, read, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1`

	var alerts []models.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return alerts, nil
}
