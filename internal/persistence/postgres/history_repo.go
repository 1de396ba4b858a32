package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
)

// historyRepo implements HistoryRepo for PostgreSQL
type historyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistoryRepo creates a new PostgreSQL score history repository
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) persistence.HistoryRepo {
	return &historyRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends snapshot rows. History is append-only; there is no
// update path.
func (r *historyRepo) Insert(ctx context.Context, snapshots []models.HistorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO asset_history (symbol, current_price, market_cap, volume_24h,
			price_change_24h, price_change_7d, ai_score, sentiment_score,
			combined_score, snapshot_time)
		VALUES (:symbol, :current_price, :market_cap, :volume_24h,
			:price_change_24h, :price_change_7d, :ai_score, :sentiment_score,
			:combined_score, :snapshot_time)`

	if _, err := r.db.NamedExecContext(ctx, query, snapshots); err != nil {
		return fmt.Errorf("failed to insert history snapshots: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots for a symbol, newest first.
func (r *historyRepo) Recent(ctx context.Context, symbol string, limit int) ([]models.HistorySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, current_price, market_cap, volume_24h,
			price_change_24h, price_change_7d, ai_score, sentiment_score,
			combined_score, snapshot_time
		FROM asset_history
		WHERE symbol = $1
		ORDER BY snapshot_time DESC
		LIMIT $2`

	var snapshots []models.HistorySnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", symbol, err)
	}
	return snapshots, nil
}
