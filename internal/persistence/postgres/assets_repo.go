package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
)

// assetsRepo implements AssetRepo for PostgreSQL
type assetsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAssetsRepo creates a new PostgreSQL assets repository
func NewAssetsRepo(db *sqlx.DB, timeout time.Duration) persistence.AssetRepo {
	return &assetsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert writes the batch in one transaction, one row per symbol.
func (r *assetsRepo) Upsert(ctx context.Context, assets []models.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin asset upsert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO assets (symbol, name, current_price, market_cap, volume_24h,
			price_change_24h, price_change_7d, market_cap_rank, trending,
			ai_score, ai_verdict, sentiment_score, combined_score,
			confidence, reasons, last_updated)
		VALUES (:symbol, :name, :current_price, :market_cap, :volume_24h,
			:price_change_24h, :price_change_7d, :market_cap_rank, :trending,
			:ai_score, :ai_verdict, :sentiment_score, :combined_score,
			:confidence, :reasons, :last_updated)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			current_price = EXCLUDED.current_price,
			market_cap = EXCLUDED.market_cap,
			volume_24h = EXCLUDED.volume_24h,
			price_change_24h = EXCLUDED.price_change_24h,
			price_change_7d = EXCLUDED.price_change_7d,
			market_cap_rank = EXCLUDED.market_cap_rank,
			trending = EXCLUDED.trending,
			ai_score = EXCLUDED.ai_score,
			ai_verdict = EXCLUDED.ai_verdict,
			sentiment_score = EXCLUDED.sentiment_score,
			combined_score = EXCLUDED.combined_score,
			confidence = EXCLUDED.confidence,
			reasons = EXCLUDED.reasons,
			last_updated = EXCLUDED.last_updated`

	for _, asset := range assets {
		if _, err := tx.NamedExecContext(ctx, query, asset); err != nil {
			return fmt.Errorf("failed to upsert asset %s: %w", asset.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit asset upsert: %w", err)
	}
	return nil
}

// List returns assets by combined score descending.
func (r *assetsRepo) List(ctx context.Context, limit int) ([]models.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, name, current_price, market_cap, volume_24h,
			price_change_24h, price_change_7d, market_cap_rank, trending,
			ai_score, ai_verdict, sentiment_score, combined_score,
			confidence, reasons, last_updated
		FROM assets
		ORDER BY combined_score DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

// Get returns one asset by symbol.
func (r *assetsRepo) Get(ctx context.Context, symbol string) (models.Asset, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT symbol, name, current_price, market_cap, volume_24h,
			price_change_24h, price_change_7d, market_cap_rank, trending,
			ai_score, ai_verdict, sentiment_score, combined_score,
			confidence, reasons, last_updated
		FROM assets
		WHERE symbol = $1`

	var asset models.Asset
	err := r.db.GetContext(ctx, &asset, query, symbol)
	if err == sql.ErrNoRows {
		return models.Asset{}, false, nil
	}
	if err != nil {
		return models.Asset{}, false, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return asset, true, nil
}
