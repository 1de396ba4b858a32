// Package persistence defines the storage contracts for scored
// assets, score history, and alerts. Implementations live in the
// postgres and memory subpackages.
package persistence

import (
	"context"
	"time"

	"github.com/cryptoscout/scout/internal/models"
)

// AssetRepo stores the latest scored snapshot per symbol.
type AssetRepo interface {
	// Upsert writes the batch, replacing any existing row per symbol.
	Upsert(ctx context.Context, assets []models.Asset) error
	// List returns assets ordered by combined score descending,
	// capped at limit (0 means no cap).
	List(ctx context.Context, limit int) ([]models.Asset, error)
	// Get returns one asset by upper-case symbol.
	Get(ctx context.Context, symbol string) (models.Asset, bool, error)
}

// HistoryRepo is the append-only score history.
type HistoryRepo interface {
	Insert(ctx context.Context, snapshots []models.HistorySnapshot) error
	// Recent returns up to limit snapshots for a symbol, newest
	// first.
	Recent(ctx context.Context, symbol string, limit int) ([]models.HistorySnapshot, error)
}

// AlertRepo stores emitted alerts and answers dedup lookups.
type AlertRepo interface {
	Insert(ctx context.Context, alert models.Alert) error
	// RecentExists reports whether an alert of the given type was
	// recorded for the symbol within the window.
	RecentExists(ctx context.Context, symbol, alertType string, window time.Duration) (bool, error)
	// Recent returns up to limit alerts across all symbols, newest
	// first.
	Recent(ctx context.Context, limit int) ([]models.Alert, error)
	// MarkRead flags one alert as read. The bool reports whether the
	// alert exists.
	MarkRead(ctx context.Context, id int64) (bool, error)
}

// Store bundles the repos a scan cycle needs.
type Store struct {
	Assets  AssetRepo
	History HistoryRepo
	Alerts  AlertRepo
}
