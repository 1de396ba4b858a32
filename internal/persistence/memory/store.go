// Package memory provides in-process implementations of the
// persistence contracts. They back the default configuration, where no
// database is attached, and double as test fixtures.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
)

// NewStore returns a fully in-memory persistence.Store.
func NewStore() persistence.Store {
	return persistence.Store{
		Assets:  NewAssetRepo(),
		History: NewHistoryRepo(),
		Alerts:  NewAlertRepo(),
	}
}

// AssetRepo keeps the latest asset per symbol in a map.
type AssetRepo struct {
	mu     sync.RWMutex
	assets map[string]models.Asset
}

func NewAssetRepo() *AssetRepo {
	return &AssetRepo{assets: make(map[string]models.Asset)}
}

func (r *AssetRepo) Upsert(_ context.Context, assets []models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assets {
		r.assets[strings.ToUpper(a.Symbol)] = a
	}
	return nil
}

func (r *AssetRepo) List(_ context.Context, limit int) ([]models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AssetRepo) Get(_ context.Context, symbol string) (models.Asset, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[strings.ToUpper(symbol)]
	return a, ok, nil
}

// HistoryRepo is an append-only slice per symbol.
type HistoryRepo struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string][]models.HistorySnapshot
}

func NewHistoryRepo() *HistoryRepo {
	return &HistoryRepo{nextID: 1, rows: make(map[string][]models.HistorySnapshot)}
}

func (r *HistoryRepo) Insert(_ context.Context, snapshots []models.HistorySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snapshots {
		s.ID = r.nextID
		r.nextID++
		sym := strings.ToUpper(s.Symbol)
		r.rows[sym] = append(r.rows[sym], s)
	}
	return nil
}

func (r *HistoryRepo) Recent(_ context.Context, symbol string, limit int) ([]models.HistorySnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	rows := r.rows[strings.ToUpper(symbol)]
	out := make([]models.HistorySnapshot, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool {
		return out[i].SnapshotTime.After(out[j].SnapshotTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AlertRepo keeps alerts in insertion order.
type AlertRepo struct {
	mu     sync.RWMutex
	nextID int64
	alerts []models.Alert
	now    func() time.Time
}

func NewAlertRepo() *AlertRepo {
	return &AlertRepo{nextID: 1, now: time.Now}
}

// SetClock replaces the dedup clock, for tests.
func (r *AlertRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *AlertRepo) Insert(_ context.Context, alert models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert.ID = r.nextID
	r.nextID++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = r.now()
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *AlertRepo) RecentExists(_ context.Context, symbol, alertType string, window time.Duration) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.now().Add(-window)
	symbol = strings.ToUpper(symbol)
	for i := len(r.alerts) - 1; i >= 0; i-- {
		a := r.alerts[i]
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		if strings.ToUpper(a.Symbol) == symbol && a.AlertType == alertType {
			return true, nil
		}
	}
	return false, nil
}

func (r *AlertRepo) MarkRead(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			r.alerts[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (r *AlertRepo) Recent(_ context.Context, limit int) ([]models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.Alert, 0, limit)
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.alerts[i])
	}
	return out, nil
}
