package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoscout/scout/internal/models"
)

func TestAssetRepo_UpsertReplacesBySymbol(t *testing.T) {
	repo := NewAssetRepo()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []models.Asset{
		{Symbol: "BTC", Name: "Bitcoin", CombinedScore: 70},
		{Symbol: "ETH", Name: "Ethereum", CombinedScore: 60},
	}))
	require.NoError(t, repo.Upsert(ctx, []models.Asset{
		{Symbol: "BTC", Name: "Bitcoin", CombinedScore: 85},
	}))

	assets, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, assets, 2, "upsert must not duplicate symbols")
	assert.Equal(t, "BTC", assets[0].Symbol, "ordered by combined score desc")
	assert.Equal(t, 85.0, assets[0].CombinedScore)

	got, ok, err := repo.Get(ctx, "btc")
	require.NoError(t, err)
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, 85.0, got.CombinedScore)
}

func TestAssetRepo_ListLimit(t *testing.T) {
	repo := NewAssetRepo()
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, []models.Asset{
		{Symbol: "A", CombinedScore: 1},
		{Symbol: "B", CombinedScore: 2},
		{Symbol: "C", CombinedScore: 3},
	}))
	assets, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "C", assets[0].Symbol)
}

func TestHistoryRepo_AppendOnlyNewestFirst(t *testing.T) {
	repo := NewHistoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, []models.HistorySnapshot{{
			Symbol:        "BTC",
			CombinedScore: float64(50 + i),
			SnapshotTime:  base.Add(time.Duration(i) * 5 * time.Minute),
		}}))
	}

	rows, err := repo.Recent(ctx, "BTC", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 52.0, rows[0].CombinedScore, "newest first")
	assert.NotZero(t, rows[0].ID)
}

func TestAlertRepo_Dedup(t *testing.T) {
	repo := NewAlertRepo()
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	require.NoError(t, repo.Insert(ctx, models.Alert{
		Symbol: "BTC", AlertType: models.AlertTypeScoreJump, Message: "score jumped",
	}))

	exists, err := repo.RecentExists(ctx, "BTC", models.AlertTypeScoreJump, time.Hour)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.RecentExists(ctx, "ETH", models.AlertTypeScoreJump, time.Hour)
	require.NoError(t, err)
	assert.False(t, exists, "dedup is per symbol")

	now = now.Add(61 * time.Minute)
	exists, err = repo.RecentExists(ctx, "BTC", models.AlertTypeScoreJump, time.Hour)
	require.NoError(t, err)
	assert.False(t, exists, "alerts age out of the window")
}

func TestAlertRepo_MarkRead(t *testing.T) {
	repo := NewAlertRepo()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, models.Alert{
		Symbol: "BTC", AlertType: models.AlertTypeScoreJump,
	}))

	alerts, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.False(t, alerts[0].Read)

	found, err := repo.MarkRead(ctx, alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, found)

	alerts, err = repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.True(t, alerts[0].Read)

	found, err = repo.MarkRead(ctx, 404)
	require.NoError(t, err)
	assert.False(t, found, "unknown id reports not found")
}

func TestAlertRepo_RecentNewestFirst(t *testing.T) {
	repo := NewAlertRepo()
	ctx := context.Background()
	for _, sym := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Insert(ctx, models.Alert{
			Symbol: sym, AlertType: models.AlertTypeScoreJump,
		}))
	}
	alerts, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "C", alerts[0].Symbol)
}
