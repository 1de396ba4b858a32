package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoscout/scout/internal/ai"
	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
	"github.com/cryptoscout/scout/internal/persistence/memory"
	"github.com/cryptoscout/scout/internal/ws"
)

type fakeFetcher struct {
	assets   []models.Asset
	trending []models.TrendingCoin
}

func (f *fakeFetcher) FetchTopAssets(context.Context, int) []models.Asset {
	return f.assets
}

func (f *fakeFetcher) FetchTrending(context.Context) []models.TrendingCoin {
	return f.trending
}

type fakeSentiment struct{}

func (fakeSentiment) Compute(_ context.Context, assets []models.Asset) map[string]float64 {
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		out[a.Symbol] = 0.5
	}
	return out
}

type fakeAnalyzer struct {
	calls  int64
	result ai.Result
}

func (f *fakeAnalyzer) Analyze(context.Context, models.Asset) ai.Result {
	atomic.AddInt64(&f.calls, 1)
	return f.result
}

type recordingHub struct {
	mu     sync.Mutex
	events []ws.Event
}

func (h *recordingHub) Publish(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ws.Event{Type: eventType, Data: data})
}

func (h *recordingHub) ofType(eventType string) []ws.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ws.Event
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func qualified(symbol string, change24h float64) models.Asset {
	return models.Asset{
		Symbol: symbol, Name: symbol, CurrentPrice: 100,
		MarketCap:      models.Ptr(1e9),
		Volume24h:      models.Ptr(5e7),
		PriceChange24h: models.Ptr(change24h),
		PriceChange7d:  models.Ptr(change24h),
	}
}

func newTestOrchestrator(cfg Config, fetcher Fetcher, analyzer Analyzer,
	store persistence.Store) (*Orchestrator, *recordingHub, *Status) {
	hub := &recordingHub{}
	status := NewStatus()
	o := NewOrchestrator(cfg, fetcher, fakeSentiment{}, analyzer, store, hub, status)
	return o, hub, status
}

func TestRun_HappyPath(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{assets: []models.Asset{
		qualified("BTC", 5), qualified("ETH", -3),
	}}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 80, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	o, hub, status := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.AIAnalyzed)
	assert.False(t, sum.Degraded)

	assets, err := store.Assets.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	for _, a := range assets {
		assert.Equal(t, 80.0, a.AIScore)
		assert.NotZero(t, a.CombinedScore)
		assert.NotEmpty(t, a.Reasons)
	}

	hist, err := store.History.Recent(context.Background(), "BTC", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "one history row per asset per scan")

	complete := hub.ofType(ws.EventScanComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, 0, status.FailureCount())
}

func TestRun_NoFetchNoPriorFails(t *testing.T) {
	store := memory.NewStore()
	o, hub, status := newTestOrchestrator(DefaultConfig(),
		&fakeFetcher{}, &fakeAnalyzer{}, store)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, status.FailureCount())
	assert.Empty(t, hub.ofType(ws.EventScanComplete), "failed cycle broadcasts nothing")
}

func TestRun_DegradesToPersistedState(t *testing.T) {
	store := memory.NewStore()
	stale := qualified("BTC", 5)
	stale.CombinedScore = 60
	require.NoError(t, store.Assets.Upsert(context.Background(), []models.Asset{stale}))

	analyzer := &fakeAnalyzer{result: ai.Result{Score: 70, Verdict: ai.VerdictBuy, Confidence: 0.8}}
	o, _, status := newTestOrchestrator(DefaultConfig(), &fakeFetcher{}, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Degraded)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, status.FailureCount(), "degraded cycle still counts as success")
}

func TestRun_SuccessResetsFailureStreak(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 50, Verdict: ai.VerdictHold, Confidence: 0.5}}
	o, _, status := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	o.Run(context.Background())
	o.Run(context.Background())
	require.Equal(t, 2, status.FailureCount())

	fetcher.assets = []models.Asset{qualified("BTC", 5)}
	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.FailureCount())
}

func TestRun_AIBudgetCapsModelCalls(t *testing.T) {
	store := memory.NewStore()
	var assets []models.Asset
	for _, sym := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8"} {
		assets = append(assets, qualified(sym, 6))
	}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 75, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	cfg := DefaultConfig()
	cfg.AIBudget = 3
	o, _, _ := newTestOrchestrator(cfg, &fakeFetcher{assets: assets}, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&analyzer.calls))
	assert.Equal(t, 3, sum.AIAnalyzed)

	stored, err := store.Assets.List(context.Background(), 0)
	require.NoError(t, err)
	placeholders := 0
	for _, a := range stored {
		if a.AIVerdict == ai.PlaceholderResult.Verdict {
			placeholders++
		}
	}
	assert.Equal(t, 5, placeholders, "over-budget assets get the placeholder verdict")
}

func TestRun_UnqualifiedAssetsSkipModel(t *testing.T) {
	store := memory.NewStore()
	flat := qualified("FLAT", 0.5) // below the change threshold
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 90, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	o, _, _ := newTestOrchestrator(DefaultConfig(), &fakeFetcher{assets: []models.Asset{flat}}, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt64(&analyzer.calls))
	assert.Zero(t, sum.AIAnalyzed)
}

func TestRun_ScoreJumpAlertOncePerWindow(t *testing.T) {
	store := memory.NewStore()
	prev := qualified("ETH", 5)
	prev.CombinedScore = 10 // any realistic rescore is a >20% jump
	require.NoError(t, store.Assets.Upsert(context.Background(), []models.Asset{prev}))

	fetcher := &fakeFetcher{assets: []models.Asset{qualified("ETH", 5)}}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 80, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	o, hub, _ := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Alerts)

	alerts, err := store.Alerts.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "exactly one alert row")
	assert.Equal(t, models.AlertTypeScoreJump, alerts[0].AlertType)
	assert.Equal(t, "ETH", alerts[0].Symbol)
	require.Len(t, hub.ofType(ws.EventScoreAlert), 1, "exactly one broadcast")

	// Second jump inside the dedup window stays silent.
	resetPrev, _, err := store.Assets.Get(context.Background(), "ETH")
	require.NoError(t, err)
	resetPrev.CombinedScore = 10
	require.NoError(t, store.Assets.Upsert(context.Background(), []models.Asset{resetPrev}))

	sum, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Alerts)
	alerts, _ = store.Alerts.Recent(context.Background(), 10)
	assert.Len(t, alerts, 1, "dedup window suppresses the repeat")
}

func TestRun_TrendingAssetsFlaggedAndPrioritized(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{
		assets: []models.Asset{
			qualified("BTC", 5), qualified("ETH", 4), qualified("PEPE", 30),
		},
		trending: []models.TrendingCoin{
			{Symbol: "PEPE", Name: "Pepe", MarketCapRank: 41},
			{Symbol: "NOTHELD", Name: "Not In Markets"},
		},
	}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 70, Verdict: ai.VerdictBuy, Confidence: 0.8}}
	o, _, _ := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed, "trending symbols without market data are not invented")

	pepe, found, err := store.Assets.Get(context.Background(), "PEPE")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, pepe.Trending)

	btc, _, err := store.Assets.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.False(t, btc.Trending)
}

func TestFlagTrending_MovesHotSymbolsFirst(t *testing.T) {
	assets := []models.Asset{
		qualified("BTC", 1), qualified("PEPE", 2), qualified("ETH", 3),
	}
	out := flagTrending(assets, []models.TrendingCoin{{Symbol: "pepe"}, {Symbol: "ETH"}})
	require.Len(t, out, 3)
	assert.Equal(t, "PEPE", out[0].Symbol)
	assert.Equal(t, "ETH", out[1].Symbol)
	assert.Equal(t, "BTC", out[2].Symbol)
	assert.True(t, out[0].Trending)
	assert.False(t, out[2].Trending)
}

func TestRun_NoAlertWithoutPreviousScore(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{assets: []models.Asset{qualified("NEW", 8)}}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 80, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	o, hub, _ := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Alerts, "first sighting has no baseline to jump from")
	assert.Empty(t, hub.ofType(ws.EventScoreAlert))
}

func TestRun_RepeatCycleIsIdempotentPerSymbol(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{assets: []models.Asset{qualified("BTC", 5)}}
	analyzer := &fakeAnalyzer{result: ai.Result{Score: 80, Verdict: ai.VerdictStrongBuy, Confidence: 0.9}}
	o, _, _ := newTestOrchestrator(DefaultConfig(), fetcher, analyzer, store)

	for i := 0; i < 3; i++ {
		_, err := o.Run(context.Background())
		require.NoError(t, err)
	}

	assets, err := store.Assets.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, assets, 1, "upsert keeps one row per symbol")

	hist, err := store.History.Recent(context.Background(), "BTC", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 3, "history appends every cycle")
}

func TestRun_WallClockBudgetTruncates(t *testing.T) {
	store := memory.NewStore()
	var assets []models.Asset
	for _, sym := range []string{"A", "B", "C", "D", "E", "F"} {
		assets = append(assets, qualified(sym, 6))
	}
	slow := &slowAnalyzer{delay: 50 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.ScanBudget = 120 * time.Millisecond
	o, _, status := newTestOrchestrator(cfg, &fakeFetcher{assets: assets}, slow, store)

	sum, err := o.Run(context.Background())
	require.NoError(t, err, "truncation preserves completed work")
	assert.Less(t, sum.Processed, len(assets))
	assert.Greater(t, sum.Processed, 0)
	assert.Equal(t, 0, status.FailureCount())
}

type slowAnalyzer struct {
	delay time.Duration
}

func (s *slowAnalyzer) Analyze(ctx context.Context, _ models.Asset) ai.Result {
	select {
	case <-ctx.Done():
	case <-time.After(s.delay):
	}
	return ai.Result{Score: 70, Verdict: ai.VerdictBuy, Confidence: 0.8}
}
