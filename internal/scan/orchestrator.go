// Package scan runs the periodic fetch-score-persist pipeline.
package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/ai"
	"github.com/cryptoscout/scout/internal/metrics"
	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
	"github.com/cryptoscout/scout/internal/scoring"
	"github.com/cryptoscout/scout/internal/ws"
)

// Fetcher supplies the candidate asset set and the trending feed. An
// empty result means the source is unavailable.
type Fetcher interface {
	FetchTopAssets(ctx context.Context, limit int) []models.Asset
	FetchTrending(ctx context.Context) []models.TrendingCoin
}

// SentimentEngine scores a batch of assets; it never fails, degrading
// to neutral defaults internally.
type SentimentEngine interface {
	Compute(ctx context.Context, assets []models.Asset) map[string]float64
}

// Analyzer produces an AI assessment for one asset.
type Analyzer interface {
	Analyze(ctx context.Context, asset models.Asset) ai.Result
}

// Broadcaster publishes pipeline events to live subscribers.
type Broadcaster interface {
	Publish(eventType string, data interface{})
}

// Config bounds one scan cycle.
type Config struct {
	TopLimit          int           `yaml:"top_limit"`
	Workers           int           `yaml:"workers"`
	AIBudget          int           `yaml:"ai_budget"`
	AlertThresholdPct float64       `yaml:"alert_threshold_pct"`
	AlertDedupWindow  time.Duration `yaml:"alert_dedup_window"`
	ScanBudget        time.Duration `yaml:"scan_budget"`
}

func DefaultConfig() Config {
	return Config{
		TopLimit:          100,
		Workers:           4,
		AIBudget:          5,
		AlertThresholdPct: 20,
		AlertDedupWindow:  time.Hour,
		ScanBudget:        2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopLimit <= 0 {
		c.TopLimit = d.TopLimit
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.AIBudget < 0 {
		c.AIBudget = d.AIBudget
	}
	if c.AlertThresholdPct <= 0 {
		c.AlertThresholdPct = d.AlertThresholdPct
	}
	if c.AlertDedupWindow <= 0 {
		c.AlertDedupWindow = d.AlertDedupWindow
	}
	if c.ScanBudget <= 0 {
		c.ScanBudget = d.ScanBudget
	}
	return c
}

// Summary reports one completed cycle.
type Summary struct {
	Processed  int           `json:"processed"`
	AIAnalyzed int           `json:"ai_analyzed"`
	Alerts     int           `json:"alerts"`
	Degraded   bool          `json:"degraded"`
	Duration   time.Duration `json:"-"`
}

// Orchestrator drives one scan cycle: fetch, score, enrich, alert,
// persist, broadcast. Errors never escape Run except when the cycle
// cannot produce anything at all.
type Orchestrator struct {
	config    Config
	fetcher   Fetcher
	sentiment SentimentEngine
	analyzer  Analyzer
	store     persistence.Store
	hub       Broadcaster
	status    *Status

	alertLocks keyedMutex
}

func NewOrchestrator(config Config, fetcher Fetcher, sentiment SentimentEngine,
	analyzer Analyzer, store persistence.Store, hub Broadcaster, status *Status) *Orchestrator {
	return &Orchestrator{
		config:    config.withDefaults(),
		fetcher:   fetcher,
		sentiment: sentiment,
		analyzer:  analyzer,
		store:     store,
		hub:       hub,
		status:    status,
	}
}

// Run executes one scan cycle. The wall-clock budget truncates the
// per-asset loop, keeping completed work; an error is returned only
// when there is nothing to process at all.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	o.status.SetRunning(true)
	defer o.status.SetRunning(false)

	ctx, cancel := context.WithTimeout(ctx, o.config.ScanBudget)
	defer cancel()

	assets := o.fetcher.FetchTopAssets(ctx, o.config.TopLimit)
	degraded := false
	if len(assets) > 0 {
		assets = flagTrending(assets, o.fetcher.FetchTrending(ctx))
	} else {
		prior, err := o.store.Assets.List(ctx, o.config.TopLimit)
		if err != nil || len(prior) == 0 {
			failErr := fmt.Errorf("scan: market fetch failed and no prior state: %w", errOr(err))
			o.status.Failure(failErr)
			metrics.ScanCycles.WithLabelValues("failed").Inc()
			log.Error().Err(failErr).Msg("scan: cycle failed")
			return Summary{}, failErr
		}
		degraded = true
		assets = prior
		log.Warn().Int("assets", len(assets)).
			Msg("scan: market fetch failed, degrading to persisted state")
	}

	previous := o.previousScores(ctx)
	sentiments := o.sentiment.Compute(ctx, assets)

	var (
		processed  int64
		aiAnalyzed int64
		alerts     int64
		aiUsed     int64
	)

	jobs := make(chan models.Asset)
	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for asset := range jobs {
				usedAI, alerted := o.processAsset(ctx, asset, sentiments, previous, &aiUsed)
				atomic.AddInt64(&processed, 1)
				if usedAI {
					atomic.AddInt64(&aiAnalyzed, 1)
				}
				if alerted {
					atomic.AddInt64(&alerts, 1)
				}
			}
		}()
	}

feed:
	for _, asset := range assets {
		select {
		case <-ctx.Done():
			log.Warn().Dur("elapsed", time.Since(start)).
				Msg("scan: wall-clock budget exceeded, truncating cycle")
			break feed
		case jobs <- asset:
		}
	}
	close(jobs)
	wg.Wait()

	sum := Summary{
		Processed:  int(processed),
		AIAnalyzed: int(aiAnalyzed),
		Alerts:     int(alerts),
		Degraded:   degraded,
		Duration:   time.Since(start),
	}
	o.status.Success(sum)

	outcome := "success"
	if degraded {
		outcome = "degraded"
	}
	metrics.ScanCycles.WithLabelValues(outcome).Inc()
	metrics.ScanDuration.Observe(sum.Duration.Seconds())
	metrics.AssetsProcessed.Add(float64(sum.Processed))
	metrics.TrackedAssets.Set(float64(sum.Processed))

	o.hub.Publish(ws.EventScanComplete, map[string]interface{}{
		"processed":   sum.Processed,
		"ai_analyzed": sum.AIAnalyzed,
	})
	log.Info().Int("processed", sum.Processed).Int("ai_analyzed", sum.AIAnalyzed).
		Int("alerts", sum.Alerts).Bool("degraded", sum.Degraded).
		Dur("duration", sum.Duration).Msg("scan: cycle complete")
	return sum, nil
}

// processAsset scores and persists one asset. Failures are logged and
// contained; one bad asset never aborts the batch.
func (o *Orchestrator) processAsset(ctx context.Context, asset models.Asset,
	sentiments map[string]float64, previous map[string]float64, aiUsed *int64) (usedAI, alerted bool) {

	sd := scoring.Calculate(asset)

	var res ai.Result
	switch {
	case !ai.Qualifies(asset):
		res = ai.Fallback(asset)
		metrics.AICompletions.WithLabelValues("fallback").Inc()
	case atomic.AddInt64(aiUsed, 1) > int64(o.config.AIBudget):
		res = ai.PlaceholderResult
		metrics.AICompletions.WithLabelValues("placeholder").Inc()
	default:
		res = o.analyzer.Analyze(ctx, asset)
		usedAI = !res.Fallback
		if res.Fallback {
			metrics.AICompletions.WithLabelValues("fallback").Inc()
		} else {
			metrics.AICompletions.WithLabelValues("model").Inc()
		}
	}

	sentimentScore, ok := sentiments[asset.Symbol]
	if !ok {
		sentimentScore = 0.5
	}

	asset.AIScore = res.Score
	asset.AIVerdict = res.Verdict
	asset.SentimentScore = sentimentScore
	asset.CombinedScore = combinedScore(sd.Score, res.Score, sentimentScore)
	asset.Confidence = scoring.Confidence(asset, sd, res.Confidence)
	asset.Reasons = strings.Join(sd.Reasons, "; ")
	asset.LastUpdated = time.Now().UTC()

	if prev, ok := previous[asset.Symbol]; ok && prev > 0 {
		changePct := (asset.CombinedScore - prev) / prev * 100
		if abs(changePct) >= o.config.AlertThresholdPct {
			alerted = o.emitAlert(ctx, asset, changePct)
		}
	}

	if err := o.store.Assets.Upsert(ctx, []models.Asset{asset}); err != nil {
		log.Error().Err(err).Str("symbol", asset.Symbol).Msg("scan: asset upsert failed")
		return usedAI, alerted
	}
	snap := models.SnapshotFromAsset(asset, asset.LastUpdated)
	if err := o.store.History.Insert(ctx, []models.HistorySnapshot{snap}); err != nil {
		log.Error().Err(err).Str("symbol", asset.Symbol).Msg("scan: history insert failed")
	}
	return usedAI, alerted
}

// emitAlert runs the dedup check and insert under a per-symbol lock so
// concurrent workers cannot double-alert one symbol.
func (o *Orchestrator) emitAlert(ctx context.Context, asset models.Asset, changePct float64) bool {
	unlock := o.alertLocks.lock(asset.Symbol)
	defer unlock()

	exists, err := o.store.Alerts.RecentExists(ctx, asset.Symbol,
		models.AlertTypeScoreJump, o.config.AlertDedupWindow)
	if err != nil {
		log.Error().Err(err).Str("symbol", asset.Symbol).Msg("scan: alert dedup lookup failed")
		return false
	}
	if exists {
		return false
	}

	alert := models.Alert{
		Symbol:    asset.Symbol,
		AlertType: models.AlertTypeScoreJump,
		Message:   fmt.Sprintf("%s combined score changed %.1f%%", asset.Symbol, changePct),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.Alerts.Insert(ctx, alert); err != nil {
		log.Error().Err(err).Str("symbol", asset.Symbol).Msg("scan: alert insert failed")
		return false
	}

	metrics.AlertsEmitted.Inc()
	o.hub.Publish(ws.EventScoreAlert, map[string]interface{}{
		"symbol":     asset.Symbol,
		"change_pct": changePct,
	})
	log.Info().Str("symbol", asset.Symbol).Float64("change_pct", changePct).
		Msg("scan: score jump alert")
	return true
}

// previousScores loads the last persisted combined score per symbol
// for the jump comparison. A failed load just disables alerting for
// the cycle.
func (o *Orchestrator) previousScores(ctx context.Context) map[string]float64 {
	prior, err := o.store.Assets.List(ctx, 0)
	if err != nil {
		log.Warn().Err(err).Msg("scan: could not load previous scores")
		return nil
	}
	out := make(map[string]float64, len(prior))
	for _, a := range prior {
		out[a.Symbol] = a.CombinedScore
	}
	return out
}

// flagTrending marks assets appearing in the trending feed and moves
// them to the front of the working set so a truncated cycle still
// covers them. Order within each partition is preserved.
func flagTrending(assets []models.Asset, trending []models.TrendingCoin) []models.Asset {
	if len(trending) == 0 {
		return assets
	}
	hot := make(map[string]struct{}, len(trending))
	for _, c := range trending {
		hot[strings.ToUpper(c.Symbol)] = struct{}{}
	}

	out := make([]models.Asset, 0, len(assets))
	var rest []models.Asset
	for _, a := range assets {
		if _, ok := hot[a.Symbol]; ok {
			a.Trending = true
			out = append(out, a)
		} else {
			rest = append(rest, a)
		}
	}
	if len(out) > 0 {
		log.Info().Int("trending", len(out)).Msg("scan: trending assets prioritized")
	}
	return append(out, rest...)
}

// combinedScore blends the deterministic base score with the AI score
// and sentiment into the persisted 0-100 composite.
func combinedScore(base, aiScore, sentiment float64) float64 {
	c := 0.5*base + 0.3*aiScore + 0.2*sentiment*100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func errOr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("empty result")
}

// keyedMutex serializes alert emission per symbol.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
