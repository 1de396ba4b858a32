// Package ai gates assets through an LLM analyst and falls back to a
// deterministic scoring formula whenever the model is unavailable or
// returns garbage.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/models"
)

// Qualification thresholds. Assets below all of these are too thin to
// be worth a model call.
const (
	minMarketCapForAI = 5e7
	minVolumeForAI    = 5e6
	minAbsChangeForAI = 2.0
)

const maxRetries = 2

// Verdict labels in descending order of conviction.
const (
	VerdictStrongBuy = "STRONG BUY"
	VerdictBuy       = "BUY"
	VerdictHold      = "HOLD"
	VerdictAvoid     = "AVOID"
)

// PlaceholderResult is assigned to qualified assets that exceed the
// per-scan model budget.
var PlaceholderResult = Result{Score: 50, Verdict: "Hold", Confidence: 0.4, Insight: "Deferred: analysis budget exhausted"}

// Result is one asset's AI assessment.
type Result struct {
	Score      float64 `json:"score"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Insight    string  `json:"insight"`
	Fallback   bool    `json:"fallback"`
}

type modelVerdict struct {
	Score      *float64 `json:"score"`
	Verdict    string   `json:"verdict"`
	Confidence *float64 `json:"confidence"`
	Insight    string   `json:"insight"`
}

// jsonBlock pulls the first {...} object out of a completion that may
// be wrapped in prose or markdown fences.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Analyzer wraps a completion client with retries, response
// validation, and the deterministic fallback.
type Analyzer struct {
	client CompletionClient
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewAnalyzer(client CompletionClient) *Analyzer {
	return &Analyzer{
		client: client,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// SetSleep replaces the inter-retry sleep, for tests.
func (a *Analyzer) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	a.sleep = sleep
}

// Qualifies reports whether an asset is worth a model call: large
// enough, liquid enough, and actually moving. Missing fields count as
// zero, so incomplete assets fail closed.
func Qualifies(a models.Asset) bool {
	return models.Float(a.MarketCap) >= minMarketCapForAI &&
		models.Float(a.Volume24h) >= minVolumeForAI &&
		math.Abs(models.Float(a.PriceChange24h)) >= minAbsChangeForAI
}

// Analyze asks the model for a verdict on one asset, retrying
// malformed responses, and degrades to Fallback on exhaustion.
func (a *Analyzer) Analyze(ctx context.Context, asset models.Asset) Result {
	if a.client == nil {
		return Fallback(asset)
	}

	prompt := buildPrompt(asset)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
				break
			}
		}
		raw, err := a.client.Complete(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Str("symbol", asset.Symbol).Int("attempt", attempt).
				Msg("ai: completion failed")
			continue
		}
		if res, ok := parseVerdict(raw); ok {
			return res
		}
		log.Warn().Str("symbol", asset.Symbol).Int("attempt", attempt).
			Msg("ai: unparseable completion")
	}
	return Fallback(asset)
}

// Fallback computes a deterministic score from market structure alone.
func Fallback(a models.Asset) Result {
	score := math.Log10(models.Float(a.MarketCap)+1)*15 +
		math.Log10(models.Float(a.Volume24h)+1)*12 +
		math.Abs(models.Float(a.PriceChange24h))*1.5
	score = math.Min(score, 100)
	return Result{
		Score:      score,
		Verdict:    VerdictForScore(score),
		Confidence: score / 100,
		Insight:    "Heuristic assessment from market structure",
		Fallback:   true,
	}
}

// VerdictForScore maps a 0-100 score onto the verdict ladder.
func VerdictForScore(score float64) string {
	switch {
	case score >= 75:
		return VerdictStrongBuy
	case score >= 60:
		return VerdictBuy
	case score >= 45:
		return VerdictHold
	default:
		return VerdictAvoid
	}
}

func buildPrompt(a models.Asset) string {
	return fmt.Sprintf(
		`Assess the cryptocurrency %s (%s).
Price: %.6f USD, market cap: %.0f, 24h volume: %.0f, 24h change: %.2f%%, 7d change: %.2f%%.
Reply with a single JSON object: {"score": 0-100, "verdict": "STRONG BUY"|"BUY"|"HOLD"|"AVOID", "confidence": 0-1, "insight": "<one sentence>"}`,
		a.Name, a.Symbol, a.CurrentPrice,
		models.Float(a.MarketCap), models.Float(a.Volume24h),
		models.Float(a.PriceChange24h), models.Float(a.PriceChange7d))
}

// parseVerdict extracts and validates the model's JSON. Score and
// confidence are required and get clamped to their ranges; a missing
// or unknown verdict is re-derived from the score.
func parseVerdict(raw string) (Result, bool) {
	block := jsonBlock.FindString(raw)
	if block == "" {
		return Result{}, false
	}
	var v modelVerdict
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return Result{}, false
	}
	if v.Score == nil || v.Confidence == nil {
		return Result{}, false
	}

	score := math.Max(0, math.Min(100, *v.Score))
	conf := math.Max(0, math.Min(1, *v.Confidence))
	verdict := v.Verdict
	switch verdict {
	case VerdictStrongBuy, VerdictBuy, VerdictHold, VerdictAvoid:
	default:
		verdict = VerdictForScore(score)
	}
	return Result{Score: score, Verdict: verdict, Confidence: conf, Insight: v.Insight}, true
}
