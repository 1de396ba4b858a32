// Package sentiment blends news and social sentiment per symbol, with
// a deterministic price-action fallback when no external source is
// available.
package sentiment

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/models"
)

// Neutral is the score assigned when nothing is known about a symbol.
const Neutral = 0.5

// SourceScore is one source's view of a symbol.
type SourceScore struct {
	Score    float64 `json:"score"`
	Mentions int     `json:"mentions"`
}

// Source produces per-symbol sentiment for a batch of assets. A source
// that is unavailable (missing key, open breaker, upstream failure)
// returns an empty map rather than an error.
type Source interface {
	Name() string
	FetchSentiment(ctx context.Context, assets []models.Asset) map[string]SourceScore
}

// Engine merges all configured sources into one [0,1] score per
// symbol.
type Engine struct {
	sources []Source
}

func NewEngine(sources ...Source) *Engine {
	return &Engine{sources: sources}
}

// Compute returns a sentiment score for every asset in the batch.
// Sources are weighted by mention count; symbols no source mentions
// fall back to a rule derived from recent price action.
func (e *Engine) Compute(ctx context.Context, assets []models.Asset) map[string]float64 {
	type acc struct {
		weighted float64
		mentions int
	}
	merged := make(map[string]acc)

	for _, src := range e.sources {
		scores := src.FetchSentiment(ctx, assets)
		if len(scores) == 0 {
			log.Debug().Str("source", src.Name()).Msg("sentiment: source returned nothing")
			continue
		}
		for sym, s := range scores {
			sym = strings.ToUpper(sym)
			a := merged[sym]
			a.weighted += s.Score * float64(max(s.Mentions, 1))
			a.mentions += max(s.Mentions, 1)
			merged[sym] = a
		}
	}

	out := make(map[string]float64, len(assets))
	for _, asset := range assets {
		if a, ok := merged[asset.Symbol]; ok && a.mentions > 0 {
			out[asset.Symbol] = clamp01(a.weighted / float64(a.mentions))
			continue
		}
		out[asset.Symbol] = RuleBased(asset)
	}
	return out
}

// RuleBased derives sentiment from price action alone: sustained
// positive movement reads as positive sentiment. Missing change data
// yields the neutral score.
func RuleBased(a models.Asset) float64 {
	if a.PriceChange24h == nil && a.PriceChange7d == nil {
		return Neutral
	}
	change24h := models.Float(a.PriceChange24h)
	change7d := models.Float(a.PriceChange7d)

	score := 0.0
	if change24h > 0 {
		score += 0.4
	}
	if change7d > 0 {
		score += 0.4
	}
	if change7d > 10 {
		score += 0.2
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
