// Package ranking derives profile-weighted views over the scored
// asset set. One base computation per profile is cached on a fixed
// TTL; the individual views are just re-sorts of that base.
package ranking

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/persistence"
)

// Profiles form a closed set; anything unrecognized falls back to
// balanced.
const (
	ProfileAggressive   = "aggressive"
	ProfileConservative = "conservative"
	ProfileBalanced     = "balanced"
)

// Views over one profile-scored base set.
const (
	ViewShortTerm  = "short_term"
	ViewLongTerm   = "long_term"
	ViewLowRisk    = "low_risk"
	ViewHighGrowth = "high_growth"
)

// Volatility heat labels by |24h change| percentage points.
const (
	HeatExtreme  = "EXTREME"
	HeatHigh     = "HIGH"
	HeatModerate = "MODERATE"
	HeatLow      = "LOW"
)

const defaultTTL = 5 * time.Minute

// RankedAsset is one entry of a ranking view.
type RankedAsset struct {
	models.Asset
	ProfileScore   float64 `json:"profile_score"`
	VolatilityHeat string  `json:"volatility_heat"`
}

// Engine computes and caches profile rankings. The Redis client is
// optional; without it an in-process cache provides the same TTL
// semantics.
type Engine struct {
	assets persistence.AssetRepo
	rdb    *redis.Client
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	ranked  []RankedAsset
	expires time.Time
}

func NewEngine(assets persistence.AssetRepo, rdb *redis.Client) *Engine {
	return &Engine{
		assets: assets,
		rdb:    rdb,
		ttl:    defaultTTL,
		now:    time.Now,
		local:  make(map[string]localEntry),
	}
}

// SetTTL overrides the cache TTL, for tests.
func (e *Engine) SetTTL(ttl time.Duration) { e.ttl = ttl }

// SetClock overrides the local cache clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// NormalizeProfile maps arbitrary input onto the closed profile set.
func NormalizeProfile(profile string) string {
	switch strings.ToLower(profile) {
	case ProfileAggressive:
		return ProfileAggressive
	case ProfileConservative:
		return ProfileConservative
	default:
		return ProfileBalanced
	}
}

// GetView returns the requested view over the profile's cached base
// ranking. Unknown views fall back to short_term.
func (e *Engine) GetView(ctx context.Context, profile, view string) ([]RankedAsset, error) {
	base, err := e.base(ctx, NormalizeProfile(profile))
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedAsset, len(base))
	copy(ranked, base)
	switch view {
	case ViewLongTerm:
		sort.SliceStable(ranked, func(i, j int) bool {
			return models.Float(ranked[i].MarketCap) > models.Float(ranked[j].MarketCap)
		})
	case ViewLowRisk:
		sort.SliceStable(ranked, func(i, j int) bool {
			return math.Abs(models.Float(ranked[i].PriceChange24h)) <
				math.Abs(models.Float(ranked[j].PriceChange24h))
		})
	case ViewHighGrowth:
		sort.SliceStable(ranked, func(i, j int) bool {
			return models.Float(ranked[i].PriceChange7d) > models.Float(ranked[j].PriceChange7d)
		})
	default: // ViewShortTerm: base order
	}
	return ranked, nil
}

// base returns profile-scored assets sorted by profile score, from
// cache when fresh.
func (e *Engine) base(ctx context.Context, profile string) ([]RankedAsset, error) {
	key := "rankings:" + profile
	if cached, ok := e.cached(ctx, key); ok {
		return cached, nil
	}

	assets, err := e.assets.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedAsset, 0, len(assets))
	for _, a := range assets {
		ranked = append(ranked, RankedAsset{
			Asset:          a,
			ProfileScore:   ProfileScore(a, profile),
			VolatilityHeat: VolatilityHeat(a),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ProfileScore > ranked[j].ProfileScore
	})

	e.store(ctx, key, ranked)
	return ranked, nil
}

func (e *Engine) cached(ctx context.Context, key string) ([]RankedAsset, bool) {
	if e.rdb != nil {
		payload, err := e.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var ranked []RankedAsset
			if json.Unmarshal(payload, &ranked) == nil {
				return ranked, true
			}
		} else if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("ranking: cache read failed")
		}
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.local[key]
	if !ok || e.now().After(entry.expires) {
		return nil, false
	}
	return entry.ranked, true
}

func (e *Engine) store(ctx context.Context, key string, ranked []RankedAsset) {
	if e.rdb != nil {
		payload, err := json.Marshal(ranked)
		if err != nil {
			return
		}
		if err := e.rdb.Set(ctx, key, payload, e.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ranking: cache write failed")
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.local[key] = localEntry{ranked: ranked, expires: e.now().Add(e.ttl)}
}

// ProfileScore blends momentum, AI score, sentiment, and volatility
// with profile-specific weights. Conservative rewards size and
// penalizes volatility hard; aggressive rides it.
func ProfileScore(a models.Asset, profile string) float64 {
	change24h := models.Float(a.PriceChange24h)
	change7d := models.Float(a.PriceChange7d)
	momentum := (0.6*change7d + 0.4*change24h) / 100
	volatility := math.Abs(change24h) / 100
	aiNorm := a.AIScore / 100
	sentiment := a.SentimentScore

	switch NormalizeProfile(profile) {
	case ProfileAggressive:
		return 0.35*momentum + 0.25*aiNorm + 0.20*sentiment + 0.20*volatility
	case ProfileConservative:
		capWeight := math.Min(models.Float(a.MarketCap)/1e9, 1)
		return 0.40*capWeight + 0.25*sentiment + 0.20*aiNorm - 0.25*volatility
	default:
		return 0.30*momentum + 0.20*aiNorm + 0.20*sentiment - 0.15*volatility
	}
}

// VolatilityHeat labels the asset's 24h movement. Thresholds are
// strict: an exact 15/8/3 lands in the cooler tier.
func VolatilityHeat(a models.Asset) string {
	abs := math.Abs(models.Float(a.PriceChange24h))
	switch {
	case abs > 15:
		return HeatExtreme
	case abs > 8:
		return HeatHigh
	case abs > 3:
		return HeatModerate
	default:
		return HeatLow
	}
}
