package models

import (
	"time"
)

// Asset is a tracked crypto symbol with market and scoring attributes.
// Symbols are unique, upper-cased at ingestion. The four nullable market
// fields stay pointers so downstream scoring can distinguish "absent"
// from "zero" when estimating data completeness.
type Asset struct {
	Symbol         string    `json:"symbol" db:"symbol"`
	Name           string    `json:"name" db:"name"`
	CurrentPrice   float64   `json:"current_price" db:"current_price"`
	MarketCap      *float64  `json:"market_cap" db:"market_cap"`
	Volume24h      *float64  `json:"volume_24h" db:"volume_24h"`
	PriceChange24h *float64  `json:"price_change_24h" db:"price_change_24h"`
	PriceChange7d  *float64  `json:"price_change_7d" db:"price_change_7d"`
	MarketCapRank  int       `json:"market_cap_rank" db:"market_cap_rank"`
	Trending       bool      `json:"trending" db:"trending"`
	AIScore        float64   `json:"ai_score" db:"ai_score"`
	AIVerdict      string    `json:"ai_verdict" db:"ai_verdict"`
	SentimentScore float64   `json:"sentiment_score" db:"sentiment_score"`
	CombinedScore  float64   `json:"combined_score" db:"combined_score"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	Reasons        string    `json:"reasons" db:"reasons"`
	LastUpdated    time.Time `json:"last_updated" db:"last_updated"`
}

// TrendingCoin is a lightweight entry from a trending-search feed,
// matched against the market working set by symbol.
type TrendingCoin struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank int    `json:"market_cap_rank"`
}

// Float dereferences a nullable numeric field, defaulting to zero.
func Float(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Ptr is a convenience for building assets in tests and adapters.
func Ptr(v float64) *float64 {
	return &v
}

// HistorySnapshot is an immutable copy of an asset's state at a scan
// timestamp. Rows are append-only; nothing in the pipeline updates or
// deletes them.
type HistorySnapshot struct {
	ID             int64     `json:"id" db:"id"`
	Symbol         string    `json:"symbol" db:"symbol"`
	CurrentPrice   float64   `json:"current_price" db:"current_price"`
	MarketCap      float64   `json:"market_cap" db:"market_cap"`
	Volume24h      float64   `json:"volume_24h" db:"volume_24h"`
	PriceChange24h float64   `json:"price_change_24h" db:"price_change_24h"`
	PriceChange7d  float64   `json:"price_change_7d" db:"price_change_7d"`
	AIScore        float64   `json:"ai_score" db:"ai_score"`
	SentimentScore float64   `json:"sentiment_score" db:"sentiment_score"`
	CombinedScore  float64   `json:"combined_score" db:"combined_score"`
	SnapshotTime   time.Time `json:"snapshot_time" db:"snapshot_time"`
}

// AlertTypeScoreJump marks a large relative combined-score change
// between consecutive scans.
const AlertTypeScoreJump = "SCORE_JUMP"

// Alert records a detected significant score change for a symbol.
type Alert struct {
	ID        int64     `json:"id" db:"id"`
	Symbol    string    `json:"symbol" db:"symbol"`
	AlertType string    `json:"alert_type" db:"alert_type"`
	Message   string    `json:"message" db:"message"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SnapshotFromAsset captures the asset's current state for history.
func SnapshotFromAsset(a Asset, at time.Time) HistorySnapshot {
	return HistorySnapshot{
		Symbol:         a.Symbol,
		CurrentPrice:   a.CurrentPrice,
		MarketCap:      Float(a.MarketCap),
		Volume24h:      Float(a.Volume24h),
		PriceChange24h: Float(a.PriceChange24h),
		PriceChange7d:  Float(a.PriceChange7d),
		AIScore:        a.AIScore,
		SentimentScore: a.SentimentScore,
		CombinedScore:  a.CombinedScore,
		SnapshotTime:   at,
	}
}
