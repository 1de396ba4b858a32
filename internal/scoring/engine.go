package scoring

import (
	"math"

	"github.com/cryptoscout/scout/internal/models"
)

// ScoreData is the result of the deterministic multi-factor score.
// Sub-scores are normalized to [0,1]; Score is 0-100.
type ScoreData struct {
	Score       float64  `json:"score"`
	Fundamental float64  `json:"fundamental"`
	Momentum    float64  `json:"momentum"`
	Risk        float64  `json:"risk"`
	Stability   float64  `json:"stability"`
	Quality     float64  `json:"quality"`
	Reasons     []string `json:"reasons"`
}

// Calculate computes the multi-factor score for an asset. Pure and
// deterministic: no IO, missing numeric fields default to zero, and it
// never fails regardless of input.
func Calculate(a models.Asset) ScoreData {
	marketCap := models.Float(a.MarketCap)
	volume := models.Float(a.Volume24h)
	change24h := models.Float(a.PriceChange24h)
	change7d := models.Float(a.PriceChange7d)

	// The market feed carries no holder counts; the term contributes
	// zero until a source supplies one.
	holders := 0.0

	fundamental := clamp01(
		0.4*math.Log10(marketCap+1)/12 +
			0.4*math.Log10(volume+1)/12 +
			0.2*math.Log10(holders+1)/6)

	// Change values are percentage points, so 0% change centers at 0.5.
	momentum := clamp01((0.6*change24h + 0.4*change7d + 50) / 100)

	volatility := clamp01(math.Abs(change24h) / 30)
	drawdown := clamp01(math.Max(0, -change7d) / 50)
	risk := clamp01(0.6*volatility + 0.4*drawdown)

	stability := clamp01(0.6*fundamental + 0.4*(1-risk))
	quality := clamp01(0.5*fundamental + 0.3*stability + 0.2*momentum)

	score := 100 * clamp01(0.35*fundamental+0.25*momentum+0.2*stability+0.2*quality)

	var reasons []string
	if fundamental > 0.7 {
		reasons = append(reasons, "Strong fundamentals")
	}
	if momentum > 0.65 {
		reasons = append(reasons, "Positive momentum")
	}
	if risk < 0.3 {
		reasons = append(reasons, "Low volatility risk")
	}
	if stability > 0.7 {
		reasons = append(reasons, "High stability")
	}
	if drawdown > 0.5 {
		reasons = append(reasons, "Recent drawdown risk")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Balanced risk profile")
	}

	return ScoreData{
		Score:       score,
		Fundamental: fundamental,
		Momentum:    momentum,
		Risk:        risk,
		Stability:   stability,
		Quality:     quality,
		Reasons:     reasons,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
