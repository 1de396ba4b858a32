package scoring

import (
	"math"

	"github.com/cryptoscout/scout/internal/models"
)

// completenessFields is the set of market fields that feed the
// data-completeness component of the confidence estimate.
var completenessFields = 4

// Confidence estimates how trustworthy an asset's combined score is,
// blending data completeness, the stability sub-score, inverse risk,
// and the AI model's own reported confidence with equal weight. The
// result is clamped to [0,1] and rounded to three decimals; any
// internal error degrades to a conservative 0.1 instead of
// propagating.
func Confidence(a models.Asset, sd ScoreData, aiConfidence float64) float64 {
	present := 0
	for _, p := range []*float64{a.MarketCap, a.Volume24h, a.PriceChange24h, a.PriceChange7d} {
		if p != nil {
			present++
		}
	}
	completeness := float64(present) / float64(completenessFields)

	c := 0.25*completeness + 0.25*clamp01(sd.Stability) + 0.25*(1-sd.Risk) + 0.25*clamp01(aiConfidence)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0.1
	}
	return math.Round(clamp01(c)*1000) / 1000
}
