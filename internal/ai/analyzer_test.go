package ai

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoscout/scout/internal/models"
)

type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.New("out of script")
}

func qualifiedAsset() models.Asset {
	return models.Asset{
		Symbol: "SOL", Name: "Solana", CurrentPrice: 150,
		MarketCap:      models.Ptr(7e10),
		Volume24h:      models.Ptr(2e9),
		PriceChange24h: models.Ptr(5.5),
		PriceChange7d:  models.Ptr(11.0),
	}
}

func noSleep(a *Analyzer) {
	a.SetSleep(func(context.Context, time.Duration) error { return nil })
}

func TestQualifies(t *testing.T) {
	assert.True(t, Qualifies(qualifiedAsset()))

	flat := qualifiedAsset()
	flat.PriceChange24h = models.Ptr(0.5)
	assert.False(t, Qualifies(flat), "flat price action does not qualify")

	thin := qualifiedAsset()
	thin.Volume24h = models.Ptr(1e6)
	assert.False(t, Qualifies(thin), "thin volume does not qualify")

	missing := qualifiedAsset()
	missing.MarketCap = nil
	assert.False(t, Qualifies(missing), "missing fields fail closed")
}

func TestAnalyze_ParsesModelJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Here is my assessment:\n```json\n{\"score\": 82, \"verdict\": \"STRONG BUY\", \"confidence\": 0.8, \"insight\": \"Strong momentum\"}\n```",
	}}
	a := NewAnalyzer(client)
	noSleep(a)

	res := a.Analyze(context.Background(), qualifiedAsset())
	assert.False(t, res.Fallback)
	assert.Equal(t, 82.0, res.Score)
	assert.Equal(t, VerdictStrongBuy, res.Verdict)
	assert.Equal(t, 0.8, res.Confidence)
}

func TestAnalyze_RetriesMalformedThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"not json at all",
		`{"score": 130, "verdict": "MOON", "confidence": 1.4, "insight": ""}`,
	}}
	a := NewAnalyzer(client)
	noSleep(a)

	res := a.Analyze(context.Background(), qualifiedAsset())
	assert.Equal(t, 2, client.calls)
	assert.False(t, res.Fallback)
	assert.Equal(t, 100.0, res.Score, "score clamps to 100")
	assert.Equal(t, 1.0, res.Confidence, "confidence clamps to 1")
	assert.Equal(t, VerdictStrongBuy, res.Verdict, "unknown verdict re-derived from score")
}

func TestAnalyze_ExhaustedRetriesFallBack(t *testing.T) {
	client := &scriptedClient{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	a := NewAnalyzer(client)
	noSleep(a)

	res := a.Analyze(context.Background(), qualifiedAsset())
	assert.Equal(t, 3, client.calls, "initial attempt plus two retries")
	assert.True(t, res.Fallback)
}

func TestAnalyze_NilClientFallsBack(t *testing.T) {
	res := NewAnalyzer(nil).Analyze(context.Background(), qualifiedAsset())
	assert.True(t, res.Fallback)
}

func TestFallback_Formula(t *testing.T) {
	a := qualifiedAsset()
	want := math.Log10(7e10+1)*15 + math.Log10(2e9+1)*12 + 5.5*1.5
	res := Fallback(a)
	assert.InDelta(t, math.Min(want, 100), res.Score, 1e-9)
	assert.InDelta(t, res.Score/100, res.Confidence, 1e-9)
	assert.Equal(t, VerdictForScore(res.Score), res.Verdict)
}

func TestFallback_EmptyAssetScoresLow(t *testing.T) {
	res := Fallback(models.Asset{Symbol: "X", Name: "X"})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, VerdictAvoid, res.Verdict)
}

func TestVerdictForScore(t *testing.T) {
	require.Equal(t, VerdictStrongBuy, VerdictForScore(75))
	require.Equal(t, VerdictBuy, VerdictForScore(60))
	require.Equal(t, VerdictHold, VerdictForScore(45))
	require.Equal(t, VerdictAvoid, VerdictForScore(44.9))
}
