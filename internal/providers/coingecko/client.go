package coingecko

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/net/circuit"
	"github.com/cryptoscout/scout/internal/net/httpclient"
	"github.com/cryptoscout/scout/internal/net/usage"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"

	// Free-tier CoinGecko allows roughly 10-30 calls/minute; stay on
	// the conservative side.
	defaultRateLimit = rate.Limit(0.25)
	defaultBurst     = 2
)

// marketRow mirrors the /coins/markets response shape. Numeric fields
// that the API sends as null stay nil here and default to zero later.
type marketRow struct {
	Symbol         string   `json:"symbol"`
	Name           string   `json:"name"`
	CurrentPrice   *float64 `json:"current_price"`
	MarketCap      *float64 `json:"market_cap"`
	MarketCapRank  int      `json:"market_cap_rank"`
	TotalVolume    *float64 `json:"total_volume"`
	PriceChange24h *float64 `json:"price_change_percentage_24h"`
	PriceChange7d  *float64 `json:"price_change_percentage_7d_in_currency"`
	LastUpdated    string   `json:"last_updated"`
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			Symbol        string `json:"symbol"`
			Name          string `json:"name"`
			MarketCapRank int    `json:"market_cap_rank"`
		} `json:"item"`
	} `json:"coins"`
}

// Client fetches market data from CoinGecko. Every fetch is guarded by
// a client-side rate limiter and a circuit breaker, and every outcome
// is recorded in the usage tracker. Fetches fail soft: any error path
// returns an empty slice so a scan cycle degrades instead of aborting.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	usage   *usage.Tracker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sets the pro/demo API key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimit overrides the client-side request rate.
func WithRateLimit(l rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(l, burst) }
}

// NewClient builds a CoinGecko client around the shared retrying HTTP
// client, breaker, and usage tracker.
func NewClient(hc *httpclient.Client, br *circuit.Breaker, tracker *usage.Tracker, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    hc,
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurst),
		breaker: br,
		usage:   tracker,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchTopAssets returns up to limit assets ordered by market cap. On
// any failure (open breaker, rate limit, transport or decode error) it
// returns an empty slice; the caller decides how to degrade.
func (c *Client) FetchTopAssets(ctx context.Context, limit int) []models.Asset {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("page", "1")
	q.Set("price_change_percentage", "24h,7d")

	body, ok := c.get(ctx, "/coins/markets", q)
	if !ok {
		return nil
	}

	var rows []marketRow
	if err := json.Unmarshal(body, &rows); err != nil {
		log.Warn().Err(err).Msg("coingecko: malformed markets payload")
		c.breaker.RecordFailure()
		c.usage.RecordFailure()
		return nil
	}

	assets := make([]models.Asset, 0, len(rows))
	dropped := 0
	now := time.Now().UTC()
	for _, r := range rows {
		a, valid := toAsset(r, now)
		if !valid {
			dropped++
			continue
		}
		assets = append(assets, a)
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(assets)).
			Msg("coingecko: dropped invalid market records")
	}
	return assets
}

// FetchTrending returns the currently trending coins. Fail-soft like
// FetchTopAssets.
func (c *Client) FetchTrending(ctx context.Context) []models.TrendingCoin {
	body, ok := c.get(ctx, "/search/trending", nil)
	if !ok {
		return nil
	}

	var resp trendingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Warn().Err(err).Msg("coingecko: malformed trending payload")
		c.breaker.RecordFailure()
		c.usage.RecordFailure()
		return nil
	}

	coins := make([]models.TrendingCoin, 0, len(resp.Coins))
	for _, entry := range resp.Coins {
		if entry.Item.Symbol == "" {
			continue
		}
		coins = append(coins, models.TrendingCoin{
			Symbol:        strings.ToUpper(entry.Item.Symbol),
			Name:          entry.Item.Name,
			MarketCapRank: entry.Item.MarketCapRank,
		})
	}
	return coins
}

// get performs one guarded request and returns the response body. The
// bool reports success; failures are already recorded on the breaker
// and tracker.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, bool) {
	if !c.breaker.CanExecute() {
		log.Warn().Str("path", path).Msg("coingecko: circuit open, skipping fetch")
		return nil, false
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.usage.RecordCall()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("coingecko: request failed")
		c.breaker.RecordFailure()
		c.usage.RecordFailure()
		return nil, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warn().Str("path", path).Msg("coingecko: rate limited")
		c.usage.RecordRateLimit()
		c.breaker.RecordFailure()
		return nil, false
	case resp.StatusCode != http.StatusOK:
		log.Warn().Int("status", resp.StatusCode).Str("path", path).
			Msg("coingecko: unexpected status")
		c.breaker.RecordFailure()
		c.usage.RecordFailure()
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.breaker.RecordFailure()
		c.usage.RecordFailure()
		return nil, false
	}
	c.breaker.RecordSuccess()
	return body, true
}

// toAsset validates one market row. Symbol, name, and a price are
// required; everything else defaults to zero via nil pointers.
func toAsset(r marketRow, now time.Time) (models.Asset, bool) {
	if r.Symbol == "" || r.Name == "" || r.CurrentPrice == nil {
		return models.Asset{}, false
	}
	a := models.Asset{
		Symbol:         strings.ToUpper(r.Symbol),
		Name:           r.Name,
		CurrentPrice:   *r.CurrentPrice,
		MarketCap:      r.MarketCap,
		MarketCapRank:  r.MarketCapRank,
		Volume24h:      r.TotalVolume,
		PriceChange24h: r.PriceChange24h,
		PriceChange7d:  r.PriceChange7d,
		LastUpdated:    now,
	}
	if r.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, r.LastUpdated); err == nil {
			a.LastUpdated = ts
		}
	}
	return a, true
}

// Health reports the breaker snapshot and rolling usage counts for the
// health endpoint.
func (c *Client) Health() (circuit.Snapshot, usage.Snapshot) {
	return c.breaker.GetSnapshot(), c.usage.GetSnapshot()
}
