package sentiment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/net/circuit"
	"github.com/cryptoscout/scout/internal/net/httpclient"
	"github.com/cryptoscout/scout/internal/net/usage"
)

const defaultNewsBaseURL = "https://gnews.io/api/v4"

var positiveWords = []string{
	"surge", "rally", "bullish", "gain", "soar", "record", "adoption",
	"breakout", "upgrade", "partnership", "approval",
}

var negativeWords = []string{
	"crash", "plunge", "bearish", "drop", "hack", "exploit", "lawsuit",
	"ban", "selloff", "liquidation", "fraud",
}

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type newsResponse struct {
	Articles []newsArticle `json:"articles"`
}

// NewsSource scores symbols from crypto news headlines. Without an API
// key it is a no-op source.
type NewsSource struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	breaker *circuit.Breaker
	usage   *usage.Tracker
}

func NewNewsSource(apiKey string, hc *httpclient.Client, br *circuit.Breaker, tracker *usage.Tracker) *NewsSource {
	return &NewsSource{
		baseURL: defaultNewsBaseURL,
		apiKey:  apiKey,
		http:    hc,
		breaker: br,
		usage:   tracker,
	}
}

// SetBaseURL points the source at a different API host, for tests.
func (s *NewsSource) SetBaseURL(u string) { s.baseURL = strings.TrimRight(u, "/") }

func (s *NewsSource) Name() string { return "news" }

// FetchSentiment pulls one batch of crypto headlines and scores each
// asset by keyword tone in articles that mention it.
func (s *NewsSource) FetchSentiment(ctx context.Context, assets []models.Asset) map[string]SourceScore {
	if s.apiKey == "" {
		return nil
	}
	if !s.breaker.CanExecute() {
		log.Warn().Msg("sentiment: news circuit open")
		return nil
	}

	q := url.Values{}
	q.Set("q", "cryptocurrency")
	q.Set("lang", "en")
	q.Set("max", "50")
	q.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil
	}

	s.usage.RecordCall()
	resp, err := s.http.Do(ctx, req)
	if err != nil {
		s.breaker.RecordFailure()
		s.usage.RecordFailure()
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.usage.RecordRateLimit()
		s.breaker.RecordFailure()
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		s.breaker.RecordFailure()
		s.usage.RecordFailure()
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		s.breaker.RecordFailure()
		return nil
	}
	var parsed newsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		s.breaker.RecordFailure()
		return nil
	}
	s.breaker.RecordSuccess()

	return scoreTexts(assets, articleTexts(parsed.Articles))
}

func articleTexts(articles []newsArticle) []string {
	texts := make([]string, 0, len(articles))
	for _, a := range articles {
		texts = append(texts, strings.ToLower(a.Title+" "+a.Description))
	}
	return texts
}

// scoreTexts maps each asset to the average tone of the texts that
// mention its symbol or name. Tone per text is 0.5 plus 0.1 per
// positive keyword minus 0.1 per negative keyword, clamped.
func scoreTexts(assets []models.Asset, texts []string) map[string]SourceScore {
	out := make(map[string]SourceScore)
	for _, asset := range assets {
		sym := strings.ToLower(asset.Symbol)
		name := strings.ToLower(asset.Name)
		total := 0.0
		mentions := 0
		for _, text := range texts {
			if !mentionsAsset(text, sym, name) {
				continue
			}
			mentions++
			total += toneOf(text)
		}
		if mentions == 0 {
			continue
		}
		out[asset.Symbol] = SourceScore{
			Score:    clamp01(total / float64(mentions)),
			Mentions: mentions,
		}
	}
	return out
}

func mentionsAsset(text, sym, name string) bool {
	if name != "" && strings.Contains(text, name) {
		return true
	}
	// Short tickers collide with ordinary words, require word
	// boundaries via surrounding spaces after padding.
	padded := " " + text + " "
	return sym != "" && strings.Contains(padded, " "+sym+" ")
}

func toneOf(text string) float64 {
	tone := Neutral
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			tone += 0.1
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			tone -= 0.1
		}
	}
	return clamp01(tone)
}
