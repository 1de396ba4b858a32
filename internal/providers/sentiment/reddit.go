package sentiment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/models"
	"github.com/cryptoscout/scout/internal/net/circuit"
	"github.com/cryptoscout/scout/internal/net/httpclient"
	"github.com/cryptoscout/scout/internal/net/usage"
)

const defaultRedditBaseURL = "https://www.reddit.com"

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				UpvoteRatio float64 `json:"upvote_ratio"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditSource scores symbols from hot posts in crypto subreddits. A
// post's tone blends its upvote ratio with keyword tone, so a heavily
// downvoted bullish post still reads lukewarm.
type RedditSource struct {
	baseURL   string
	subreddit string
	http      *httpclient.Client
	breaker   *circuit.Breaker
	usage     *usage.Tracker
}

func NewRedditSource(subreddit string, hc *httpclient.Client, br *circuit.Breaker, tracker *usage.Tracker) *RedditSource {
	if subreddit == "" {
		subreddit = "CryptoCurrency"
	}
	return &RedditSource{
		baseURL:   defaultRedditBaseURL,
		subreddit: subreddit,
		http:      hc,
		breaker:   br,
		usage:     tracker,
	}
}

// SetBaseURL points the source at a different host, for tests.
func (s *RedditSource) SetBaseURL(u string) { s.baseURL = strings.TrimRight(u, "/") }

func (s *RedditSource) Name() string { return "reddit" }

func (s *RedditSource) FetchSentiment(ctx context.Context, assets []models.Asset) map[string]SourceScore {
	if !s.breaker.CanExecute() {
		log.Warn().Msg("sentiment: reddit circuit open")
		return nil
	}

	endpoint := s.baseURL + "/r/" + s.subreddit + "/hot.json?limit=75"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "cryptoscout/1.0")

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
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		s.breaker.RecordFailure()
		return nil
	}
	s.breaker.RecordSuccess()

	type post struct {
		text  string
		ratio float64
	}
	posts := make([]post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, post{
			text:  strings.ToLower(child.Data.Title + " " + child.Data.Selftext),
			ratio: child.Data.UpvoteRatio,
		})
	}

	out := make(map[string]SourceScore)
	for _, asset := range assets {
		sym := strings.ToLower(asset.Symbol)
		name := strings.ToLower(asset.Name)
		total := 0.0
		mentions := 0
		for _, p := range posts {
			if !mentionsAsset(p.text, sym, name) {
				continue
			}
			mentions++
			total += clamp01(0.5*toneOf(p.text) + 0.5*p.ratio)
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
