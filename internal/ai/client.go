package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cryptoscout/scout/internal/net/httpclient"
	"github.com/cryptoscout/scout/internal/net/usage"
)

const (
	defaultCompletionBaseURL = "https://api.openai.com/v1"
	defaultCompletionModel   = "gpt-4o-mini"
)

// CompletionClient produces one model completion for a prompt.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completions API. All
// calls run through a circuit breaker so a degraded model endpoint
// stops consuming the request budget quickly.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *httpclient.Client
	breaker *gobreaker.CircuitBreaker
	usage   *usage.Tracker
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAIClient(apiKey, model string, hc *httpclient.Client, tracker *usage.Tracker) *OpenAIClient {
	if model == "" {
		model = defaultCompletionModel
	}
	settings := gobreaker.Settings{
		Name:    "ai-completions",
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &OpenAIClient{
		baseURL: defaultCompletionBaseURL,
		apiKey:  apiKey,
		model:   model,
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker(settings),
		usage:   tracker,
	}
}

// SetBaseURL points the client at a different API host, for tests or
// self-hosted gateways.
func (c *OpenAIClient) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Complete sends one chat completion request and returns the raw
// message content.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("ai: no API key configured")
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a cryptocurrency analyst. Respond with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.usage.RecordCall()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.usage.RecordFailure()
		return "", fmt.Errorf("ai: completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.usage.RecordRateLimit()
		return "", fmt.Errorf("ai: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		c.usage.RecordFailure()
		return "", fmt.Errorf("ai: completion status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ai: decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai: empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}
