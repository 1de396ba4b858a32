package httpclient

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls retry behavior for a Client.
type Config struct {
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
}

// DefaultConfig returns the transport settings used by provider clients.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 15 * time.Second,
		MaxRetries:     3,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
		UserAgent:      "CryptoScout/1.0",
	}
}

// Client wraps http.Client with bounded retries and exponential backoff.
// Transient transport failures and retryable 5xx statuses are retried;
// a 429 is returned to the caller untouched so the provider layer can
// record the rate limit instead of hammering the endpoint again.
type Client struct {
	config Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a retrying HTTP client.
func New(config Config) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 30 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.RequestTimeout},
		sleep:  sleepCtx,
	}
}

// Do executes the request, retrying transient failures with exponential
// backoff. The response body is the caller's to close.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.String()).
				Msg("Retrying HTTP request")
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.config.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	backoff := c.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > c.config.BackoffMax {
		backoff = c.config.BackoffMax
	}
	// Up to 10% jitter keeps retry storms from synchronizing.
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSleep overrides the backoff sleeper. Test hook.
func (c *Client) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}
