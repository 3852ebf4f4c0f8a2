// Package llm implements the sample_text contract (spec.md §6) against an
// OpenAI-compatible completions endpoint, and satisfies mediation.TextSampler.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/concurrency"
	"github.com/deliberation/dsm-engine/internal/mediation"
)

// Client calls an OpenAI-compatible text-completion endpoint. On any
// transport failure, non-200 status, or empty choice, SampleText returns the
// empty string rather than an error, per spec.md §6: "the caller treats
// empty as retry with new seed."
//
// A round fans out N+C sample_text calls concurrently (mediation.Engine);
// limiter caps how many leave the process per second so a single round
// cannot blow through the provider's rate limit.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *concurrency.RateLimiter
	log        *logrus.Logger
}

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond int // 0 disables rate limiting
}

// NewClient builds a Client from cfg, defaulting BaseURL/Timeout if unset.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	var limiter *concurrency.RateLimiter
	if cfg.RequestsPerSecond > 0 {
		limiter = concurrency.NewRateLimiter(cfg.RequestsPerSecond)
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		log:     log,
	}
}

// Close stops the rate limiter's background refill goroutine, if any.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
	Temperature float64  `json:"temperature"`
	Seed        *int64   `json:"seed,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// SampleText implements mediation.TextSampler.
func (c *Client) SampleText(ctx context.Context, req mediation.SampleRequest) (string, error) {
	payload := completionRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Terminators,
		Temperature: req.Temperature,
		Seed:        req.Seed,
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = c.httpClient.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Acquire(reqCtx); err != nil {
			return "", nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sample_text payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sample_text request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.WithError(err).Warn("sample_text transport failure")
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(raw)}).Warn("sample_text non-200 response")
		return "", nil
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.log.WithError(err).Warn("sample_text decode failure")
		return "", nil
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Text, nil
}
