package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/ahalansari/deep-search/internal/agent/telemetry"
)

// ErrNoChoices is returned when the backend answers without any choice.
var ErrNoChoices = errors.New("completion response has no choices")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompletionClient talks to an OpenAI-compatible chat completions endpoint.
type CompletionClient struct {
	baseURL   string
	model     string
	maxTokens int
	http      *HTTPClient
	logger    *log.Logger
	debug     bool
	telemetry *telemetry.Telemetry
}

// NewCompletionClient builds a client from the ai section of the config.
func NewCompletionClient(cfg config.AIConfig, cb config.BreakerConfig, logger *log.Logger, tele *telemetry.Telemetry) *CompletionClient {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CompletionClient{
		baseURL:   cfg.URL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		http:      NewHTTPClient("completion", cfg.Timeout, cb, logger),
		logger:    logger,
		telemetry: tele,
	}
}

// WithHTTPClient replaces the round-tripper and its breaker.
func (c *CompletionClient) WithHTTPClient(h *HTTPClient) *CompletionClient {
	c.http = h
	return c
}

// SetDebug enables prompt dumps in the log.
func (c *CompletionClient) SetDebug(debug bool) { c.debug = debug }

// Model returns the configured model name.
func (c *CompletionClient) Model() string { return c.model }

// Complete sends one system/user pair and returns the first choice's content.
func (c *CompletionClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) CompletionOutcome {
	start := time.Now()
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
		Stream:      false,
	}
	if c.debug {
		c.logger.Printf("completion request model=%s temperature=%.2f user=%q", c.model, temperature, userPrompt)
	}

	var resp chatResponse
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", nil, payload, &resp)
	if err == nil && len(resp.Choices) == 0 {
		err = ErrNoChoices
	}
	out := CompletionOutcome{}
	if err != nil {
		out.Err = fmt.Errorf("chat completion: %w", err)
		c.logger.Printf("completion failed: %v", out.Err)
	} else {
		out.Text = resp.Choices[0].Message.Content
	}
	c.telemetry.RecordCompletion(out.Degraded(), time.Since(start))
	return out
}
