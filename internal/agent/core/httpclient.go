package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/sony/gobreaker/v2"
)

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend responded with status %d", e.Code)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Code, e.Body)
}

// HTTPClient performs single JSON round-trips behind a circuit breaker.
// It never retries; an open breaker fails fast with gobreaker.ErrOpenState.
type HTTPClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPClient builds a client whose every call is bounded by timeout.
func NewHTTPClient(name string, timeout time.Duration, cb config.BreakerConfig, logger *log.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxFailures := cb.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cb.Interval,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &HTTPClient{client: &http.Client{Timeout: timeout}, breaker: breaker}
}

// ClientPool hands out one HTTPClient per backend name, URL and timeout, so
// services derived with per-request settings share breaker state.
type ClientPool struct {
	cb config.BreakerConfig

	mu      sync.Mutex
	clients map[string]*HTTPClient
}

func NewClientPool(cb config.BreakerConfig) *ClientPool {
	return &ClientPool{cb: cb, clients: make(map[string]*HTTPClient)}
}

// Get returns the client for the backend, creating it on first use.
func (p *ClientPool) Get(name, baseURL string, timeout time.Duration, logger *log.Logger) *HTTPClient {
	key := fmt.Sprintf("%s|%s|%s", name, baseURL, timeout)
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c
	}
	c := NewHTTPClient(name, timeout, p.cb, logger)
	p.clients[key] = c
	return c
}

// newProbeClient returns a client whose breaker never opens. Connectivity
// checks must always reach the backend.
func newProbeClient(name string) *HTTPClient {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		ReadyToTrip: func(gobreaker.Counts) bool { return false },
	})
	return &HTTPClient{client: &http.Client{}, breaker: breaker}
}

// DoJSON sends body (when non-nil) as JSON and decodes a 2xx response into out.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.do(ctx, method, url, headers, body, out)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (c *HTTPClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *HTTPClient) do(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// read response body (best-effort) to include in error
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
