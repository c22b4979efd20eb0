package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Timeouts for connectivity checks.
const (
	ProbeTimeout      = 5 * time.Second
	ListModelsTimeout = 10 * time.Second
	SearxTestTimeout  = 10 * time.Second
	ModelTestTimeout  = 15 * time.Second
)

// ModelInfo is one entry of an OpenAI-compatible /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by"`
}

// SearxTest is the outcome of a test search against a SearXNG instance.
type SearxTest struct {
	ResultCount int
	Engines     []string
}

// Prober runs connectivity checks against arbitrary backend URLs. Checks
// bypass the circuit breakers guarding session traffic.
type Prober struct {
	userAgent string
	searx     *HTTPClient
	ai        *HTTPClient
}

func NewProber(userAgent string) *Prober {
	return &Prober{
		userAgent: userAgent,
		searx:     newProbeClient("probe-searx"),
		ai:        newProbeClient("probe-ai"),
	}
}

func searxTestURL(base string) string {
	params := url.Values{"q": {"test"}, "format": {"json"}}
	return strings.TrimRight(base, "/") + "/search?" + params.Encode()
}

// ProbeSearx reports whether a test search succeeds within ProbeTimeout.
func (p *Prober) ProbeSearx(ctx context.Context, searxURL string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	return p.searx.DoJSON(ctx, http.MethodGet, searxTestURL(searxURL), p.headers(), nil, nil)
}

// ProbeAI reports whether the models endpoint answers within ProbeTimeout.
func (p *Prober) ProbeAI(ctx context.Context, aiURL string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	return p.ai.DoJSON(ctx, http.MethodGet, strings.TrimRight(aiURL, "/")+"/v1/models", nil, nil, nil)
}

// ListModels returns the models exposed by the completion backend.
func (p *Prober) ListModels(ctx context.Context, aiURL string) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, ListModelsTimeout)
	defer cancel()
	var body struct {
		Data []ModelInfo `json:"data"`
	}
	if err := p.ai.DoJSON(ctx, http.MethodGet, strings.TrimRight(aiURL, "/")+"/v1/models", nil, nil, &body); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]ModelInfo, 0, len(body.Data))
	for _, m := range body.Data {
		if m.Object == "" {
			m.Object = "model"
		}
		if m.OwnedBy == "" {
			m.OwnedBy = "unknown"
		}
		models = append(models, m)
	}
	return models, nil
}

// TestModel checks the models endpoint and, when model is set, asks it for a
// tiny completion. It returns a human-readable status line.
func (p *Prober) TestModel(ctx context.Context, aiURL, model string) (string, error) {
	base := strings.TrimRight(aiURL, "/")
	if err := p.ProbeAI(ctx, base); err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	if model == "" {
		return "Connection successful! Models endpoint is accessible.", nil
	}

	ctx, cancel := context.WithTimeout(ctx, ModelTestTimeout)
	defer cancel()
	payload := map[string]any{
		"model": model,
		"messages": []chatMessage{
			{Role: "user", Content: "Hello, this is a connection test. Please respond with 'OK'."},
		},
		"max_tokens":  10,
		"temperature": 0.1,
	}
	var resp chatResponse
	if err := p.ai.DoJSON(ctx, http.MethodPost, base+"/v1/chat/completions", nil, payload, &resp); err != nil {
		return "", fmt.Errorf("model test failed: %w", err)
	}
	reply := ""
	if len(resp.Choices) > 0 {
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	return fmt.Sprintf("Connection successful! Model responded: %q", reply), nil
}

// TestSearx runs a test search and lists the engines that answered.
func (p *Prober) TestSearx(ctx context.Context, searxURL string) (SearxTest, error) {
	ctx, cancel := context.WithTimeout(ctx, SearxTestTimeout)
	defer cancel()
	var body searxResponse
	if err := p.searx.DoJSON(ctx, http.MethodGet, searxTestURL(searxURL), p.headers(), nil, &body); err != nil {
		return SearxTest{}, fmt.Errorf("searx test: %w", err)
	}
	set := make(map[string]struct{})
	for _, r := range body.Results {
		if e := stringField(r, "engine"); e != "" {
			set[e] = struct{}{}
		}
	}
	engines := make([]string, 0, len(set))
	for e := range set {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	return SearxTest{ResultCount: len(body.Results), Engines: engines}, nil
}

func (p *Prober) headers() map[string]string {
	if p.userAgent == "" {
		return nil
	}
	return map[string]string{"User-Agent": p.userAgent}
}
