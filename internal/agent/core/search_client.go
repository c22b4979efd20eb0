package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahalansari/deep-search/config"
	"github.com/ahalansari/deep-search/internal/agent/telemetry"
	"github.com/ahalansari/deep-search/tools/web_fetch/models"
)

// thinSnippetRunes is the content length under which a result is considered
// worth enriching with the page's readable text.
const thinSnippetRunes = 200

// PageFetcher extracts readable text for a single URL.
type PageFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

// SearchClient performs single round-trips against a SearXNG instance.
type SearchClient struct {
	baseURL   string
	userAgent string
	http      *HTTPClient
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	fetcher  PageFetcher
	fetchTop int
}

// NewSearchClient builds a client from the search section of the config.
func NewSearchClient(cfg config.SearchConfig, cb config.BreakerConfig, logger *log.Logger, tele *telemetry.Telemetry) *SearchClient {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SearchClient{
		baseURL:   cfg.SearxURL,
		userAgent: cfg.UserAgent,
		http:      NewHTTPClient("searxng", cfg.Timeout, cb, logger),
		logger:    logger,
		telemetry: tele,
	}
}

// WithHTTPClient replaces the round-tripper and its breaker.
func (c *SearchClient) WithHTTPClient(h *HTTPClient) *SearchClient {
	c.http = h
	return c
}

// WithFetcher enables enrichment of the first topK results whose snippet is thin.
func (c *SearchClient) WithFetcher(f PageFetcher, topK int) *SearchClient {
	c.fetcher = f
	c.fetchTop = topK
	return c
}

type searxResponse struct {
	Results []map[string]any `json:"results"`
}

// Search returns at most limit results for query. Failures are reported in
// the outcome with an empty result set. A limit <= 0 keeps every result.
func (c *SearchClient) Search(ctx context.Context, query string, limit int) SearchOutcome {
	start := time.Now()
	out := c.search(ctx, query, limit)
	if out.Degraded() {
		c.logger.Printf("search %q failed: %v", query, out.Err)
	}
	c.telemetry.RecordSearch(out.Degraded(), len(out.Results), time.Since(start))
	return out
}

func (c *SearchClient) search(ctx context.Context, query string, limit int) SearchOutcome {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var body searxResponse
	headers := map[string]string{"User-Agent": c.userAgent, "Accept": "application/json"}
	if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, headers, nil, &body); err != nil {
		return SearchOutcome{Results: []SearchResult{}, Err: fmt.Errorf("searx search: %w", err)}
	}

	raw := body.Results
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, normalizeResult(r))
	}
	if c.fetcher != nil && c.fetchTop > 0 {
		c.enrich(ctx, results)
	}
	return SearchOutcome{Results: results}
}

// enrich replaces thin snippets with readable page text. Failures leave the
// result unchanged.
func (c *SearchClient) enrich(ctx context.Context, results []SearchResult) {
	n := c.fetchTop
	if n > len(results) {
		n = len(results)
	}
	for i := 0; i < n; i++ {
		r := &results[i]
		if r.URL == "" || utf8.RuneCountInString(r.Content) >= thinSnippetRunes {
			continue
		}
		page, err := c.fetcher.Exec(ctx, r.URL)
		if err != nil {
			c.logger.Printf("enrich %s: %v", r.URL, err)
			continue
		}
		if text := strings.TrimSpace(page.Text); text != "" {
			r.Content = text
		}
	}
}

func normalizeResult(m map[string]any) SearchResult {
	engine := stringField(m, "engine")
	if engine == "" {
		engine = "unknown"
	}
	return SearchResult{
		Title:   stringField(m, "title"),
		Content: stringField(m, "content"),
		URL:     stringField(m, "url"),
		Engine:  engine,
		Score:   numberField(m, "score"),
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
