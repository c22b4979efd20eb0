// Package http fetches pages over plain HTTP and extracts their readable text.
package http

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahalansari/deep-search/tools/web_fetch/models"
	"github.com/go-shiori/go-readability"
)

const maxBodyBytes = 2 << 20

type Fetch struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

func New(userAgent string, timeout time.Duration, maxChars int) *Fetch {
	return &Fetch{client: &http.Client{Timeout: timeout}, userAgent: userAgent, maxChars: maxChars}
}

func (f *Fetch) Exec(ctx context.Context, link string) (models.Result, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return models.Result{}, errors.New("invalid url")
	}
	pageURL, err := url.Parse(link)
	if err != nil {
		return models.Result{}, fmt.Errorf("parse url: %w", err)
	}
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return models.Result{}, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return models.Result{URL: link, Status: 599}, err
	}
	defer resp.Body.Close()
	elapsed := func() int { return int(time.Since(t0) / time.Millisecond) }
	if resp.StatusCode != http.StatusOK {
		return models.Result{URL: link, Status: resp.StatusCode, RenderMS: elapsed()}, fmt.Errorf("fetch http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Result{URL: link, Status: resp.StatusCode, RenderMS: elapsed()}, err
	}
	article, err := readability.FromReader(strings.NewReader(string(raw)), pageURL)
	if err != nil {
		return models.Result{URL: link, Status: resp.StatusCode, RenderMS: elapsed()}, fmt.Errorf("readability: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if f.maxChars > 0 && utf8.RuneCountInString(text) > f.maxChars {
		text = string([]rune(text)[:f.maxChars])
	}
	sum := sha1.Sum(raw)
	return models.Result{
		URL:      link,
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Text:     text,
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   resp.StatusCode,
		RenderMS: elapsed(),
	}, nil
}
