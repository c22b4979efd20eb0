package web_fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/ahalansari/deep-search/tools/web_fetch/chromedp"
	httpfetch "github.com/ahalansari/deep-search/tools/web_fetch/http"
	"github.com/ahalansari/deep-search/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 10 * time.Second
	MaxCharsDefault = 2000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

// NewWebFetcher returns the fetcher for fetcherType.
func NewWebFetcher(fetcherType FetcherType, userAgent string, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case HTTPFetcherType:
		return httpfetch.New(userAgent, timeout, maxChars), nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: userAgent}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type %q", fetcherType)
	}
}
