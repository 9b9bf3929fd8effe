package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when Firecrawl is used without an API key
var ErrNotConfigured = errors.New("firecrawl not configured")

// Page is the content Firecrawl returned for one URL
type Page struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Data    Page   `json:"data"`
	Error   string `json:"error"`
}

// Firecrawl renders web pages into markdown and HTML
type Firecrawl struct {
	http   *resty.Client
	apiKey string
}

// NewFirecrawl returns a client for baseURL (https://api.firecrawl.dev)
func NewFirecrawl(baseURL, apiKey string, timeout time.Duration) *Firecrawl {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Firecrawl{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json"),
		apiKey: apiKey,
	}
}

// Scrape fetches url in markdown and HTML form
func (f *Firecrawl) Scrape(ctx context.Context, url string) (*Page, error) {
	if f.apiKey == "" {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	var out scrapeResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(scrapeRequest{URL: url, Formats: []string{"markdown", "html"}}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/scrape")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("firecrawl status %d: %s", resp.StatusCode(), out.Error)
	}
	if err == nil && !out.Success {
		err = fmt.Errorf("firecrawl scrape failed: %s", out.Error)
	}
	metrics.ObserveExternalCall("firecrawl", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", url, err)
	}
	return &out.Data, nil
}
