// Package tavily implements analysis.Crawler on top of the Tavily crawl API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/metrics"
)

const (
	// DefaultBaseURL is the public Tavily API endpoint.
	DefaultBaseURL = "https://api.tavily.com"
	providerName   = "tavily"
	maxErrorBody   = 4 << 10
)

// Config controls the crawl request sent to Tavily.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxDepth     int
	Limit        int
	ExtractDepth string
	Timeout      time.Duration
}

// Client calls the Tavily crawl endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

type crawlRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions,omitempty"`
	MaxDepth     int    `json:"max_depth,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	ExtractDepth string `json:"extract_depth,omitempty"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// New builds a Client. A zero Timeout leaves the request bounded only by ctx.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tavily api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ExtractDepth == "" {
		cfg.ExtractDepth = "basic"
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Crawl asks Tavily to crawl url guided by instructions.
func (c *Client) Crawl(ctx context.Context, url string, instructions string) (analysis.CrawlResult, error) {
	start := time.Now()
	result, err := c.crawl(ctx, url, instructions)
	metrics.ObserveProviderCall(providerName, outcome(err), time.Since(start))
	return result, err
}

func (c *Client) crawl(ctx context.Context, url string, instructions string) (analysis.CrawlResult, error) {
	body, err := json.Marshal(crawlRequest{
		URL:          url,
		Instructions: instructions,
		MaxDepth:     c.cfg.MaxDepth,
		Limit:        c.cfg.Limit,
		ExtractDepth: c.cfg.ExtractDepth,
	})
	if err != nil {
		return analysis.CrawlResult{}, fmt.Errorf("encode tavily request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return analysis.CrawlResult{}, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return analysis.CrawlResult{}, fmt.Errorf("tavily request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return analysis.CrawlResult{}, statusError(resp)
	}

	var result analysis.CrawlResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return analysis.CrawlResult{}, fmt.Errorf("decode tavily response: %w", err)
	}
	return result, nil
}

// statusError maps a non-2xx Tavily response to an error. 403 and any 4xx
// whose detail reports an unsupported URL wrap analysis.ErrUnsupportedSite.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := errorDetail(raw)
	if resp.StatusCode == http.StatusForbidden ||
		(resp.StatusCode >= 400 && resp.StatusCode < 500 && strings.Contains(strings.ToLower(detail), "not supported")) {
		if detail == "" {
			detail = "URL is not supported"
		}
		return fmt.Errorf("%w: tavily status %d: %s", analysis.ErrUnsupportedSite, resp.StatusCode, detail)
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("tavily status %d: %s", resp.StatusCode, detail)
}

// errorDetail extracts a message from Tavily's {"detail": {"error": "..."}}
// or {"detail": "..."} error shapes, falling back to the raw body.
func errorDetail(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if body.Error != "" {
		return body.Error
	}
	if len(body.Detail) > 0 {
		var text string
		if err := json.Unmarshal(body.Detail, &text); err == nil {
			return text
		}
		var nested struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body.Detail, &nested); err == nil && nested.Error != "" {
			return nested.Error
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, analysis.ErrUnsupportedSite):
		return "unsupported"
	default:
		return "error"
	}
}
