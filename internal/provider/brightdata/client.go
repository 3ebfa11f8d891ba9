// Package brightdata implements sentiment.Source on the BrightData datasets API.
package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/competition-radar/internal/metrics"
	"github.com/JakeFAU/competition-radar/internal/sentiment"
)

const (
	// DefaultBaseURL is the public BrightData API endpoint.
	DefaultBaseURL          = "https://api.brightdata.com"
	// DefaultDatasetID is the Reddit posts discovery dataset.
	DefaultDatasetID        = "gd_lvz8ah06191smkebj4"
	// DefaultMaxSnapshotBytes caps a downloaded snapshot body.
	DefaultMaxSnapshotBytes = 16 << 20
	providerName            = "brightdata"
	maxErrorBody            = 4 << 10
)

// Config controls the BrightData client.
type Config struct {
	APIKey     string
	BaseURL    string
	DatasetID  string
	Date       string
	NumOfPosts int
	SortBy     string
	Timeout    time.Duration

	// MaxSnapshotBytes bounds the snapshot body; larger bodies are an error.
	MaxSnapshotBytes int64
}

// Client calls the BrightData trigger and snapshot endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

type triggerInput struct {
	Keyword    string `json:"keyword"`
	Date       string `json:"date"`
	NumOfPosts int    `json:"num_of_posts"`
	SortBy     string `json:"sort_by"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("brightdata api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DatasetID == "" {
		cfg.DatasetID = DefaultDatasetID
	}
	if cfg.Date == "" {
		cfg.Date = "Past year"
	}
	if cfg.NumOfPosts <= 0 {
		cfg.NumOfPosts = 30
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "Hot"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSnapshotBytes <= 0 {
		cfg.MaxSnapshotBytes = DefaultMaxSnapshotBytes
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Trigger starts a keyword discovery collection and returns its snapshot id.
func (c *Client) Trigger(ctx context.Context, keywords []string) (string, error) {
	start := time.Now()
	id, err := c.trigger(ctx, keywords)
	metrics.ObserveProviderCall(providerName, outcome(err), time.Since(start))
	return id, err
}

func (c *Client) trigger(ctx context.Context, keywords []string) (string, error) {
	inputs := make([]triggerInput, 0, len(keywords))
	for _, kw := range keywords {
		inputs = append(inputs, triggerInput{
			Keyword:    kw,
			Date:       c.cfg.Date,
			NumOfPosts: c.cfg.NumOfPosts,
			SortBy:     c.cfg.SortBy,
		})
	}
	body, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode trigger request: %w", err)
	}

	q := url.Values{}
	q.Set("dataset_id", c.cfg.DatasetID)
	q.Set("include_errors", "true")
	q.Set("type", "discover_new")
	q.Set("discover_by", "keyword")
	endpoint := c.cfg.BaseURL + "/datasets/v3/trigger?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("brightdata trigger: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("trigger", resp)
	}

	var tr triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if tr.SnapshotID == "" {
		return "", errors.New("brightdata trigger returned no snapshot_id")
	}
	return tr.SnapshotID, nil
}

// Snapshot downloads the posts of a finished collection. A collection that
// is still running yields sentiment.ErrSnapshotNotReady.
func (c *Client) Snapshot(ctx context.Context, snapshotID string) ([]sentiment.Post, error) {
	start := time.Now()
	posts, err := c.snapshot(ctx, snapshotID)
	metrics.ObserveProviderCall(providerName, outcome(err), time.Since(start))
	return posts, err
}

func (c *Client) snapshot(ctx context.Context, snapshotID string) ([]sentiment.Post, error) {
	endpoint := c.cfg.BaseURL + "/datasets/v3/snapshot/" + url.PathEscape(snapshotID) + "?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brightdata snapshot: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusAccepted {
		return nil, fmt.Errorf("brightdata snapshot %s: %w", snapshotID, sentiment.ErrSnapshotNotReady)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("snapshot", resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	if int64(len(raw)) > c.cfg.MaxSnapshotBytes {
		return nil, fmt.Errorf("brightdata snapshot %s exceeds %d bytes", snapshotID, c.cfg.MaxSnapshotBytes)
	}
	return decodePosts(raw)
}

// decodePosts accepts the JSON array BrightData returns for a finished
// snapshot, or a single post object.
func decodePosts(raw []byte) ([]sentiment.Post, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var post sentiment.Post
		if err := json.Unmarshal(trimmed, &post); err != nil {
			return nil, fmt.Errorf("decode snapshot object: %w", err)
		}
		return []sentiment.Post{post}, nil
	}
	var posts []sentiment.Post
	if err := json.Unmarshal(trimmed, &posts); err != nil {
		return nil, fmt.Errorf("decode snapshot array: %w", err)
	}
	return posts, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("brightdata %s status %d: %s", op, resp.StatusCode, detail)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, sentiment.ErrSnapshotNotReady):
		return "not_ready"
	default:
		return "error"
	}
}
