// Package headless implements analysis.Crawler by rendering the landing page
// in headless Chrome. It serves JavaScript-heavy sites the HTTP crawlers
// cannot read.
package headless

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/metrics"
)

const providerName = "headless"

// Config controls the behavior of the headless crawler.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	MaxPageBytes      int
}

// Crawler implements analysis.Crawler using chromedp and headless Chrome.
type Crawler struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless crawler backed by chromedp.
func New(cfg Config) (*Crawler, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 20000
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Crawler{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (c *Crawler) Close() {
	c.allocCancel()
}

// Crawl renders url and returns its title and visible text as a single page.
// The instructions are not used; only the landing page is rendered.
func (c *Crawler) Crawl(ctx context.Context, url string, _ string) (analysis.CrawlResult, error) {
	start := time.Now()
	result, err := c.crawl(ctx, url)
	outcome := "success"
	switch {
	case errors.Is(err, analysis.ErrUnsupportedSite):
		outcome = "unsupported"
	case err != nil:
		outcome = "error"
	}
	metrics.ObserveProviderCall(providerName, outcome, time.Since(start))
	return result, err
}

func (c *Crawler) crawl(ctx context.Context, url string) (analysis.CrawlResult, error) {
	if err := c.acquire(ctx); err != nil {
		return analysis.CrawlResult{}, err
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	// Stop the render when the caller gives up.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	page, err := c.render(taskCtx, url)
	if err != nil {
		return analysis.CrawlResult{}, err
	}
	if err := meta.check(); err != nil {
		return analysis.CrawlResult{}, err
	}
	if _, _, finalURL := meta.snapshot(); finalURL != "" {
		page.URL = finalURL
	}
	page.RawContent = analysis.TruncateContent(page.RawContent, c.cfg.MaxPageBytes)
	return analysis.CrawlResult{
		BaseURL:      url,
		Results:      []analysis.CrawlPage{page},
		ResponseTime: time.Since(start).Seconds(),
	}, nil
}

func (c *Crawler) render(ctx context.Context, url string) (analysis.CrawlPage, error) {
	var (
		title    string
		text     string
		finalURL string
	)
	actions := []chromedp.Action{
		c.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return analysis.CrawlPage{}, fmt.Errorf("chromedp run: %w", err)
	}
	if finalURL == "" {
		finalURL = url
	}
	return analysis.CrawlPage{
		URL:        finalURL,
		Title:      strings.TrimSpace(title),
		RawContent: strings.Join(strings.Fields(text), " "),
	}, nil
}

func (c *Crawler) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Crawler) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (c *Crawler) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

// responseMeta records the main document response seen by the browser.
type responseMeta struct {
	mu       sync.RWMutex
	status   int
	mimeType string
	url      string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keep the first document response; frames load documents too.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.mimeType = event.Response.MimeType
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.mimeType, m.url
}

// check classifies the captured document response.
func (m *responseMeta) check() error {
	status, mimeType, _ := m.snapshot()
	if status >= http.StatusBadRequest {
		return fmt.Errorf("headless render: status %d", status)
	}
	if mimeType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return fmt.Errorf("%w: document is %s, not HTML", analysis.ErrUnsupportedSite, mediaType)
	}
	return nil
}
