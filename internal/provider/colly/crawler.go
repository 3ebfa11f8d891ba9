// Package collycrawler implements analysis.Crawler with a local gocolly
// collector. It visits the landing page and follows same-host links whose
// path or anchor text matches the crawl instructions.
package collycrawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/metrics"
)

const providerName = "colly"

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxPages      int
	MaxDepth      int
	MaxPageBytes  int
}

// Crawler implements analysis.Crawler using the Colly collector.
type Crawler struct {
	cfg           Config
	baseCollector *colly.Collector
}

type crawlState struct {
	root     string
	maxPages int
	maxBytes int
	keywords []string
	pages    []analysis.CrawlPage
	rootErr  error
}

// New builds a Crawler.
func New(cfg Config) *Crawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 20000
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Crawler{cfg: cfg, baseCollector: c}
}

// Crawl visits url and the instruction-relevant pages it links to.
func (c *Crawler) Crawl(ctx context.Context, rawURL string, instructions string) (analysis.CrawlResult, error) {
	start := time.Now()
	result, err := c.crawl(ctx, rawURL, instructions)
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

func (c *Crawler) crawl(ctx context.Context, rawURL string, instructions string) (analysis.CrawlResult, error) {
	start := time.Now()
	target, err := url.Parse(rawURL)
	if err != nil || target.Hostname() == "" {
		return analysis.CrawlResult{}, fmt.Errorf("parse crawl url %q: %w", rawURL, err)
	}

	state := &crawlState{
		root:     target.String(),
		maxPages: c.cfg.MaxPages,
		maxBytes: c.cfg.MaxPageBytes,
		keywords: Keywords(instructions),
	}
	collector := c.buildCollector(ctx, target.Hostname())
	c.configureCollectorHooks(collector, state)

	if err := runCollector(ctx, collector, state.root); err != nil {
		if errors.Is(err, colly.ErrRobotsTxtBlocked) || errors.Is(err, colly.ErrForbiddenDomain) {
			return analysis.CrawlResult{}, fmt.Errorf("%w: %v", analysis.ErrUnsupportedSite, err)
		}
		return analysis.CrawlResult{}, err
	}
	if state.rootErr != nil {
		return analysis.CrawlResult{}, fmt.Errorf("colly response failed: %w", state.rootErr)
	}
	if len(state.pages) == 0 {
		return analysis.CrawlResult{}, fmt.Errorf("%w: landing page is not HTML", analysis.ErrUnsupportedSite)
	}
	return analysis.CrawlResult{
		BaseURL:      rawURL,
		Results:      state.pages,
		ResponseTime: time.Since(start).Seconds(),
	}, nil
}

func (c *Crawler) buildCollector(ctx context.Context, host string) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.AllowedDomains = []string{host}
	collector.MaxDepth = c.cfg.MaxDepth
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	return collector
}

func (c *Crawler) configureCollectorHooks(collector *colly.Collector, state *crawlState) {
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		if len(state.pages) >= state.maxPages {
			return
		}
		state.pages = append(state.pages, pageFromElement(e, state.maxBytes))
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(state.pages) >= state.maxPages {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || !matchesKeywords(link, e.Text, state.keywords) {
			return
		}
		// Visit errors cover revisits, depth and domain limits.
		_ = e.Request.Visit(link)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil && r.Request.Depth == 1 {
			state.rootErr = err
		}
	})
}

func pageFromElement(e *colly.HTMLElement, maxBytes int) analysis.CrawlPage {
	title := strings.TrimSpace(e.ChildText("title"))
	body := e.DOM.Find("body")
	body.Find("script, style, noscript, svg").Remove()
	text := analysis.TruncateContent(strings.Join(strings.Fields(body.Text()), " "), maxBytes)
	return analysis.CrawlPage{
		URL:        e.Request.URL.String(),
		Title:      title,
		RawContent: text,
	}
}

func runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly crawl canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
