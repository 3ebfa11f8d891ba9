// Package breaker wraps providers in circuit breakers so a failing upstream
// fails fast instead of holding every request for its full timeout.
// Calls are never retried.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

// Config controls breaker thresholds.
type Config struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenMaxCalls    uint32
}

func (c Config) normalize() Config {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

func settings(name string, cfg Config, logger *zap.Logger) gobreaker.Settings {
	cfg = cfg.normalize()
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// isSuccessful keeps caller-side outcomes out of the failure count.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, analysis.ErrUnsupportedSite) ||
		errors.Is(err, context.Canceled)
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func wrapOpen(name string, err error) error {
	if IsOpen(err) {
		return fmt.Errorf("%w: %s circuit open: %w", analysis.ErrProvider, name, err)
	}
	return err
}

// Crawler guards an analysis.Crawler.
type Crawler struct {
	next analysis.Crawler
	cb   *gobreaker.CircuitBreaker[analysis.CrawlResult]
}

// NewCrawler wraps next in a breaker named name.
func NewCrawler(name string, next analysis.Crawler, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[analysis.CrawlResult](settings(name, cfg, logger)),
	}
}

// Crawl delegates to the wrapped crawler unless the breaker is open.
func (c *Crawler) Crawl(ctx context.Context, url string, instructions string) (analysis.CrawlResult, error) {
	result, err := c.cb.Execute(func() (analysis.CrawlResult, error) {
		return c.next.Crawl(ctx, url, instructions)
	})
	return result, wrapOpen(c.cb.Name(), err)
}

// State returns the current breaker state.
func (c *Crawler) State() gobreaker.State {
	return c.cb.State()
}

// Summarizer guards an analysis.Summarizer.
type Summarizer struct {
	next analysis.Summarizer
	cb   *gobreaker.CircuitBreaker[string]
}

// NewSummarizer wraps next in a breaker named name.
func NewSummarizer(name string, next analysis.Summarizer, cfg Config, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[string](settings(name, cfg, logger)),
	}
}

// Generate delegates to the wrapped summarizer unless the breaker is open.
func (s *Summarizer) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := s.cb.Execute(func() (string, error) {
		return s.next.Generate(ctx, prompt)
	})
	return text, wrapOpen(s.cb.Name(), err)
}

// State returns the current breaker state.
func (s *Summarizer) State() gobreaker.State {
	return s.cb.State()
}
