package analysis

import (
	"context"
	"io"
	"time"
)

// RecordStore persists analysis records.
type RecordStore interface {
	Create(ctx context.Context, rec NewRecord) (Record, error)
	Update(ctx context.Context, id string, upd Update) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error)
	Ping(ctx context.Context) error
}

// Prober checks whether a URL answers a HEAD request.
// It returns the response status code, or an error for transport failures.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// Crawler fetches and extracts content from a website.
// Implementations wrap ErrUnsupportedSite when the provider cannot handle the site.
type Crawler interface {
	Crawl(ctx context.Context, url string, instructions string) (CrawlResult, error)
}

// Summarizer turns a prompt into generated text.
type Summarizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes terminal status events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
