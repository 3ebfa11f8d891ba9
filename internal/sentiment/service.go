// Package sentiment collects social posts for a set of keywords and asks the
// summarization provider for a customer sentiment digest of their titles.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

// MaxKeywords bounds a single collection request.
const MaxKeywords = 20

var (
	// ErrNoKeywords signals an empty or blank keyword list.
	ErrNoKeywords = errors.New("at least one keyword is required")
	// ErrTooManyKeywords signals a keyword list above MaxKeywords.
	ErrTooManyKeywords = fmt.Errorf("at most %d keywords are allowed", MaxKeywords)
	// ErrSnapshotNotReady signals that the collection is still running.
	ErrSnapshotNotReady = errors.New("snapshot not ready")
	// ErrNoTitles signals a finished snapshot with no post titles.
	ErrNoTitles = errors.New("no titles found in the collected data")
)

// Post is one collected social post.
type Post struct {
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Community   string `json:"community_name,omitempty"`
}

// Source triggers keyword collections and reads their snapshots.
type Source interface {
	Trigger(ctx context.Context, keywords []string) (string, error)
	Snapshot(ctx context.Context, snapshotID string) ([]Post, error)
}

// Collection is a triggered keyword collection.
type Collection struct {
	SnapshotID string   `json:"snapshot_id"`
	Keywords   []string `json:"keywords"`
}

// Report is the sentiment digest of a finished collection.
type Report struct {
	SnapshotID string   `json:"snapshot_id"`
	Titles     []string `json:"titles"`
	Sentiment  string   `json:"sentiment"`
}

// Service coordinates the dataset source and the summarizer.
type Service struct {
	source     Source
	summarizer analysis.Summarizer
	logger     *zap.Logger
}

// New constructs a Service.
func New(source Source, summarizer analysis.Summarizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, summarizer: summarizer, logger: logger}
}

// Start cleans keywords and triggers a collection for them.
func (s *Service) Start(ctx context.Context, keywords []string) (Collection, error) {
	cleaned, err := CleanKeywords(keywords)
	if err != nil {
		return Collection{}, err
	}
	snapshotID, err := s.source.Trigger(ctx, cleaned)
	if err != nil {
		return Collection{}, fmt.Errorf("%w: trigger collection: %w", analysis.ErrProvider, err)
	}
	s.logger.Info("sentiment collection triggered", zap.String("snapshot_id", snapshotID), zap.Strings("keywords", cleaned))
	return Collection{SnapshotID: snapshotID, Keywords: cleaned}, nil
}

// Summarize reads a finished snapshot and summarizes its post titles.
func (s *Service) Summarize(ctx context.Context, snapshotID string) (Report, error) {
	snapshotID = strings.TrimSpace(snapshotID)
	if snapshotID == "" {
		return Report{}, fmt.Errorf("%w: snapshot id is required", analysis.ErrValidation)
	}
	posts, err := s.source.Snapshot(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotReady) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("%w: read snapshot: %w", analysis.ErrProvider, err)
	}
	titles := Titles(posts)
	if len(titles) == 0 {
		return Report{}, ErrNoTitles
	}

	text, err := s.summarizer.Generate(ctx, BuildPrompt(titles))
	if err != nil {
		return Report{}, fmt.Errorf("%w: summarize sentiment: %w", analysis.ErrProvider, err)
	}
	s.logger.Debug("sentiment summarized", zap.String("snapshot_id", snapshotID), zap.Int("titles", len(titles)))
	return Report{SnapshotID: snapshotID, Titles: titles, Sentiment: strings.TrimSpace(text)}, nil
}

// CleanKeywords trims keywords, drops blanks and duplicates, and enforces
// the keyword bounds.
func CleanKeywords(keywords []string) ([]string, error) {
	seen := make(map[string]bool, len(keywords))
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, kw)
	}
	switch {
	case len(cleaned) == 0:
		return nil, fmt.Errorf("%w: %w", analysis.ErrValidation, ErrNoKeywords)
	case len(cleaned) > MaxKeywords:
		return nil, fmt.Errorf("%w: %w", analysis.ErrValidation, ErrTooManyKeywords)
	}
	return cleaned, nil
}

// Titles returns the non-blank post titles in snapshot order.
func Titles(posts []Post) []string {
	titles := make([]string, 0, len(posts))
	for _, p := range posts {
		if t := strings.TrimSpace(p.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// BuildPrompt asks for a bounded sentiment digest of titles.
func BuildPrompt(titles []string) string {
	return "Give me the sentiment on these phrases and sentences: whether customers like them or not, " +
		"and what the company is doing right or wrong. Limit it to 20 sentences.\n\n" +
		strings.Join(titles, "\n")
}
