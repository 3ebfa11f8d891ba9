package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/metrics"
)

// DefaultMaxCrawlResults bounds the number of crawl results sent to the summarizer.
const DefaultMaxCrawlResults = 10

// Config controls Orchestrator behavior.
type Config struct {
	MaxCrawlResults int
	Topic           string
	ArchivePrefix   string
}

// Orchestrator runs one analysis from validation to a terminal record.
type Orchestrator struct {
	store      RecordStore
	prober     Prober
	crawler    Crawler
	summarizer Summarizer
	blobStore  BlobStore
	publisher  Publisher
	clock      Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator. blobStore and publisher may be nil.
func New(
	store RecordStore,
	prober Prober,
	crawler Crawler,
	summarizer Summarizer,
	blobStore BlobStore,
	publisher Publisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxCrawlResults <= 0 {
		cfg.MaxCrawlResults = DefaultMaxCrawlResults
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "analyses"
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      store,
		prober:     prober,
		crawler:    crawler,
		summarizer: summarizer,
		blobStore:  blobStore,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the pipeline for rawDomain on behalf of ownerID.
//
// Errors raised before the record exists are returned with a zero Record.
// Later errors are written to the record as a terminal status and returned
// together with that record.
func (o *Orchestrator) Run(ctx context.Context, ownerID, rawDomain string) (Record, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Record{}, ErrUnauthenticated
	}
	domain, err := ValidateDomain(rawDomain)
	if err != nil {
		return Record{}, err
	}

	rec, err := o.store.Create(ctx, NewRecord{
		OwnerID:   ownerID,
		URL:       domain,
		Status:    StatusProcessing,
		CreatedAt: o.clock.Now(),
	})
	if err != nil {
		o.logger.Error("create analysis record failed", zap.String("owner_id", ownerID), zap.String("url", domain), zap.Error(err))
		return Record{}, fmt.Errorf("%w: create record: %w", ErrPersistence, err)
	}

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	logger := o.logger.With(
		zap.String("analysis_id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("url", domain),
		zap.String("site", metrics.SanitizeSite(domain)),
	)
	logger.Info("analysis started")

	logger.Debug("probing domain", zap.String("stage", "reachability"))
	code, err := o.prober.Probe(ctx, domain)
	if err != nil {
		return o.fail(ctx, logger, rec, StatusFailed, ErrUnreachable, fmt.Sprintf("failed to access domain: %v", err))
	}
	if code < 200 || code > 299 {
		return o.fail(ctx, logger, rec, StatusFailed, ErrUnreachable, fmt.Sprintf("domain returned non-success status code: %d", code))
	}

	logger.Debug("crawling domain", zap.String("stage", "crawl"))
	result, err := o.crawler.Crawl(ctx, domain, CrawlInstructions)
	if err != nil {
		if errors.Is(err, ErrUnsupportedSite) {
			return o.fail(ctx, logger, rec, StatusUnsupported, ErrUnsupportedSite, err.Error())
		}
		return o.fail(ctx, logger, rec, StatusFailed, ErrProvider, fmt.Sprintf("crawl failed: %v", err))
	}
	if len(result.Results) == 0 {
		return o.fail(ctx, logger, rec, StatusFailed, ErrProvider, "crawl returned no results")
	}

	capped := CapResults(result, o.cfg.MaxCrawlResults)
	if dropped := len(result.Results) - len(capped.Results); dropped > 0 {
		metrics.ObserveTruncation(dropped)
		logger.Debug("crawl results truncated", zap.Int("kept", len(capped.Results)), zap.Int("dropped", dropped))
	}
	o.archiveJSON(ctx, logger, rec.ID, "crawl.json", capped)

	prompt, err := BuildPrompt(capped)
	if err != nil {
		return o.fail(ctx, logger, rec, StatusFailed, ErrProvider, fmt.Sprintf("build prompt: %v", err))
	}

	logger.Debug("summarizing crawl", zap.String("stage", "summarize"), zap.Int("prompt_bytes", len(prompt)))
	text, err := o.summarizer.Generate(ctx, prompt)
	if err != nil {
		return o.fail(ctx, logger, rec, StatusFailed, ErrProvider, fmt.Sprintf("summarization failed: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return o.fail(ctx, logger, rec, StatusFailed, ErrProvider, "summarization returned no text")
	}
	o.archive(ctx, logger, rec.ID, "summary.txt", "text/plain; charset=utf-8", []byte(text))

	fields := ExtractSections(text, Labels())
	if missing := missingLabels(fields); len(missing) > 0 {
		logger.Warn("summary is missing sections", zap.Strings("labels", missing))
	}
	sections := SectionsFromMap(fields)

	now := o.clock.Now()
	updated, err := o.store.Update(ctx, rec.ID, Update{
		Status:      StatusCompleted,
		CompletedAt: &now,
		Sections:    &sections,
	})
	if err != nil {
		logger.Error("finalize analysis failed", zap.String("stage", "finalize"), zap.Error(err))
		return rec, fmt.Errorf("%w: finalize record: %w", ErrPersistence, err)
	}
	metrics.ObserveAnalysis(string(StatusCompleted))
	logger.Info("analysis completed")
	o.publish(ctx, logger, updated)
	return updated, nil
}

// fail moves rec to a terminal status and returns the error the caller sees.
func (o *Orchestrator) fail(
	ctx context.Context,
	logger *zap.Logger,
	rec Record,
	status Status,
	kind error,
	message string,
) (Record, error) {
	cause := fmt.Errorf("%w: %s", kind, message)
	logger.Warn("analysis ended", zap.String("status", string(status)), zap.String("reason", message))

	updated, err := o.store.Update(ctx, rec.ID, Update{Status: status, ErrorMessage: message})
	if err != nil {
		logger.Error("terminal status update failed", zap.String("status", string(status)), zap.Error(err))
		return rec, errors.Join(fmt.Errorf("%w: mark %s: %w", ErrPersistence, status, err), cause)
	}
	metrics.ObserveAnalysis(string(status))
	o.publish(ctx, logger, updated)
	return updated, cause
}

func (o *Orchestrator) archiveJSON(ctx context.Context, logger *zap.Logger, id, name string, payload any) {
	if o.blobStore == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("encode archive payload failed", zap.String("object", name), zap.Error(err))
		return
	}
	o.archive(ctx, logger, id, name, "application/json", data)
}

func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, id, name, contentType string, data []byte) {
	if o.blobStore == nil {
		return
	}
	objectPath := path.Join(o.cfg.ArchivePrefix, id, name)
	uri, err := o.blobStore.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		logger.Warn("archive artifact failed", zap.String("object", objectPath), zap.Error(err))
		return
	}
	logger.Debug("archived artifact", zap.String("uri", uri))
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, rec Record) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	event := Event{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		URL:         rec.URL,
		Status:      rec.Status,
		CompletedAt: rec.CompletedAt,
		Error:       rec.ErrorMessage,
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
		logger.Warn("publish analysis event failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
	}
}

func missingLabels(fields map[string]string) []string {
	var missing []string
	for _, label := range Labels() {
		if fields[label] == "" {
			missing = append(missing, label)
		}
	}
	return missing
}
