// Package server builds the application's dependencies from configuration
// and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/api"
	"github.com/JakeFAU/competition-radar/internal/auth"
	"github.com/JakeFAU/competition-radar/internal/breaker"
	"github.com/JakeFAU/competition-radar/internal/config"
	"github.com/JakeFAU/competition-radar/internal/metrics"
	"github.com/JakeFAU/competition-radar/internal/provider/brightdata"
	collycrawler "github.com/JakeFAU/competition-radar/internal/provider/colly"
	"github.com/JakeFAU/competition-radar/internal/provider/gemini"
	"github.com/JakeFAU/competition-radar/internal/provider/headless"
	"github.com/JakeFAU/competition-radar/internal/provider/tavily"
	memorypublisher "github.com/JakeFAU/competition-radar/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/competition-radar/internal/publisher/pubsub"
	"github.com/JakeFAU/competition-radar/internal/ratelimit"
	"github.com/JakeFAU/competition-radar/internal/reachability"
	"github.com/JakeFAU/competition-radar/internal/sentiment"
	gcsstorage "github.com/JakeFAU/competition-radar/internal/storage/gcs"
	localstorage "github.com/JakeFAU/competition-radar/internal/storage/local"
	memorystorage "github.com/JakeFAU/competition-radar/internal/storage/memory"
	pgstore "github.com/JakeFAU/competition-radar/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store        analysis.RecordStore
	orchestrator *analysis.Orchestrator
	apiServer    *api.Server

	// Analyses and sentiment reports trip separate breakers.
	summarizer          analysis.Summarizer
	sentimentSummarizer analysis.Summarizer

	pgStore         *pgstore.AnalysisStore
	headless        *headless.Crawler
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storageClient   *storage.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("crawler", cfg.Crawler.Provider),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("pubsub", cfg.PubSub.Backend),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	blobStore, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	crawler, err := app.setupCrawler()
	if err != nil {
		return nil, err
	}
	gen, err := app.setupSummarizer()
	if err != nil {
		return nil, err
	}
	app.summarizer = app.guardSummarizer("gemini", gen)
	authenticator, err := app.setupAuth(ctx)
	if err != nil {
		return nil, err
	}
	sentimentSvc, err := app.setupSentiment(gen)
	if err != nil {
		return nil, err
	}

	prober := reachability.New(reachability.Config{
		Timeout:   cfg.Reachability.Timeout,
		UserAgent: cfg.Reachability.UserAgent,
	})
	app.orchestrator = analysis.New(
		app.store,
		prober,
		crawler,
		app.summarizer,
		blobStore,
		publisher,
		analysis.SystemClock{},
		analysis.Config{
			MaxCrawlResults: cfg.Analysis.MaxCrawlResults,
			Topic:           cfg.PubSub.TopicName,
			ArchivePrefix:   cfg.Storage.Prefix,
		},
		logger.Named("analysis"),
	)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	deps := api.Deps{
		Analyzer:        app.orchestrator,
		Records:         app.store,
		Authenticator:   authenticator,
		Limiter:         limiter,
		Logger:          logger,
		AnalysisTimeout: cfg.Analysis.Timeout,
	}
	if sentimentSvc != nil {
		deps.Sentiment = sentimentSvc
	}
	app.apiServer = api.NewServer(deps)

	ok = true
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case "postgres":
		store, err := pgstore.NewAnalysisStore(ctx, pgstore.Config{
			DSN:             a.cfg.Database.DSN,
			Table:           a.cfg.Database.Table,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("analysis store init failed: %w", err)
		}
		a.pgStore = store
		a.store = store
		a.logger.Info("postgres analysis store initialized", zap.String("table", a.cfg.Database.Table))
	default:
		a.logger.Warn("using in-memory analysis store; records are lost on restart")
		a.store = memorystorage.NewAnalysisStore()
	}
	return nil
}

func (a *App) setupBlobStore(ctx context.Context) (analysis.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving artifacts to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving artifacts locally", zap.String("path", a.cfg.Storage.LocalDir))
		return blobStore, nil
	case "memory":
		a.logger.Info("archiving artifacts in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("artifact archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (analysis.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "gcp":
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher, err = gcppublisher.New(client)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return a.pubsubPublisher, nil
	case "memory":
		a.logger.Info("using in-memory event publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("terminal status events disabled")
		return nil, nil
	}
}

func (a *App) setupCrawler() (analysis.Crawler, error) {
	var crawler analysis.Crawler
	switch a.cfg.Crawler.Provider {
	case "colly":
		crawler = collycrawler.New(collycrawler.Config{
			UserAgent:     a.cfg.Crawler.UserAgent,
			RespectRobots: a.cfg.Crawler.RespectRobots,
			Timeout:       a.cfg.Crawler.Timeout,
			MaxPages:      a.cfg.Crawler.MaxPages,
			MaxDepth:      a.cfg.Crawler.MaxDepth,
			MaxPageBytes:  a.cfg.Crawler.MaxPageBytes,
		})
	case "headless":
		h, err := headless.New(headless.Config{
			MaxParallel:       a.cfg.Crawler.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.Crawler.Headless.NavigationTimeout,
			SettleDelay:       a.cfg.Crawler.Headless.SettleDelay,
			MaxPageBytes:      a.cfg.Crawler.MaxPageBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("headless crawler init failed: %w", err)
		}
		a.headless = h
		crawler = h
	default:
		t, err := tavily.New(tavily.Config{
			APIKey:       a.cfg.Tavily.APIKey,
			BaseURL:      a.cfg.Tavily.BaseURL,
			MaxDepth:     a.cfg.Tavily.MaxDepth,
			Limit:        a.cfg.Tavily.Limit,
			ExtractDepth: a.cfg.Tavily.ExtractDepth,
			Timeout:      a.cfg.Tavily.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("tavily client init failed: %w", err)
		}
		crawler = t
	}
	a.logger.Info("crawler initialized", zap.String("provider", a.cfg.Crawler.Provider))
	if a.cfg.Breaker.Enabled {
		return breaker.NewCrawler(a.cfg.Crawler.Provider, crawler, a.breakerConfig(), a.logger), nil
	}
	return crawler, nil
}

func (a *App) setupSummarizer() (*gemini.Client, error) {
	client, err := gemini.New(gemini.Config{
		APIKey:      a.cfg.Gemini.APIKey,
		BaseURL:     a.cfg.Gemini.BaseURL,
		Model:       a.cfg.Gemini.Model,
		MaxTokens:   a.cfg.Gemini.MaxTokens,
		Temperature: a.cfg.Gemini.Temperature,
		Timeout:     a.cfg.Gemini.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	a.logger.Info("summarizer initialized", zap.String("model", client.Model))
	return client, nil
}

func (a *App) guardSummarizer(name string, next analysis.Summarizer) analysis.Summarizer {
	if !a.cfg.Breaker.Enabled {
		return next
	}
	return breaker.NewSummarizer(name, next, a.breakerConfig(), a.logger)
}

func (a *App) breakerConfig() breaker.Config {
	return breaker.Config{
		ConsecutiveFailures: a.cfg.Breaker.ConsecutiveFailures,
		OpenTimeout:         a.cfg.Breaker.OpenTimeout,
		HalfOpenMaxCalls:    a.cfg.Breaker.HalfOpenMaxCalls,
	}
}

func (a *App) setupAuth(ctx context.Context) (auth.Authenticator, error) {
	if a.cfg.Auth.Mode == "header" {
		a.logger.Warn("header authentication enabled; use only for local development",
			zap.String("header", a.cfg.Auth.Header))
		return auth.Header{Name: a.cfg.Auth.Header, RequireUUID: a.ownerMustBeUUID()}, nil
	}
	verifier, err := auth.NewSupabase(ctx, auth.SupabaseConfig{
		URL:             a.cfg.Auth.SupabaseURL,
		JWTSecret:       a.cfg.Auth.JWTSecret,
		Audience:        a.cfg.Auth.Audience,
		Leeway:          a.cfg.Auth.Leeway,
		RefreshInterval: a.cfg.Auth.JWKSRefreshPeriod,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("supabase auth init failed: %w", err)
	}
	return verifier, nil
}

func (a *App) setupSentiment(gen analysis.Summarizer) (*sentiment.Service, error) {
	if !a.cfg.BrightData.Enabled {
		return nil, nil
	}
	client, err := brightdata.New(brightdata.Config{
		APIKey:     a.cfg.BrightData.APIKey,
		BaseURL:    a.cfg.BrightData.BaseURL,
		DatasetID:  a.cfg.BrightData.DatasetID,
		Date:       a.cfg.BrightData.Date,
		NumOfPosts: a.cfg.BrightData.NumOfPosts,
		SortBy:     a.cfg.BrightData.SortBy,
		Timeout:    a.cfg.BrightData.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("brightdata client init failed: %w", err)
	}
	a.logger.Info("sentiment collections enabled", zap.String("dataset", a.cfg.BrightData.DatasetID))
	a.sentimentSummarizer = a.guardSummarizer("gemini-sentiment", gen)
	return sentiment.New(client, a.sentimentSummarizer, a.logger.Named("sentiment")), nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Analyze runs one pipeline outside of the HTTP server.
func (a *App) Analyze(ctx context.Context, ownerID, domain string) (analysis.Record, error) {
	if a.cfg.Analysis.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Analysis.Timeout)
		defer cancel()
	}
	if a.ownerMustBeUUID() && ownerID != "" {
		if _, err := uuid.Parse(ownerID); err != nil {
			return analysis.Record{}, fmt.Errorf("%w: owner id %q is not a uuid", analysis.ErrValidation, ownerID)
		}
	}
	return a.orchestrator.Run(ctx, ownerID, domain)
}

// ownerMustBeUUID reports whether the record store keys owners by uuid.
func (a *App) ownerMustBeUUID() bool {
	return a.cfg.Database.Driver == "postgres"
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("serve http: %w", serveErr)
	}
	return nil
}

// Close releases infrastructure clients.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}
