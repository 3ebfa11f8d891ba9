package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/auth"
	"github.com/JakeFAU/competition-radar/internal/logging"
	"github.com/JakeFAU/competition-radar/internal/metrics"
	"github.com/JakeFAU/competition-radar/internal/ratelimit"
	"github.com/JakeFAU/competition-radar/internal/sentiment"
)

// Analyzer runs the analysis pipeline for one domain.
type Analyzer interface {
	Run(ctx context.Context, ownerID, rawDomain string) (analysis.Record, error)
}

// RecordReader serves the read endpoints and readiness checks.
type RecordReader interface {
	Get(ctx context.Context, id string) (analysis.Record, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]analysis.Record, error)
	Ping(ctx context.Context) error
}

// SentimentService triggers and summarizes keyword collections.
type SentimentService interface {
	Start(ctx context.Context, keywords []string) (sentiment.Collection, error)
	Summarize(ctx context.Context, snapshotID string) (sentiment.Report, error)
}

// Deps are the collaborators handed to NewServer. Sentiment and Limiter are optional.
type Deps struct {
	Analyzer      Analyzer
	Records       RecordReader
	Sentiment     SentimentService
	Authenticator auth.Authenticator
	Limiter       *ratelimit.Limiter
	Logger        *zap.Logger
	// AnalysisTimeout bounds a pipeline run detached from the request.
	AnalysisTimeout time.Duration
}

// Server wires HTTP handlers to the analysis pipeline and record store.
type Server struct {
	router          chi.Router
	analyzer        Analyzer
	records         RecordReader
	sentiment       SentimentService
	limiter         *ratelimit.Limiter
	logger          *zap.Logger
	analysisTimeout time.Duration
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analyzer:        deps.Analyzer,
		records:         deps.Records,
		sentiment:       deps.Sentiment,
		limiter:         deps.Limiter,
		logger:          logger.Named("api"),
		analysisTimeout: deps.AnalysisTimeout,
	}

	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Authenticator))
		r.Route("/analyses", func(r chi.Router) {
			r.With(s.rateLimit).Post("/", s.submitAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{id}", s.getAnalysis)
		})
		if s.sentiment != nil {
			r.Route("/sentiment", func(r chi.Router) {
				r.With(s.rateLimit).Post("/", s.startSentiment)
				r.Get("/{snapshot_id}", s.sentimentReport)
			})
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.records.Ping(ctx); err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(auth.OwnerFromContext(r.Context())) {
			metrics.ObserveRateLimitRejection(r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
