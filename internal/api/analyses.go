package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/auth"
	"github.com/JakeFAU/competition-radar/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type analysisRequest struct {
	Domain string `json:"domain"`
}

type analysisResponse struct {
	Error    string           `json:"error,omitempty"`
	Analysis *analysis.Record `json:"analysis,omitempty"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Detached from the request: a client disconnect must not strand a
	// processing record.
	ctx := context.WithoutCancel(r.Context())
	if s.analysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.analysisTimeout)
		defer cancel()
	}

	rec, err := s.analyzer.Run(ctx, auth.OwnerFromContext(r.Context()), req.Domain)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Info("analysis did not complete",
			zap.String("analysis_id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
		status, msg := analysisErrorStatus(err, rec)
		resp := analysisResponse{Error: msg}
		if rec.ID != "" {
			resp.Analysis = &rec
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Analysis: &rec})
}

func analysisErrorStatus(err error, rec analysis.Record) (int, string) {
	msg := rec.ErrorMessage
	if msg == "" {
		msg = err.Error()
	}
	switch {
	case errors.Is(err, analysis.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, analysis.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, analysis.ErrPersistence):
		return http.StatusInternalServerError, "failed to persist analysis"
	case errors.Is(err, analysis.ErrUnreachable), errors.Is(err, analysis.ErrUnsupportedSite):
		return http.StatusUnprocessableEntity, msg
	case errors.Is(err, analysis.ErrProvider):
		return http.StatusBadGateway, msg
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	records, err := s.records.ListByOwner(r.Context(), auth.OwnerFromContext(r.Context()), limit, offset)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("list analyses failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": records,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.records.Get(r.Context(), id)
	if errors.Is(err, analysis.ErrNotFound) || (err == nil && rec.OwnerID != auth.OwnerFromContext(r.Context())) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("get analysis failed", zap.String("analysis_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Analysis: &rec})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}
