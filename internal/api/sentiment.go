package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/logging"
	"github.com/JakeFAU/competition-radar/internal/sentiment"
)

type sentimentRequest struct {
	Keywords []string `json:"keywords"`
}

func (s *Server) startSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	collection, err := s.sentiment.Start(r.Context(), req.Keywords)
	if err != nil {
		s.writeSentimentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, collection)
}

func (s *Server) sentimentReport(w http.ResponseWriter, r *http.Request) {
	snapshotID := chi.URLParam(r, "snapshot_id")
	report, err := s.sentiment.Summarize(r.Context(), snapshotID)
	if errors.Is(err, sentiment.ErrSnapshotNotReady) {
		writeJSON(w, http.StatusAccepted, map[string]string{"snapshot_id": snapshotID, "status": "running"})
		return
	}
	if err != nil {
		s.writeSentimentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeSentimentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analysis.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sentiment.ErrNoTitles):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, analysis.ErrProvider):
		logging.FromContext(r.Context(), s.logger).Warn("sentiment provider failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "sentiment provider failed")
	default:
		logging.FromContext(r.Context(), s.logger).Error("sentiment request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
