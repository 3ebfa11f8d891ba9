// Package memory keeps analysis records and archived artifacts in process
// memory for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

// AnalysisStore is an in-memory analysis.RecordStore.
type AnalysisStore struct {
	mu      sync.RWMutex
	records map[string]analysis.Record
}

// NewAnalysisStore constructs an empty AnalysisStore.
func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{records: make(map[string]analysis.Record)}
}

// Create stores a new record under a fresh UUIDv7.
func (s *AnalysisStore) Create(_ context.Context, rec analysis.NewRecord) (analysis.Record, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return analysis.Record{}, fmt.Errorf("generate id: %w", err)
	}
	out := analysis.Record{
		ID:        id.String(),
		OwnerID:   rec.OwnerID,
		URL:       rec.URL,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[out.ID] = out
	return out, nil
}

// Update mutates a non-terminal record.
func (s *AnalysisStore) Update(_ context.Context, id string, upd analysis.Update) (analysis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return analysis.Record{}, fmt.Errorf("update analysis %s: %w", id, analysis.ErrNotFound)
	}
	if rec.Status.Terminal() {
		return analysis.Record{}, fmt.Errorf("update analysis %s: %w", id, analysis.ErrTerminal)
	}
	rec.Status = upd.Status
	rec.ErrorMessage = upd.ErrorMessage
	if upd.CompletedAt != nil {
		completed := *upd.CompletedAt
		rec.CompletedAt = &completed
	}
	if upd.Sections != nil {
		rec.Sections = *upd.Sections
	}
	s.records[id] = rec
	return copyRecord(rec), nil
}

// Get returns a copy of the stored record.
func (s *AnalysisStore) Get(_ context.Context, id string) (analysis.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return analysis.Record{}, fmt.Errorf("get analysis %s: %w", id, analysis.ErrNotFound)
	}
	return copyRecord(rec), nil
}

// ListByOwner returns the owner's records ordered newest first.
func (s *AnalysisStore) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]analysis.Record, error) {
	s.mu.RLock()
	owned := make([]analysis.Record, 0)
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			owned = append(owned, copyRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(owned) {
		return []analysis.Record{}, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, nil
}

// Ping always succeeds.
func (s *AnalysisStore) Ping(context.Context) error { return nil }

func copyRecord(rec analysis.Record) analysis.Record {
	if rec.CompletedAt != nil {
		completed := *rec.CompletedAt
		rec.CompletedAt = &completed
	}
	return rec
}
