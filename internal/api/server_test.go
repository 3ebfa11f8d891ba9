package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/auth"
	"github.com/JakeFAU/competition-radar/internal/ratelimit"
	"github.com/JakeFAU/competition-radar/internal/sentiment"
)

const ownerHeader = "X-Owner-ID"

type fakeAnalyzer struct {
	mu     sync.Mutex
	rec    analysis.Record
	err    error
	owners []string
	inputs []string
	ctxErr error
}

func (f *fakeAnalyzer) Run(ctx context.Context, ownerID, rawDomain string) (analysis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, ownerID)
	f.inputs = append(f.inputs, rawDomain)
	f.ctxErr = ctx.Err()
	return f.rec, f.err
}

type fakeRecords struct {
	records map[string]analysis.Record
	listErr error
	pingErr error
	limit   int
	offset  int
}

func (f *fakeRecords) Get(_ context.Context, id string) (analysis.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return analysis.Record{}, fmt.Errorf("get %s: %w", id, analysis.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeRecords) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]analysis.Record, error) {
	f.limit, f.offset = limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []analysis.Record{}
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecords) Ping(context.Context) error { return f.pingErr }

type fakeSentiment struct {
	collection sentiment.Collection
	report     sentiment.Report
	startErr   error
	reportErr  error
}

func (f *fakeSentiment) Start(_ context.Context, keywords []string) (sentiment.Collection, error) {
	if f.startErr != nil {
		return sentiment.Collection{}, f.startErr
	}
	c := f.collection
	c.Keywords = keywords
	return c, nil
}

func (f *fakeSentiment) Summarize(context.Context, string) (sentiment.Report, error) {
	return f.report, f.reportErr
}

type testEnv struct {
	analyzer  *fakeAnalyzer
	records   *fakeRecords
	sentiment *fakeSentiment
	limiter   *ratelimit.Limiter
}

func newTestEnv() *testEnv {
	return &testEnv{
		analyzer:  &fakeAnalyzer{},
		records:   &fakeRecords{records: map[string]analysis.Record{}},
		sentiment: &fakeSentiment{},
	}
}

func (e *testEnv) server() *Server {
	var svc SentimentService
	if e.sentiment != nil {
		svc = e.sentiment
	}
	return NewServer(Deps{
		Analyzer:        e.analyzer,
		Records:         e.records,
		Sentiment:       svc,
		Authenticator:   auth.Header{Name: ownerHeader},
		Limiter:         e.limiter,
		Logger:          zap.NewNop(),
		AnalysisTimeout: time.Minute,
	})
}

func (e *testEnv) do(method, path, owner string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	rec := httptest.NewRecorder()
	e.server().Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func completedRecord() analysis.Record {
	done := time.Date(2025, 3, 14, 9, 31, 0, 0, time.UTC)
	return analysis.Record{
		ID:          "rec-1",
		OwnerID:     "owner-1",
		URL:         "https://example.com",
		Status:      analysis.StatusCompleted,
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
		Sections:    analysis.Sections{Summary: "Widgets."},
	}
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", "").Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "", "").Code)

	env.records.pingErr = errors.New("connection refused")
	require.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/readyz", "", "").Code)

	metricsRec := env.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, metricsRec.Code)
}

func TestSubmitAnalysisRequiresPrincipal(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/analyses", "", `{"domain":"https://example.com"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, env.analyzer.inputs)
}

func TestSubmitAnalysisCompleted(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	env.analyzer.rec = completedRecord()

	rec := env.do(http.MethodPost, "/v1/analyses", "owner-1", `{"domain":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, []string{"owner-1"}, env.analyzer.owners)
	require.Equal(t, []string{"https://example.com"}, env.analyzer.inputs)
	require.NoError(t, env.analyzer.ctxErr)

	body := decodeBody(t, rec)
	record := body["analysis"].(map[string]any)
	require.Equal(t, "completed", record["status"])
	require.Equal(t, "Widgets.", record["summary"])
	require.NotContains(t, body, "error")
}

func TestSubmitAnalysisInvalidJSON(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/analyses", "owner-1", "{invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.analyzer.inputs)
}

func TestSubmitAnalysisErrorMapping(t *testing.T) {
	t.Parallel()

	failed := analysis.Record{ID: "rec-9", OwnerID: "owner-1", Status: analysis.StatusFailed}
	testCases := []struct {
		name       string
		rec        analysis.Record
		err        error
		wantStatus int
		wantRecord bool
		wantError  string
	}{
		{
			name:       "validation",
			err:        fmt.Errorf("%w: missing scheme", analysis.ErrValidation),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unreachable",
			rec: func() analysis.Record {
				r := failed
				r.ErrorMessage = "domain returned non-success status code: 503"
				return r
			}(),
			err:        analysis.ErrUnreachable,
			wantStatus: http.StatusUnprocessableEntity,
			wantRecord: true,
			wantError:  "domain returned non-success status code: 503",
		},
		{
			name: "unsupported",
			rec: func() analysis.Record {
				r := failed
				r.Status = analysis.StatusUnsupported
				r.ErrorMessage = "URL is not supported"
				return r
			}(),
			err:        fmt.Errorf("%w: URL is not supported", analysis.ErrUnsupportedSite),
			wantStatus: http.StatusUnprocessableEntity,
			wantRecord: true,
			wantError:  "URL is not supported",
		},
		{
			name:       "provider",
			rec:        failed,
			err:        fmt.Errorf("%w: crawl failed", analysis.ErrProvider),
			wantStatus: http.StatusBadGateway,
			wantRecord: true,
		},
		{
			name:       "persistence before record",
			err:        fmt.Errorf("%w: create record", analysis.ErrPersistence),
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to persist analysis",
		},
		{
			name: "persistence with record",
			rec:  analysis.Record{ID: "rec-3", Status: analysis.StatusProcessing},
			err: errors.Join(
				fmt.Errorf("%w: mark failed", analysis.ErrPersistence),
				analysis.ErrUnreachable,
			),
			wantStatus: http.StatusInternalServerError,
			wantRecord: true,
			wantError:  "failed to persist analysis",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv()
			env.analyzer.rec = tc.rec
			env.analyzer.err = tc.err

			rec := env.do(http.MethodPost, "/v1/analyses", "owner-1", `{"domain":"https://example.com"}`)
			require.Equal(t, tc.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			require.NotEmpty(t, body["error"])
			if tc.wantError != "" {
				require.Equal(t, tc.wantError, body["error"])
			}
			if tc.wantRecord {
				require.Contains(t, body, "analysis")
			} else {
				require.NotContains(t, body, "analysis")
			}
		})
	}
}

func TestSubmitAnalysisRateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	env.limiter = ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})
	env.analyzer.rec = completedRecord()
	srv := env.server()

	send := func(owner string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyses", bytes.NewBufferString(`{"domain":"https://example.com"}`))
		req.Header.Set(ownerHeader, owner)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("owner-1"))
	require.Equal(t, http.StatusTooManyRequests, send("owner-1"))
	require.Equal(t, http.StatusOK, send("owner-2"))
	require.Len(t, env.analyzer.inputs, 2)
}

func TestListAnalyses(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	env.records.records["rec-1"] = completedRecord()
	env.records.records["rec-2"] = analysis.Record{ID: "rec-2", OwnerID: "someone-else"}

	rec := env.do(http.MethodGet, "/v1/analyses?limit=500&offset=5", "owner-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxListLimit, env.records.limit)
	require.Equal(t, 5, env.records.offset)

	body := decodeBody(t, rec)
	list := body["analyses"].([]any)
	require.Len(t, list, 1)
	require.Equal(t, "rec-1", list[0].(map[string]any)["id"])

	rec = env.do(http.MethodGet, "/v1/analyses", "owner-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultListLimit, env.records.limit)
}

func TestListAnalysesBadParams(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	for _, query := range []string{"limit=abc", "limit=0", "offset=-1"} {
		rec := env.do(http.MethodGet, "/v1/analyses?"+query, "owner-1", "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}

	env.records.listErr = errors.New("timeout")
	require.Equal(t, http.StatusInternalServerError, env.do(http.MethodGet, "/v1/analyses", "owner-1", "").Code)
}

func TestGetAnalysis(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	env.records.records["rec-1"] = completedRecord()

	rec := env.do(http.MethodGet, "/v1/analyses/rec-1", "owner-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "rec-1", decodeBody(t, rec)["analysis"].(map[string]any)["id"])

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/analyses/rec-1", "owner-2", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/v1/analyses/missing", "owner-1", "").Code)
}

func TestSentimentRoutes(t *testing.T) {
	t.Parallel()

	t.Run("start", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		env.sentiment.collection = sentiment.Collection{SnapshotID: "s_1"}

		rec := env.do(http.MethodPost, "/v1/sentiment", "owner-1", `{"keywords":["acme","widgets"]}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "s_1", body["snapshot_id"])
		require.Equal(t, []any{"acme", "widgets"}, body["keywords"])
	})

	t.Run("start validation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		env.sentiment.startErr = fmt.Errorf("%w: %w", analysis.ErrValidation, sentiment.ErrNoKeywords)
		require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/sentiment", "owner-1", `{"keywords":[]}`).Code)
	})

	t.Run("report states", func(t *testing.T) {
		t.Parallel()
		testCases := []struct {
			err  error
			want int
		}{
			{sentiment.ErrSnapshotNotReady, http.StatusAccepted},
			{sentiment.ErrNoTitles, http.StatusNotFound},
			{fmt.Errorf("%w: read snapshot", analysis.ErrProvider), http.StatusBadGateway},
			{nil, http.StatusOK},
		}
		for _, tc := range testCases {
			env := newTestEnv()
			env.sentiment.report = sentiment.Report{SnapshotID: "s_1", Titles: []string{"love it"}, Sentiment: "Positive."}
			env.sentiment.reportErr = tc.err
			rec := env.do(http.MethodGet, "/v1/sentiment/s_1", "owner-1", "")
			require.Equal(t, tc.want, rec.Code, fmt.Sprint(tc.err))
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		env.sentiment = nil
		require.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/v1/sentiment", "owner-1", `{"keywords":["a"]}`).Code)
	})
}
