package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{APIKey: "tvly-test", BaseURL: srv.URL + "/", MaxDepth: 2, Limit: 25})
	require.NoError(t, err)
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCrawlSendsRequestAndDecodesResults(t *testing.T) {
	var got crawlRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/crawl", r.URL.Path)
		require.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"base_url": "https://example.com",
			"results": [
				{"url": "https://example.com/", "raw_content": "home"},
				{"url": "https://example.com/about", "raw_content": "about us"}
			],
			"response_time": 1.5,
			"request_id": "req-123"
		}`))
	})

	result, err := client.Crawl(context.Background(), "https://example.com", "products")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", got.URL)
	require.Equal(t, "products", got.Instructions)
	require.Equal(t, 2, got.MaxDepth)
	require.Equal(t, 25, got.Limit)
	require.Equal(t, "basic", got.ExtractDepth)

	require.Equal(t, "https://example.com", result.BaseURL)
	require.Len(t, result.Results, 2)
	require.Equal(t, "about us", result.Results[1].RawContent)
	require.Equal(t, "req-123", result.RequestID)
}

func TestCrawlUnsupportedSignatures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"detail": {"error": "URL is not supported"}}`},
		{"forbidden without body", http.StatusForbidden, ``},
		{"bad request mentioning support", http.StatusBadRequest, `{"detail": "This URL is not supported for crawling"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Crawl(context.Background(), "https://example.com", "")
			require.ErrorIs(t, err, analysis.ErrUnsupportedSite)
		})
	}
}

func TestCrawlOtherErrorsAreNotUnsupported(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail": {"error": "Invalid API key"}}`},
		{"rate limited", http.StatusTooManyRequests, `{"detail": "slow down"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"server error mentioning support", http.StatusBadGateway, `feature not supported`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Crawl(context.Background(), "https://example.com", "")
			require.Error(t, err)
			require.NotErrorIs(t, err, analysis.ErrUnsupportedSite)
		})
	}
}

func TestCrawlMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	})
	_, err := client.Crawl(context.Background(), "https://example.com", "")
	require.Error(t, err)
}

func TestErrorDetail(t *testing.T) {
	require.Equal(t, "boom", errorDetail([]byte(`{"detail": {"error": "boom"}}`)))
	require.Equal(t, "flat", errorDetail([]byte(`{"detail": "flat"}`)))
	require.Equal(t, "top", errorDetail([]byte(`{"error": "top"}`)))
	require.Equal(t, "plain text", errorDetail([]byte("plain text\n")))
}
