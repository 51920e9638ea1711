package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

func TestNewClient(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key", BaseURL: "https://api.example.com"}, zap.NewNop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
}

func TestSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/research", r.URL.Path)
		assert.Equal(t, "best headphones", r.URL.Query().Get("query"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"context": "Reviewers recommend the Sony WH-1000XM5.",
			"sources": []map[string]string{
				{"title": "ANC roundup", "url": "https://reviews.example.com/anc", "type": "review_site"},
				{"title": "Forum thread", "url": "https://forum.example.com/t/1", "type": "forum"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:            "test-key",
		BaseURL:           server.URL,
		RequestsPerSecond: 100,
	}, zap.NewNop())

	var events []domain.ProgressEvent
	result, err := client.Search(context.Background(), "best headphones", func(e domain.ProgressEvent) {
		events = append(events, e)
	})

	require.NoError(t, err)
	assert.Equal(t, "Reviewers recommend the Sony WH-1000XM5.", result.Context)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "ANC roundup", result.Sources[0].Title)
	assert.Equal(t, "https://reviews.example.com/anc", result.Sources[0].URL)

	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSourceFound, events[0].Type)
	assert.Equal(t, "ANC roundup", events[0].Message)
	assert.Equal(t, "review_site", events[0].Data["type"])
}

func TestSearch_EmptyQuery(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example.com"}, zap.NewNop())

	_, err := client.Search(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSearch_RetriesTransientFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"context": "recovered", "sources": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100}, zap.NewNop())

	result, err := client.Search(context.Background(), "best headphones", nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Context)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestSearch_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100}, zap.NewNop())

	_, err := client.Search(context.Background(), "best headphones", nil)
	assert.ErrorIs(t, err, domain.ErrResearchFailure)
}

func TestSearch_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100}, zap.NewNop())

	_, err := client.Search(context.Background(), "best headphones", nil)
	assert.ErrorIs(t, err, domain.ErrResearchFailure)
}

func TestSearch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Search(ctx, "best headphones", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
