package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGarfunkel/ordinizer-sub000/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithRequestsPerSecond(1000),
	)
}

func TestEmbed_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		require.Len(t, req.Input, 2)

		json.NewEncoder(w).Encode(EmbedResponse{
			Model: req.Model,
			Data: []Embedding{
				{Index: 0, Embedding: []float32{0.1, 0.2}},
				{Index: 1, Embedding: []float32{0.3, 0.4}},
			},
			Usage: EmbedUsage{TotalTokens: 12},
		})
	})

	resp, err := c.Embed(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, []float32{0.3, 0.4}, resp.Data[1].Embedding)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestEmbed_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(EmbedResponse{
			Data:  []Embedding{{Index: 0, Embedding: []float32{1}}},
			Usage: EmbedUsage{TotalTokens: 3},
		})
	})

	resp, err := c.Embed(context.Background(), []string{"chunk"})
	require.NoError(t, err)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_NonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Embed(context.Background(), []string{"chunk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.False(t, resilience.IsTransient(err), "auth failures must not be retried upstream")
}

func TestEmbed_ExhaustedRetriesStayTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Embed(context.Background(), []string{"chunk"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "transient status exhausts all attempts")
	assert.True(t, resilience.IsTransient(err), "callers classify the failure for their breaker")
}

func TestEmbed_CountMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EmbedResponse{Data: []Embedding{{Index: 0}}})
	})

	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 inputs")
}

func TestEmbed_EmptyInputSkipsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	resp, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}
