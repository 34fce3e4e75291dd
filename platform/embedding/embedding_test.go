package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge_backend/config"
)

func TestOpenAIClientEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, 3, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Dimensions: 3})
	out, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, out)
}

func TestOpenAIClientOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.5]]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	out, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, out)
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", MaxRetries: 2})
	out, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad model"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAIClientNotConfigured(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{BaseURL: defaultOpenAIBaseURL})
	_, err := c.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, config.ErrNotConfigured)

	out, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(256)
	out, err := e.Embed(context.Background(), []string{
		"vector search over documents",
		"vector search over documents",
		"vector search over pdf documents",
		"banana bread recipe",
		"",
	})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for _, v := range out {
		assert.Len(t, v, 256)
	}
	assert.Equal(t, out[0], out[1])
	assert.Greater(t, dot(out[0], out[2]), dot(out[0], out[3]))
	assert.Equal(t, make([]float32, 256), out[4])
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(&config.Config{EmbeddingProvider: "local", EmbeddingDim: 8})
	require.NoError(t, err)
	assert.Equal(t, "local-hash", p.Name())

	p, err = NewProvider(&config.Config{EmbeddingProvider: "openai", EmbeddingBatchSize: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, p.MaxBatch())
	assert.Equal(t, "text-embedding-3-small", p.Model())

	_, err = NewProvider(&config.Config{EmbeddingProvider: "hf"})
	assert.Error(t, err)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
