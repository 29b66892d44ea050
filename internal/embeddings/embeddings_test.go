package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_RequiresBaseURL(t *testing.T) {
	_, err := NewService(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbed_Single(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Inputs   []string `json:"inputs"`
			Truncate bool     `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"indemnification clause"}, req.Inputs)
		assert.True(t, req.Truncate)

		w.Write([]byte(`[[0.1, 0.2, 0.3]]`))
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL})
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "indemnification clause")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[0.1], [0.2]]`))
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL})
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
}

func TestEmbed_EmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9999"})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedBatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[0.1]]`))
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "got 1 embeddings for 2 texts")
}
