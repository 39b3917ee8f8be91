// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, dimension int) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(Options{
		BaseURL:   server.URL,
		Model:     "test-embed",
		Dimension: dimension,
		MaxTries:  1,
	})
	require.NoError(t, err)
	return client
}

func TestEmbedOpenAIShape(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)
		assert.Equal(t, []string{"hello"}, req.Input)

		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`)
	}, 3)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedBatchOrderedByIndex(t *testing.T) {
	t.Parallel()

	// Vectors come back out of order; the index field is authoritative.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"embedding":[2,2],"index":1},
			{"embedding":[1,1],"index":0}
		]}`)
	}, 2)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{2, 2}, vectors[1])
}

func TestEmbedWrappedShape(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"embeddings":[[0.5,0.5]]}`)
	}, 2)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestEmbedBareArrayShape(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[[1,0],[0,1]]`)
	}, 2)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2],"index":0}]}`)
	}, 3)

	_, err := client.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, models.ErrEmbeddingShape)
}

func TestEmbedCountMismatch(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[1,2],"index":0}]}`)
	}, 2)

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, models.ErrEmbeddingShape)
}

func TestEmbedUnrecognizedShape(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}, 2)

	_, err := client.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, models.ErrEmbeddingShape)
}

func TestEmbedBatchSequentialFallback(t *testing.T) {
	t.Parallel()

	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Input) > 1 {
			http.Error(w, `{"error":"batch input not supported"}`, http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"data":[{"embedding":[%d,0],"index":0}]}`, calls)
	}, 2)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 3, calls) // one refused batch, two singles
}

func TestEmbedBatchValidationErrorDoesNotFallBack(t *testing.T) {
	t.Parallel()

	// A 400 that does not mention batch or array input is a real
	// validation failure; re-sending the texts one by one would just
	// repeat it.
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, `{"error":"input exceeds maximum length"}`, http.StatusBadRequest)
	}, 2)

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "transient", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[{"embedding":[1,1],"index":0}]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(Options{BaseURL: server.URL, Dimension: 2, MaxTries: 3})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, vec)
	assert.Equal(t, 3, calls)
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(Options{BaseURL: server.URL, Dimension: 2, MaxTries: 3})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, models.ErrEmbeddingFailed)
	assert.Equal(t, 1, calls)
}

func TestEmbedSendsBearerToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[{"embedding":[1],"index":0}]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(Options{BaseURL: server.URL, APIKey: "sk-test", Dimension: 1, MaxTries: 1})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.NoError(t, err)
}

func TestNewHTTPClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient(Options{Dimension: 2})
	require.Error(t, err)

	_, err = NewHTTPClient(Options{BaseURL: "http://localhost", Dimension: 0})
	require.Error(t, err)
}
