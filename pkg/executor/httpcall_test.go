// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

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

func httpConfig(t *testing.T, url, method string) string {
	t.Helper()
	data, err := json.Marshal(httpToolConfig{URL: url, Method: method})
	require.NoError(t, err)
	return string(data)
}

func TestCallHTTPEndpointGet(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "paris", r.URL.Query().Get("city"))
		assert.Equal(t, "2", r.URL.Query().Get("days"))
		fmt.Fprint(w, `{"forecast":"sunny"}`)
	}))
	t.Cleanup(server.Close)

	out, err := callHTTPEndpoint(context.Background(), server.Client(),
		httpConfig(t, server.URL, http.MethodGet),
		map[string]any{"city": "paris", "days": 2.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"forecast": "sunny"}, out)
}

func TestCallHTTPEndpointPostBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"query": "files"}, body)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)

	out, err := callHTTPEndpoint(context.Background(), server.Client(),
		httpConfig(t, server.URL, http.MethodPost),
		map[string]any{"query": "files"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestCallHTTPEndpointCustomHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(server.Close)

	cfg, err := json.Marshal(httpToolConfig{
		URL:     server.URL,
		Method:  http.MethodPost,
		Headers: map[string]string{"X-Api-Key": "token-123"},
	})
	require.NoError(t, err)

	_, err = callHTTPEndpoint(context.Background(), server.Client(), string(cfg), nil)
	require.NoError(t, err)
}

func TestCallHTTPEndpointNonJSONResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "plain text result")
	}))
	t.Cleanup(server.Close)

	out, err := callHTTPEndpoint(context.Background(), server.Client(),
		httpConfig(t, server.URL, http.MethodPost), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "plain text result"}, out)
}

func TestCallHTTPEndpointErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	_, err := callHTTPEndpoint(context.Background(), server.Client(),
		httpConfig(t, server.URL, http.MethodPost), nil)
	require.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestCallHTTPEndpointBadConfig(t *testing.T) {
	t.Parallel()

	client := &http.Client{}
	_, err := callHTTPEndpoint(context.Background(), client, "", nil)
	require.ErrorIs(t, err, models.ErrInvalidTool)

	_, err = callHTTPEndpoint(context.Background(), client, "not json", nil)
	require.ErrorIs(t, err, models.ErrInvalidTool)

	_, err = callHTTPEndpoint(context.Background(), client, `{"method":"POST"}`, nil)
	require.ErrorIs(t, err, models.ErrInvalidTool)

	_, err = callHTTPEndpoint(context.Background(), client,
		`{"url":"http://x","method":"DELETE"}`, nil)
	require.ErrorIs(t, err, models.ErrInvalidTool)
}
