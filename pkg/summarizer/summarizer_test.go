// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/toolgate/pkg/gateway"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestSerializeOutput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", SerializeOutput("plain"))
	assert.JSONEq(t, `{"a":1}`, SerializeOutput(map[string]any{"a": 1}))
	assert.Equal(t, `[1,2]`, strings.ReplaceAll(strings.ReplaceAll(
		SerializeOutput([]int{1, 2}), "\n", ""), " ", ""))
}

func newSummarizer(t *testing.T, handler http.HandlerFunc, enabled bool) *Summarizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := gateway.New(gateway.Options{BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	return New(gw, Options{Enabled: enabled})
}

func TestSummarizeIfNeededUnderThreshold(t *testing.T) {
	t.Parallel()

	s := newSummarizer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("gateway must not be called for small output")
	}, true)

	out, summarized := s.SummarizeIfNeeded(context.Background(), "short output", 100, "", "")
	assert.Equal(t, "short output", out)
	assert.False(t, summarized)
}

func TestSummarizeIfNeededDisabled(t *testing.T) {
	t.Parallel()

	s := newSummarizer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("gateway must not be called when disabled")
	}, false)

	big := strings.Repeat("data ", 10000)
	out, summarized := s.SummarizeIfNeeded(context.Background(), big, 10, "", "")
	assert.Equal(t, big, out)
	assert.False(t, summarized)
}

func TestSummarizeIfNeededCallsGateway(t *testing.T) {
	t.Parallel()

	s := newSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"the gist"}}]}`)
	}, true)

	big := strings.Repeat("data ", 10000)
	out, summarized := s.SummarizeIfNeeded(context.Background(), big, 100, "find files", "read_file")
	assert.Equal(t, "the gist", out)
	assert.True(t, summarized)
}

func TestSummarizeIfNeededTruncationFallback(t *testing.T) {
	t.Parallel()

	s := newSummarizer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}, true)

	big := strings.Repeat("data ", 10000)
	out, summarized := s.SummarizeIfNeeded(context.Background(), big, 100, "", "")
	assert.True(t, summarized)
	assert.True(t, strings.HasSuffix(out, "[Output truncated due to length]"))
	// 100 tokens at 4 chars/token, plus the truncation marker.
	assert.LessOrEqual(t, len(out), 100*4+len("\n\n[Output truncated due to length]"))
}

func TestSummarizeTimeoutFallsBackToTruncation(t *testing.T) {
	t.Parallel()

	// The gateway hangs until the request context is canceled, so only
	// the configured timeout unblocks the call.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and
		// cancels the request context when the client gives up.
		io.Copy(io.Discard, r.Body) //nolint:errcheck
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	gw, err := gateway.New(gateway.Options{BaseURL: server.URL})
	require.NoError(t, err)
	s := New(gw, Options{Enabled: true, Timeout: 50 * time.Millisecond})

	big := strings.Repeat("data ", 10000)
	start := time.Now()
	out, summarized := s.SummarizeIfNeeded(context.Background(), big, 100, "", "")
	require.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, summarized)
	assert.True(t, strings.HasSuffix(out, "[Output truncated due to length]"))
}

func TestSummarizePromptCarriesContext(t *testing.T) {
	t.Parallel()

	var req gateway.ChatRequest
	s := newSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}, true)

	_, err := s.Summarize(context.Background(), "content", "user goal", "my_tool", 500)
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Tool: my_tool")
	assert.Contains(t, req.Messages[1].Content, "User's goal: user goal")
	assert.Equal(t, 500, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
}
