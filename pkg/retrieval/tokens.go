// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// TokenMetrics estimates the context-window cost of a discovery result.
// Agents care about this because every returned schema competes with
// conversation history for the model's context.
type TokenMetrics struct {
	// ResultTokens is the token count of the returned tool definitions.
	ResultTokens int `json:"result_tokens"`

	// PerTool breaks ResultTokens down by tool name.
	PerTool map[string]int `json:"per_tool,omitempty"`
}

// TokenCounter counts tokens with the cl100k_base encoding, falling
// back to a characters/4 heuristic when the encoding is unavailable
// (e.g. no network to fetch the BPE table).
type TokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter returns a lazily-initializing counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (c *TokenCounter) init() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.encoding = enc
		}
	})
}

// Count returns the token count for text.
func (c *TokenCounter) Count(text string) int {
	c.init()
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens is the characters/4 heuristic shared with the
// summarizer's threshold check.
func estimateTokens(text string) int {
	return len(text) / 4
}

// Measure computes token metrics for a set of scored tools.
func (c *TokenCounter) Measure(_ context.Context, tools []*models.ScoredTool) *TokenMetrics {
	metrics := &TokenMetrics{PerTool: make(map[string]int, len(tools))}
	for _, st := range tools {
		data, err := json.Marshal(st.Tool)
		if err != nil {
			continue
		}
		n := c.Count(string(data))
		metrics.PerTool[st.Tool.Name] = n
		metrics.ResultTokens += n
	}
	if len(metrics.PerTool) == 0 {
		metrics.PerTool = nil
	}
	return metrics
}
