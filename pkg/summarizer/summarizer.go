// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package summarizer compresses oversized tool output before it enters
// an agent's context window.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arcfield/toolgate/pkg/gateway"
	"github.com/arcfield/toolgate/pkg/logger"
)

// charsPerToken is the conservative estimate used for threshold checks.
// Most tokenizers average around four characters per English token.
const charsPerToken = 4

// minSummaryTokens floors the summary budget so a tiny max_tokens does
// not produce a useless one-line summary.
const minSummaryTokens = 500

const systemPrompt = `You are a precise summarization assistant. Your task is to summarize tool output while preserving all important information.

Rules:
1. Keep key data points, IDs, names, values, and actionable information
2. Remove redundant or repetitive content
3. Preserve structure where it aids understanding (use bullet points, brief sections)
4. If the output contains errors, always include the error message and relevant details
5. Be concise but complete - don't omit information that could be needed
6. For JSON/structured data, extract and present the essential fields
7. Never make up information - only summarize what's in the output`

// EstimateTokens returns a heuristic token count for threshold checks.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// SerializeOutput renders arbitrary tool output as a string. Strings
// pass through; everything else becomes indented JSON.
func SerializeOutput(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	if raw, ok := output.(json.RawMessage); ok {
		return string(raw)
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(data)
}

// Options configures a Summarizer.
type Options struct {
	// Enabled short-circuits SummarizeIfNeeded when false.
	Enabled bool

	// Model overrides the gateway's default model.
	Model string

	// MaxInputChars caps how much output is shipped to the model.
	MaxInputChars int

	// Timeout bounds each summarization call. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Summarizer compresses tool output via the LLM gateway.
type Summarizer struct {
	gw   *gateway.Client
	opts Options
}

// New builds a Summarizer over a gateway client.
func New(gw *gateway.Client, opts Options) *Summarizer {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 32000
	}
	return &Summarizer{gw: gw, opts: opts}
}

// Summarize asks the gateway for a focused summary of content,
// optionally anchored to the user's query and the producing tool.
func (s *Summarizer) Summarize(ctx context.Context, content, userQuery, toolName string, maxOutputTokens int) (string, error) {
	var contextParts []string
	if toolName != "" {
		contextParts = append(contextParts, "Tool: "+toolName)
	}
	if userQuery != "" {
		contextParts = append(contextParts, "User's goal: "+userQuery)
	}

	if len(content) > s.opts.MaxInputChars {
		content = content[:s.opts.MaxInputChars]
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	userPrompt := fmt.Sprintf(
		"Summarize the following tool output concisely.\n\n%s\n\nTool Output:\n%s\n\nProvide a focused summary that captures the essential information.",
		strings.Join(contextParts, "\n"), content)

	return s.gw.ChatComplete(ctx, gateway.ChatRequest{
		Model: s.opts.Model,
		Messages: []gateway.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   maxOutputTokens,
		Temperature: 0.1,
	})
}

// SummarizeIfNeeded summarizes content only when it exceeds maxTokens.
// On summarization failure it degrades to hard truncation rather than
// failing the call; the second return reports whether the output was
// reduced either way.
func (s *Summarizer) SummarizeIfNeeded(ctx context.Context, output any, maxTokens int, userQuery, toolName string) (string, bool) {
	content := SerializeOutput(output)
	if !s.opts.Enabled || maxTokens <= 0 {
		return content, false
	}
	if EstimateTokens(content) <= maxTokens {
		return content, false
	}

	logger.Infof("Tool output exceeds %d tokens (estimated %d), summarizing",
		maxTokens, EstimateTokens(content))
	budget := maxTokens / 2
	if budget < minSummaryTokens {
		budget = minSummaryTokens
	}

	summary, err := s.Summarize(ctx, content, userQuery, toolName, budget)
	if err == nil {
		return summary, true
	}

	logger.Warnf("Summarization failed, falling back to truncation: %v", err)
	limit := maxTokens * charsPerToken
	if limit < len(content) {
		return content[:limit] + "\n\n[Output truncated due to length]", true
	}
	return content, true
}
