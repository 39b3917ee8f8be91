// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcfield/toolgate/pkg/gateway"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// llmToolConfig is the implementation_code payload of an LLM_GATEWAY
// tool. The prompt comes from the call's "prompt" argument when
// present, otherwise the serialized argument map.
type llmToolConfig struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
}

// callLLMGateway executes an LLM_GATEWAY tool as a chat completion.
func callLLMGateway(ctx context.Context, gw *gateway.Client, implCode string, args map[string]any) (any, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: no LLM gateway configured", models.ErrBackendUnavailable)
	}

	var cfg llmToolConfig
	if implCode != "" {
		if err := json.Unmarshal([]byte(implCode), &cfg); err != nil {
			return nil, fmt.Errorf("%w: invalid gateway tool configuration: %v", models.ErrInvalidTool, err)
		}
	}

	var userContent string
	if prompt, ok := args["prompt"].(string); ok && prompt != "" {
		userContent = prompt
	} else {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshaling arguments: %w", err)
		}
		userContent = string(data)
	}

	var messages []gateway.Message
	if cfg.SystemPrompt != "" {
		messages = append(messages, gateway.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	messages = append(messages, gateway.Message{Role: "user", Content: userContent})

	content, err := gw.ChatComplete(ctx, gateway.ChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"response": content}, nil
}
