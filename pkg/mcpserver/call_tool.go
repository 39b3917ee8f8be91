// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcfield/toolgate/pkg/executor"
)

// defaultSummaryTokens is the summarization threshold when the caller
// does not supply max_tokens.
const defaultSummaryTokens = 2000

// callToolResponse is the structured output of call_tool and
// call_tool_summarized. Error responses are returned in this shape
// rather than as protocol errors so the model can read what went wrong
// and correct its next attempt.
type callToolResponse struct {
	Success         bool     `json:"success"`
	ToolName        string   `json:"tool_name"`
	Output          any      `json:"output,omitempty"`
	Error           string   `json:"error,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	WasSummarized   bool     `json:"was_summarized"`
}

// CallTool handles the call_tool MCP tool.
func (h *Handler) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	result, err := h.caller.CallTool(ctx, args.ToolName, args.Arguments)
	return toCallResult(args.ToolName, result, err), nil
}

// CallToolSummarized handles the call_tool_summarized MCP tool.
func (h *Handler) CallToolSummarized(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName             string         `json:"tool_name"`
		Arguments            map[string]any `json:"arguments"`
		MaxTokens            int            `json:"max_tokens"`
		SummarizationContext string         `json:"summarization_context"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.MaxTokens <= 0 {
		args.MaxTokens = h.summaryTokens
	}

	result, err := h.caller.CallToolSummarized(ctx, args.ToolName, args.Arguments,
		args.MaxTokens, args.SummarizationContext)
	return toCallResult(args.ToolName, result, err), nil
}

// toCallResult maps an execution outcome onto the MCP response. The
// router returns both a result and an error when the tool ran but
// failed; only resolution and validation failures come back with a nil
// result.
func toCallResult(toolName string, result *executor.CallResult, err error) *mcp.CallToolResult {
	if result == nil {
		resp := callToolResponse{
			Success:  false,
			ToolName: toolName,
		}
		if err != nil {
			resp.Error = err.Error()
			var notFound *executor.NotFoundError
			if errors.As(err, &notFound) {
				resp.Suggestions = notFound.Suggestions
			}
		}
		return mcp.NewToolResultStructuredOnly(resp)
	}

	return mcp.NewToolResultStructuredOnly(callToolResponse{
		Success:         err == nil,
		ToolName:        result.ToolName,
		Output:          result.Output,
		Error:           result.Error,
		ExecutionTimeMS: result.DurationMS,
		WasSummarized:   result.Summarized,
	})
}
