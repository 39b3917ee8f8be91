// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptRequest(args map[string]string) mcp.GetPromptRequest {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = args
	return req
}

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, result.Messages, 1)
	assert.Equal(t, mcp.RoleUser, result.Messages[0].Role)
	text, ok := result.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolDiscoveryPrompt(t *testing.T) {
	t.Parallel()

	result, err := toolDiscoveryPrompt(context.Background(), promptRequest(map[string]string{
		"task_description": "convert a CSV file to JSON",
	}))
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, "Task: convert a CSV file to JSON")
	assert.Contains(t, text, "find_tool")

	_, err = toolDiscoveryPrompt(context.Background(), promptRequest(nil))
	require.Error(t, err)
}

func TestToolExecutionPrompt(t *testing.T) {
	t.Parallel()

	result, err := toolExecutionPrompt(context.Background(), promptRequest(map[string]string{
		"tool_name":    "csv:convert",
		"task_context": "migrating legacy exports",
	}))
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, `"csv:convert"`)
	assert.Contains(t, text, "Context: migrating legacy exports")
	assert.Contains(t, text, "get_tool_schema")

	_, err = toolExecutionPrompt(context.Background(), promptRequest(nil))
	require.Error(t, err)
}

func TestWorkflowPlanningPrompt(t *testing.T) {
	t.Parallel()

	result, err := workflowPlanningPrompt(context.Background(), promptRequest(map[string]string{
		"goal":        "publish a weekly report",
		"constraints": "no external APIs",
	}))
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, "Goal: publish a weekly report")
	assert.Contains(t, text, "Constraints: no external APIs")

	result, err = workflowPlanningPrompt(context.Background(), promptRequest(map[string]string{
		"goal": "publish a weekly report",
	}))
	require.NoError(t, err)
	assert.NotContains(t, promptText(t, result), "Constraints:")
}
