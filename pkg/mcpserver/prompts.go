// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerPrompts registers the guidance prompts. They are static
// templates over the request arguments and need no handler state.
func registerPrompts(mcpServer *server.MCPServer) {
	mcpServer.AddPrompt(mcp.NewPrompt("tool_discovery",
		mcp.WithPromptDescription("Generate a prompt for discovering relevant tools for a task"),
		mcp.WithArgument("task_description",
			mcp.ArgumentDescription("Description of what the user wants to accomplish"),
			mcp.RequiredArgument(),
		),
	), toolDiscoveryPrompt)

	mcpServer.AddPrompt(mcp.NewPrompt("tool_execution",
		mcp.WithPromptDescription("Generate a prompt for executing a specific tool"),
		mcp.WithArgument("tool_name",
			mcp.ArgumentDescription("Name of the tool to execute"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("task_context",
			mcp.ArgumentDescription("Context about what the user wants to accomplish"),
			mcp.RequiredArgument(),
		),
	), toolExecutionPrompt)

	mcpServer.AddPrompt(mcp.NewPrompt("workflow_planning",
		mcp.WithPromptDescription("Generate a prompt for planning a multi-tool workflow"),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("The end goal to achieve"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("constraints",
			mcp.ArgumentDescription("Optional constraints or requirements"),
		),
	), workflowPlanningPrompt)
}

func toolDiscoveryPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := request.Params.Arguments["task_description"]
	if task == "" {
		return nil, fmt.Errorf("task_description is required")
	}
	return userPrompt("Discover tools relevant to a task", renderToolDiscovery(task)), nil
}

func toolExecutionPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	toolName := request.Params.Arguments["tool_name"]
	if toolName == "" {
		return nil, fmt.Errorf("tool_name is required")
	}
	taskContext := request.Params.Arguments["task_context"]
	return userPrompt("Execute a specific tool", renderToolExecution(toolName, taskContext)), nil
}

func workflowPlanningPrompt(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := request.Params.Arguments["goal"]
	if goal == "" {
		return nil, fmt.Errorf("goal is required")
	}
	constraints := request.Params.Arguments["constraints"]
	return userPrompt("Plan a multi-tool workflow", renderWorkflowPlanning(goal, constraints)), nil
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.NewTextContent(text)},
		},
	}
}

func renderToolDiscovery(task string) string {
	return fmt.Sprintf(`I need to find tools that can help with the following task:

Task: %s

Please use the find_tool function to search for relevant tools. Consider:
1. Breaking down the task into sub-tasks if needed
2. Searching with different query variations
3. Checking tool input schemas to ensure they match requirements

After finding tools, summarize:
- Which tools are most relevant
- What arguments each tool requires
- Any limitations or considerations`, task)
}

func renderToolExecution(toolName, taskContext string) string {
	return fmt.Sprintf(`I need to execute the tool %q for the following purpose:

Context: %s

Please:
1. First use get_tool_schema to get the full input schema for %q
2. Construct the appropriate arguments based on the schema and context
3. Execute the tool using call_tool
4. Interpret and summarize the results

If the tool fails, suggest alternative approaches or tools.`, toolName, taskContext, toolName)
}

func renderWorkflowPlanning(goal, constraints string) string {
	constraintsSection := ""
	if constraints != "" {
		constraintsSection = "\nConstraints: " + constraints
	}
	return fmt.Sprintf(`I need to plan a workflow to achieve the following goal:

Goal: %s%s

Please:
1. Use list_tools or find_tool to discover available capabilities
2. Identify which tools can contribute to the goal
3. Plan the sequence of tool calls needed
4. Consider data flow between tools (output of one as input to another)
5. Identify any gaps where no suitable tool exists

Provide a step-by-step plan with:
- Tool name for each step
- Required inputs and where they come from
- Expected outputs
- Error handling considerations`, goal, constraintsSection)
}
