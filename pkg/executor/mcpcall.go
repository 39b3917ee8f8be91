// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// mcpToolConfig is the implementation_code payload of an MCP_SERVER
// tool: where the upstream lives and what the tool is called there.
type mcpToolConfig struct {
	ServerURL string            `json:"server_url"`
	ToolName  string            `json:"tool_name"`
	Headers   map[string]string `json:"headers"`
}

// callMCPServer proxies a call to an upstream MCP server over
// streamable HTTP. Each call uses a fresh session; upstreams are
// long-lived but our calls are not.
func callMCPServer(ctx context.Context, tool *models.Tool, args map[string]any) (any, error) {
	if tool.ImplementationCode == "" {
		return nil, fmt.Errorf("%w: MCP server configuration is empty", models.ErrInvalidTool)
	}
	var cfg mcpToolConfig
	if err := json.Unmarshal([]byte(tool.ImplementationCode), &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid MCP server configuration: %v", models.ErrInvalidTool, err)
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("%w: MCP server URL is required", models.ErrInvalidTool)
	}
	remoteName := cfg.ToolName
	if remoteName == "" {
		remoteName = tool.RemoteName()
	}

	c, err := client.NewStreamableHttpClient(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: creating MCP client: %w", models.ErrBackendUnavailable, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close MCP client: %v", err)
		}
	}()

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "toolgate",
				Version: "1.0.0",
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("%w: initializing MCP session: %w", models.ErrBackendUnavailable, err)
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      remoteName,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tool call failed: %w", models.ErrBackendUnavailable, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("upstream MCP server reported an error: %s", flattenContent(result.Content))
	}
	return flattenContent(result.Content), nil
}

// flattenContent joins the text parts of an MCP result. Non-text
// content is summarized by type.
func flattenContent(content []mcp.Content) string {
	var out string
	for _, item := range content {
		if text, ok := mcp.AsTextContent(item); ok {
			if out != "" {
				out += "\n"
			}
			out += text.Text
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("[unsupported content type %T]", item)
	}
	return out
}
