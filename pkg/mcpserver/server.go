// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the registry as an MCP server: a "tool of
// tools" that lets agents discover catalog tools with find_tool and
// invoke them with call_tool, without loading the whole catalog into
// their context.
package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arcfield/toolgate/pkg/logger"
)

// DefaultPort is the default port for the MCP endpoint.
const DefaultPort = "8061"

const serverInstructions = `Toolgate is a tool registry and execution engine. It provides two main capabilities:

1. find_tool: Search for tools using natural language queries. Use this to discover
   what tools are available for a specific task.

2. call_tool: Execute a tool by name with the required arguments. Use this after
   finding the right tool to actually run it.

Typical workflow:
1. Use find_tool to search for relevant tools (e.g. "calculator", "weather", "text processing")
2. Review the returned tools and their input schemas
3. Use call_tool to execute the chosen tool with appropriate arguments`

// Config holds the configuration for the MCP server.
type Config struct {
	Host string
	Port string
}

// Server serves the MCP facade over streamable HTTP.
type Server struct {
	config     *Config
	mcpServer  *server.MCPServer
	httpServer *http.Server
	handler    *Handler
}

// New creates the MCP server and registers its tools, resources and
// prompts with the given handler.
func New(ctx context.Context, config *Config, handler *Handler, version string) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	mcpServer := server.NewMCPServer(
		"toolgate",
		version,
		server.WithInstructions(serverInstructions),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithLogging(),
	)

	registerTools(mcpServer, handler)
	registerResources(mcpServer, handler)
	registerPrompts(mcpServer)

	addr := fmt.Sprintf("%s:%s", config.Host, config.Port)
	streamableServer := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/mcp"),
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: streamableServer,
		// Request contexts derive from the serve context, so tool
		// handlers stop both on shutdown and on client disconnect.
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}

	return &Server{
		config:     config,
		mcpServer:  mcpServer,
		httpServer: httpServer,
		handler:    handler,
	}, nil
}

// Start starts the MCP server and blocks until it stops.
func (s *Server) Start() error {
	logger.Infof("Starting MCP server on http://%s:%s/mcp", s.config.Host, s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the MCP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down MCP server...")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the MCP endpoint URL.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s:%s/mcp", s.config.Host, s.config.Port)
}

// registerTools registers the discovery and execution tools.
func registerTools(mcpServer *server.MCPServer, handler *Handler) {
	mcpServer.AddTool(mcp.Tool{
		Name: "find_tool",
		Description: "Search for tools using semantic search. Use this to discover available " +
			"tools that match your needs. The search uses embeddings to find tools based on " +
			"meaning, not just keywords.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language description of what you're looking for",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of tools to return (default: 5)",
				},
				"threshold": map[string]any{
					"type":        "number",
					"description": "Minimum similarity score 0.0-1.0; 0 disables filtering",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional category filter (e.g. \"math\", \"weather\")",
				},
			},
			Required: []string{"query"},
		},
	}, handler.FindTool)

	mcpServer.AddTool(mcp.Tool{
		Name: "call_tool",
		Description: "Execute a registered tool by name. Use this after finding the right tool " +
			"with find_tool. Provide all required arguments as specified in the tool's input schema.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name": map[string]any{
					"type":        "string",
					"description": "The exact name of the tool to execute (e.g. \"calculator:calculate\")",
				},
				"arguments": map[string]any{
					"type":        "object",
					"description": "Arguments matching the tool's input schema",
				},
			},
			Required: []string{"tool_name"},
		},
	}, handler.CallTool)

	mcpServer.AddTool(mcp.Tool{
		Name: "call_tool_summarized",
		Description: "Execute a registered tool and summarize the output if it exceeds the token " +
			"limit. Use this instead of call_tool when you expect large outputs (logs, documents, " +
			"API responses) and want to reduce token usage.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name": map[string]any{
					"type":        "string",
					"description": "The exact name of the tool to execute",
				},
				"arguments": map[string]any{
					"type":        "object",
					"description": "Arguments matching the tool's input schema",
				},
				"max_tokens": map[string]any{
					"type":        "integer",
					"description": "Maximum output tokens before summarization kicks in (defaults to the server's configured limit)",
				},
				"summarization_context": map[string]any{
					"type":        "string",
					"description": "Optional hint about what information is important",
				},
			},
			Required: []string{"tool_name"},
		},
	}, handler.CallToolSummarized)

	mcpServer.AddTool(mcp.Tool{
		Name: "list_tools",
		Description: "List all available tools in the registry. Use this to get an overview of " +
			"registered tools without searching.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Optional category filter",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of tools to return (default: 50)",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "Number of tools to skip for pagination",
				},
			},
		},
	}, handler.ListTools)

	mcpServer.AddTool(mcp.Tool{
		Name: "get_tool_schema",
		Description: "Get the full schema and details for a specific tool. Use this to see the " +
			"complete input/output schema before calling a tool.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"tool_name": map[string]any{
					"type":        "string",
					"description": "The exact name of the tool",
				},
			},
			Required: []string{"tool_name"},
		},
	}, handler.GetToolSchema)
}
