// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcfield/toolgate/pkg/executor"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/retrieval"
)

// Finder ranks catalog tools against a natural-language query.
type Finder interface {
	FindTool(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Caller executes catalog tools by name.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*executor.CallResult, error)
	CallToolSummarized(ctx context.Context, name string, args map[string]any, maxTokens int, userQuery string) (*executor.CallResult, error)
}

// Catalog is the read surface of the registry the facade needs.
type Catalog interface {
	GetByName(ctx context.Context, name string) (*models.Tool, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Tool, error)
	Count(ctx context.Context, filter store.ListFilter) (int64, error)
	ListCategories(ctx context.Context) (map[string]int, error)
	Stats(ctx context.Context) (*models.RegistryStats, error)
}

var (
	_ Finder  = (*retrieval.Finder)(nil)
	_ Caller  = (*executor.Router)(nil)
	_ Catalog = (*registry.Registry)(nil)
)

// HandlerOptions tunes the facade's defaults.
type HandlerOptions struct {
	// SummaryMaxTokens is the token threshold applied by
	// call_tool_summarized when the request omits max_tokens.
	SummaryMaxTokens int
}

// Handler handles MCP tool requests against the registry.
type Handler struct {
	finder        Finder
	caller        Caller
	catalog       Catalog
	summaryTokens int
}

// NewHandler creates a handler over the given discovery, execution and
// catalog surfaces.
func NewHandler(finder Finder, caller Caller, catalog Catalog, opts HandlerOptions) *Handler {
	if opts.SummaryMaxTokens <= 0 {
		opts.SummaryMaxTokens = defaultSummaryTokens
	}
	return &Handler{
		finder:        finder,
		caller:        caller,
		catalog:       catalog,
		summaryTokens: opts.SummaryMaxTokens,
	}
}

// toolMatch is one find_tool result entry.
type toolMatch struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Category        string         `json:"category"`
	Tags            []string       `json:"tags"`
	SimilarityScore float64        `json:"similarity_score"`
	InputSchema     map[string]any `json:"input_schema"`
	Version         string         `json:"version"`
}

// findToolResponse is the structured output of find_tool.
type findToolResponse struct {
	Query        string                  `json:"query"`
	TotalFound   int                     `json:"total_found"`
	Tools        []toolMatch             `json:"tools"`
	Degraded     bool                    `json:"degraded,omitempty"`
	TokenMetrics *retrieval.TokenMetrics `json:"token_metrics,omitempty"`
}

// FindTool handles the find_tool MCP tool.
func (h *Handler) FindTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Query     string   `json:"query"`
		Limit     int      `json:"limit"`
		Threshold *float64 `json:"threshold"`
		Category  string   `json:"category"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	result, err := h.finder.FindTool(ctx, retrieval.Query{
		Text:      args.Query,
		Category:  args.Category,
		Limit:     args.Limit,
		Threshold: args.Threshold,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Tool search failed: %v", err)), nil
	}

	matches := make([]toolMatch, 0, len(result.Tools))
	for _, st := range result.Tools {
		matches = append(matches, toolMatch{
			Name:            st.Tool.Name,
			Description:     st.Tool.Description,
			Category:        st.Tool.Category,
			Tags:            st.Tool.Tags,
			SimilarityScore: round3(st.Score),
			InputSchema:     st.Tool.InputSchema,
			Version:         st.Tool.Version,
		})
	}

	return mcp.NewToolResultStructuredOnly(findToolResponse{
		Query:        result.Query,
		TotalFound:   len(matches),
		Tools:        matches,
		Degraded:     result.Degraded,
		TokenMetrics: result.Tokens,
	}), nil
}

// toolSummary is one list_tools result entry.
type toolSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Version     string   `json:"version"`
}

// listToolsResponse is the structured output of list_tools.
type listToolsResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
	Tools  []toolSummary `json:"tools"`
}

// ListTools handles the list_tools MCP tool.
func (h *Handler) ListTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Category string `json:"category"`
		Limit    int    `json:"limit"`
		Offset   int    `json:"offset"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.Limit <= 0 {
		args.Limit = 50
	}

	filter := store.ListFilter{
		Category:   args.Category,
		ActiveOnly: true,
		Limit:      args.Limit,
		Offset:     args.Offset,
	}
	tools, err := h.catalog.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tools: %v", err)), nil
	}
	// Total is the filtered catalog size, not the page size.
	total, err := h.catalog.Count(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to count tools: %v", err)), nil
	}

	summaries := make([]toolSummary, 0, len(tools))
	for _, t := range tools {
		summaries = append(summaries, toolSummary{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Tags:        t.Tags,
			Version:     t.Version,
		})
	}

	return mcp.NewToolResultStructuredOnly(listToolsResponse{
		Total:  int(total),
		Offset: args.Offset,
		Limit:  args.Limit,
		Tools:  summaries,
	}), nil
}

// toolSchemaResponse is the structured output of get_tool_schema.
type toolSchemaResponse struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Category           string         `json:"category"`
	Tags               []string       `json:"tags"`
	Version            string         `json:"version"`
	IsActive           bool           `json:"is_active"`
	InputSchema        map[string]any `json:"input_schema"`
	OutputSchema       map[string]any `json:"output_schema,omitempty"`
	ImplementationType string         `json:"implementation_type"`
}

// GetToolSchema handles the get_tool_schema MCP tool.
func (h *Handler) GetToolSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ToolName string `json:"tool_name"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	tool, err := h.catalog.GetByName(ctx, args.ToolName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Tool %q not found: %v", args.ToolName, err)), nil
	}

	return mcp.NewToolResultStructuredOnly(toolSchemaResponse{
		Name:               tool.Name,
		Description:        tool.Description,
		Category:           tool.Category,
		Tags:               tool.Tags,
		Version:            tool.Version,
		IsActive:           tool.IsActive,
		InputSchema:        tool.InputSchema,
		OutputSchema:       tool.OutputSchema,
		ImplementationType: string(tool.ImplementationType),
	}), nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
