// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arcfield/toolgate/pkg/registry/store"
)

const (
	categoriesURI     = "tools://categories"
	statsURI          = "tools://stats"
	byCategoryURITmpl = "tools://tools/{category}"
	byCategoryPrefix  = "tools://tools/"
)

// registerResources registers the read-only catalog resources.
func registerResources(mcpServer *server.MCPServer, handler *Handler) {
	mcpServer.AddResource(mcp.Resource{
		URI:         categoriesURI,
		Name:        "Tool Categories",
		Description: "All available tool categories in the registry",
		MIMEType:    "application/json",
	}, handler.ReadCategories)

	mcpServer.AddResource(mcp.Resource{
		URI:         statsURI,
		Name:        "Registry Statistics",
		Description: "Tool counts by category, implementation type and status",
		MIMEType:    "application/json",
	}, handler.ReadStats)

	mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		byCategoryURITmpl,
		"Tools by Category",
		mcp.WithTemplateDescription("All active tools in a specific category"),
		mcp.WithTemplateMIMEType("application/json"),
	), handler.ReadToolsByCategory)
}

// ReadCategories serves the tools://categories resource.
func (h *Handler) ReadCategories(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	byCategory, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	return jsonResource(categoriesURI, map[string]any{
		"categories": categories,
		"total":      len(categories),
	})
}

// ReadStats serves the tools://stats resource.
func (h *Handler) ReadStats(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get registry stats: %w", err)
	}

	return jsonResource(statsURI, map[string]any{
		"total_tools":                  stats.TotalTools,
		"active_tools":                 stats.ActiveTools,
		"inactive_tools":               stats.TotalTools - stats.ActiveTools,
		"indexed_tools":                stats.IndexedTools,
		"total_executions":             stats.TotalExecutions,
		"tools_by_category":            stats.ByCategory,
		"tools_by_implementation_type": stats.ByImplType,
	})
}

// ReadToolsByCategory serves the tools://tools/{category} resource.
func (h *Handler) ReadToolsByCategory(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	category := strings.TrimPrefix(request.Params.URI, byCategoryPrefix)
	if category == "" || category == request.Params.URI {
		return nil, fmt.Errorf("invalid resource URI %q", request.Params.URI)
	}

	tools, err := h.catalog.List(ctx, store.ListFilter{
		Category:   category,
		ActiveOnly: true,
		Limit:      1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools in category %q: %w", category, err)
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

	return jsonResource(request.Params.URI, map[string]any{
		"category": category,
		"total":    len(summaries),
		"tools":    summaries,
	})
}

// jsonResource wraps a value as a single JSON resource content.
func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource %q: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
