// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/retrieval"
)

// mcpRoutes serves the discovery and execution facade.
type mcpRoutes struct {
	searcher Searcher
	caller   Caller
	catalog  Catalog
	debug    bool
}

// MCPRouter creates the router for the /mcp facade routes.
func MCPRouter(searcher Searcher, caller Caller, catalog Catalog, debug bool) http.Handler {
	routes := &mcpRoutes{searcher: searcher, caller: caller, catalog: catalog, debug: debug}
	r := chi.NewRouter()
	r.Post("/list_tools", routes.listTools)
	r.Post("/find_tool", routes.findTool)
	r.Post("/call_tool", routes.callTool)
	return r
}

type listToolsRequest struct {
	Category   string `json:"category"`
	ActiveOnly *bool  `json:"active_only"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

type listToolsResponse struct {
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
	Tools  []*models.Tool `json:"tools"`
}

func (m *mcpRoutes) listTools(w http.ResponseWriter, r *http.Request) {
	var req listToolsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	activeOnly := req.ActiveOnly == nil || *req.ActiveOnly
	filter := store.ListFilter{
		Category:   req.Category,
		ActiveOnly: activeOnly,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	tools, err := m.catalog.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, m.debug)
		return
	}
	// Total is the filtered catalog size, not the page size; pagination
	// clients need it to know when to stop.
	total, err := m.catalog.Count(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, m.debug)
		return
	}
	if tools == nil {
		tools = []*models.Tool{}
	}
	writeJSON(w, http.StatusOK, listToolsResponse{
		Total:  int(total),
		Offset: req.Offset,
		Limit:  req.Limit,
		Tools:  tools,
	})
}

type findToolRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
	Category  string   `json:"category"`
	UseHybrid *bool    `json:"use_hybrid"`
}

func (m *mcpRoutes) findTool(w http.ResponseWriter, r *http.Request) {
	var req findToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	result, err := m.searcher.FindTool(r.Context(), retrieval.Query{
		Text:      req.Query,
		Category:  req.Category,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		UseHybrid: req.UseHybrid,
	})
	if err != nil {
		writeError(w, r, err, m.debug)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type callToolRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

func (m *mcpRoutes) callTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tool_name is required"})
		return
	}

	result, err := m.caller.CallTool(r.Context(), req.ToolName, req.Arguments)
	if result != nil {
		// Execution failures still produce a result; the status and
		// error fields carry the outcome. Timeouts are the exception:
		// they surface as 504 so callers can tell a slow tool from a
		// failed one without parsing the body.
		status := http.StatusOK
		if result.Status == models.StatusTimeout {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, result)
		return
	}
	writeError(w, r, err, m.debug)
}
