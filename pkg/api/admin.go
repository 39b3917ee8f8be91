// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arcfield/toolgate/pkg/discovery"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// adminRoutes serves tool management and discovery triggers.
type adminRoutes struct {
	catalog Catalog
	syncer  Syncer
	debug   bool
}

// AdminRouter creates the router for the /admin management routes.
// The caller is expected to wrap it in adminAuth.
func AdminRouter(catalog Catalog, syncer Syncer, debug bool) http.Handler {
	routes := &adminRoutes{catalog: catalog, syncer: syncer, debug: debug}
	r := chi.NewRouter()
	r.Post("/tools", routes.registerTool)
	r.Get("/tools/{id}", routes.getTool)
	r.Put("/tools/{id}", routes.updateTool)
	r.Delete("/tools/{id}", routes.deleteTool)
	r.Post("/tools/{id}/reindex", routes.reindexTool)
	r.Post("/tools/{id}/activate", routes.activateTool)
	r.Post("/tools/{id}/deactivate", routes.deactivateTool)
	r.Get("/stats", routes.stats)
	r.Get("/executions", routes.listExecutions)
	r.Post("/mcp/sync", routes.syncDiscovery)
	return r
}

func toolID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// registerTool creates a tool from the request body. auto_embed
// defaults to true; with it set the embedding is generated atomically
// with the insert and a failure rejects the registration.
func (a *adminRoutes) registerTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.Tool
		AutoEmbed *bool `json:"auto_embed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	autoEmbed := req.AutoEmbed == nil || *req.AutoEmbed
	created, err := a.catalog.Register(r.Context(), &req.Tool, autoEmbed)
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminRoutes) getTool(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tool id"})
		return
	}
	tool, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

// updateTool applies a partial update: fields absent from the body keep
// their stored values. A changed name is rejected downstream.
func (a *adminRoutes) updateTool(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tool id"})
		return
	}
	existing, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}

	updated := *existing
	if err := decodeJSON(r, &updated); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	result, err := a.catalog.Update(r.Context(), id, &updated)
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminRoutes) deleteTool(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tool id"})
		return
	}
	if err := a.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminRoutes) reindexTool(w http.ResponseWriter, r *http.Request) {
	id, ok := toolID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tool id"})
		return
	}
	if err := a.catalog.ReindexTool(r.Context(), id); err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reindexed": true, "id": id})
}

func (a *adminRoutes) activateTool(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, true)
}

func (a *adminRoutes) deactivateTool(w http.ResponseWriter, r *http.Request) {
	a.setActive(w, r, false)
}

func (a *adminRoutes) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := toolID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tool id"})
		return
	}
	var err error
	if active {
		err = a.catalog.Activate(r.Context(), id)
	} else {
		err = a.catalog.Deactivate(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
}

func (a *adminRoutes) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.catalog.Stats(r.Context())
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *adminRoutes) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := a.catalog.ListExecutions(r.Context(), r.URL.Query().Get("tool"), limit)
	if err != nil {
		writeError(w, r, err, a.debug)
		return
	}
	if executions == nil {
		executions = []*models.ToolExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "total": len(executions)})
}

type syncRequest struct {
	Source string `json:"source"`
}

func (a *adminRoutes) syncDiscovery(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
			return
		}
	}

	var summaries []discovery.SourceSummary
	if req.Source != "" {
		summary, err := a.syncer.SyncOne(r.Context(), req.Source)
		if err != nil {
			writeError(w, r, err, a.debug)
			return
		}
		summaries = []discovery.SourceSummary{summary}
	} else {
		summaries = a.syncer.SyncAll(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": summaries})
}
