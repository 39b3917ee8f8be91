// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package api contains the HTTP surface for toolgate: the /mcp facade
// routes, the /admin management routes and the liveness probes.
package api

import (
	"context"
	"net/http"

	"github.com/arcfield/toolgate/pkg/discovery"
	"github.com/arcfield/toolgate/pkg/executor"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/retrieval"
)

// Catalog is the registry surface the admin routes manage.
type Catalog interface {
	Register(ctx context.Context, tool *models.Tool, autoEmbed bool) (*models.Tool, error)
	Update(ctx context.Context, id int64, tool *models.Tool) (*models.Tool, error)
	Get(ctx context.Context, id int64) (*models.Tool, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Tool, error)
	Count(ctx context.Context, filter store.ListFilter) (int64, error)
	Delete(ctx context.Context, id int64) error
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	ReindexTool(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.RegistryStats, error)
	ListExecutions(ctx context.Context, toolName string, limit int) ([]*models.ToolExecution, error)
}

// Searcher ranks catalog tools against a natural-language query.
type Searcher interface {
	FindTool(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Caller executes catalog tools by name.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*executor.CallResult, error)
}

// Syncer triggers discovery reconciliation runs.
type Syncer interface {
	SyncAll(ctx context.Context) []discovery.SourceSummary
	SyncOne(ctx context.Context, name string) (discovery.SourceSummary, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Catalog  = (*registry.Registry)(nil)
	_ Searcher = (*retrieval.Finder)(nil)
	_ Caller   = (*executor.Router)(nil)
	_ Syncer   = (*discovery.Service)(nil)
	_ Pinger   = (*store.Store)(nil)
)

// Deps carries everything the HTTP surface serves from.
type Deps struct {
	Catalog  Catalog
	Searcher Searcher
	Caller   Caller
	Syncer   Syncer
	Pinger   Pinger

	// Metrics is the Prometheus exposition handler. Nil disables the
	// /metrics route.
	Metrics http.Handler
}
