// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package discovery keeps the catalog in sync with upstream MCP
// servers: it lists each source's tools, registers new ones under a
// "{source}:{name}" namespace, updates drifted definitions, and
// deactivates tools that disappeared upstream.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/gateway"
	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/telemetry"
)

// gatewaySource is the namespace used for tools discovered through the
// LLM gateway's MCP surface.
const gatewaySource = "litellm"

// SourceSummary reports one source's reconciliation outcome.
type SourceSummary struct {
	Source      string   `json:"source"`
	Fetched     int      `json:"fetched"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Deactivated int      `json:"deactivated"`
	Errors      []string `json:"errors,omitempty"`
}

// remoteTool is a normalized upstream tool definition, source-agnostic.
type remoteTool struct {
	name        string
	description string
	inputSchema map[string]any
}

// Catalog is the slice of the registry the reconciler needs.
type Catalog interface {
	List(ctx context.Context, filter store.ListFilter) ([]*models.Tool, error)
	Register(ctx context.Context, tool *models.Tool, autoEmbed bool) (*models.Tool, error)
	Update(ctx context.Context, id int64, tool *models.Tool) (*models.Tool, error)
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
}

var _ Catalog = (*registry.Registry)(nil)

// Service reconciles upstream MCP sources into the registry.
type Service struct {
	registry Catalog
	gw       *gateway.Client
	sources  []config.MCPSource
	timeout  time.Duration
	metrics  telemetry.Metrics

	// fetch is swapped in tests to avoid real MCP sessions.
	fetch func(ctx context.Context, src config.MCPSource) ([]remoteTool, error)
}

// New builds a discovery Service. gw may be nil when no gateway is
// configured; the gateway source is then skipped.
func New(reg Catalog, gw *gateway.Client, sources []config.MCPSource, timeout time.Duration, metrics telemetry.Metrics) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if metrics == nil {
		metrics = telemetry.NewNoop()
	}
	s := &Service{registry: reg, gw: gw, sources: sources, timeout: timeout, metrics: metrics}
	s.fetch = s.fetchMCP
	return s
}

// SyncAll reconciles every enabled source plus the gateway. Per-source
// failure is recorded in that source's summary and never aborts the
// run.
func (s *Service) SyncAll(ctx context.Context) []SourceSummary {
	var summaries []SourceSummary
	for _, src := range s.sources {
		if !src.IsEnabled() {
			logger.Debugf("Skipping disabled source %q", src.Name)
			continue
		}
		summaries = append(summaries, s.syncSource(ctx, src))
	}
	if s.gw != nil {
		summaries = append(summaries, s.syncGateway(ctx))
	}
	for _, sum := range summaries {
		s.metrics.SyncRun(sum.Source, sum.Created, sum.Updated, sum.Deactivated)
		logger.Infof("Discovery %q: fetched=%d created=%d updated=%d deactivated=%d errors=%d",
			sum.Source, sum.Fetched, sum.Created, sum.Updated, sum.Deactivated, len(sum.Errors))
	}
	return summaries
}

// SyncOne reconciles a single source by name. The gateway source is
// addressed by its reserved name.
func (s *Service) SyncOne(ctx context.Context, name string) (SourceSummary, error) {
	if name == gatewaySource {
		if s.gw == nil {
			return SourceSummary{}, fmt.Errorf("%w: gateway source is not configured", models.ErrNotFound)
		}
		sum := s.syncGateway(ctx)
		s.metrics.SyncRun(sum.Source, sum.Created, sum.Updated, sum.Deactivated)
		return sum, nil
	}
	for _, src := range s.sources {
		if src.Name == name {
			sum := s.syncSource(ctx, src)
			s.metrics.SyncRun(sum.Source, sum.Created, sum.Updated, sum.Deactivated)
			return sum, nil
		}
	}
	return SourceSummary{}, fmt.Errorf("%w: unknown discovery source %q", models.ErrNotFound, name)
}

func (s *Service) syncSource(ctx context.Context, src config.MCPSource) SourceSummary {
	summary := SourceSummary{Source: src.Name}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tools, err := s.fetch(ctx, src)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("fetch failed: %v", err))
		return summary
	}
	summary.Fetched = len(tools)

	category := src.Category
	if category == "" {
		category = "mcp"
	}
	tags := src.Tags
	if len(tags) == 0 {
		tags = []string{"mcp", src.Name}
	}

	desired := make([]*models.Tool, 0, len(tools))
	for _, rt := range tools {
		implCode, err := json.Marshal(map[string]any{
			"server_url": src.URL,
			"tool_name":  rt.name,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", rt.name, err))
			continue
		}
		desired = append(desired, s.normalize(src.Name, rt, models.ImplMCPServer,
			string(implCode), category, tags))
	}

	s.reconcile(ctx, src.Name, desired, &summary)
	return summary
}

// syncGateway reconciles the tools the LLM gateway proxies. They route
// back through the gateway at call time rather than to an MCP server.
func (s *Service) syncGateway(ctx context.Context) SourceSummary {
	summary := SourceSummary{Source: gatewaySource}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defs, err := s.gw.ListMCPTools(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("fetch failed: %v", err))
		return summary
	}
	summary.Fetched = len(defs)

	desired := make([]*models.Tool, 0, len(defs))
	for _, def := range defs {
		implCode, err := json.Marshal(map[string]any{"tool_name": def.Name})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", def.Name, err))
			continue
		}
		rt := remoteTool{name: def.Name, description: def.Description, inputSchema: def.InputSchema}
		desired = append(desired, s.normalize(gatewaySource, rt, models.ImplLLMGateway,
			string(implCode), gatewaySource, []string{"litellm", "mcp"}))
	}

	s.reconcile(ctx, gatewaySource, desired, &summary)
	return summary
}

// normalize maps an upstream definition onto a catalog tool.
func (*Service) normalize(source string, rt remoteTool, implType models.ImplementationType, implCode, category string, tags []string) *models.Tool {
	description := rt.description
	if description == "" {
		description = fmt.Sprintf("Tool from %s", source)
	}
	schema := rt.inputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &models.Tool{
		Name:               source + ":" + rt.name,
		Description:        description,
		Category:           category,
		Tags:               tags,
		InputSchema:        schema,
		ImplementationType: implType,
		ImplementationCode: implCode,
		Version:            "1.0.0",
		Metadata: map[string]any{
			"source":        "mcp_discovery",
			"mcp_server":    source,
			"original_name": rt.name,
			"synced_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// reconcile diffs desired against the source's existing namespace:
// create what is new, update what drifted (by definition hash),
// reactivate what came back, deactivate what disappeared.
func (s *Service) reconcile(ctx context.Context, source string, desired []*models.Tool, summary *SourceSummary) {
	existing, err := s.registry.List(ctx, store.ListFilter{NamePrefix: source + ":"})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("listing existing tools: %v", err))
		return
	}
	existingByName := make(map[string]*models.Tool, len(existing))
	for _, t := range existing {
		existingByName[t.Name] = t
	}

	seen := make(map[string]bool, len(desired))
	for _, want := range desired {
		seen[want.Name] = true
		have, ok := existingByName[want.Name]
		if !ok {
			if _, err := s.registry.Register(ctx, want, true); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", want.Name, err))
				continue
			}
			summary.Created++
			continue
		}

		changed := have.DefinitionHash() != want.DefinitionHash() ||
			have.ImplementationCode != want.ImplementationCode
		if changed {
			if _, err := s.registry.Update(ctx, have.ID, want); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", want.Name, err))
				continue
			}
			summary.Updated++
		}
		if !have.IsActive {
			if err := s.registry.Activate(ctx, have.ID); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", want.Name, err))
				continue
			}
			if !changed {
				summary.Updated++
			}
		}
	}

	for _, have := range existing {
		if seen[have.Name] || !have.IsActive {
			continue
		}
		if err := s.registry.Deactivate(ctx, have.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", have.Name, err))
			continue
		}
		summary.Deactivated++
	}
}

// fetchMCP lists tools from one MCP server, following list pagination
// and retrying transient failures with backoff.
func (s *Service) fetchMCP(ctx context.Context, src config.MCPSource) ([]remoteTool, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second

	return backoff.Retry(ctx, func() ([]remoteTool, error) {
		tools, err := listOnce(ctx, src)
		if err != nil {
			logger.Debugf("Listing tools from %q failed: %v", src.Name, err)
			return nil, err
		}
		return tools, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(3),
	)
}

func listOnce(ctx context.Context, src config.MCPSource) ([]remoteTool, error) {
	c, err := client.NewStreamableHttpClient(src.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: creating MCP client: %w", models.ErrBackendUnavailable, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close MCP client for %q: %v", src.Name, err)
		}
	}()

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "toolgate-discovery",
				Version: "1.0.0",
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("%w: initializing MCP session: %w", models.ErrBackendUnavailable, err)
	}

	var out []remoteTool
	var cursor mcp.Cursor
	for {
		result, err := c.ListTools(ctx, mcp.ListToolsRequest{
			PaginatedRequest: mcp.PaginatedRequest{
				Params: mcp.PaginatedParams{Cursor: cursor},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing tools: %w", models.ErrBackendUnavailable, err)
		}
		for _, tool := range result.Tools {
			schema := map[string]any{"type": tool.InputSchema.Type}
			if tool.InputSchema.Properties != nil {
				schema["properties"] = tool.InputSchema.Properties
			}
			if len(tool.InputSchema.Required) > 0 {
				schema["required"] = tool.InputSchema.Required
			}
			out = append(out, remoteTool{
				name:        tool.Name,
				description: tool.Description,
				inputSchema: schema,
			})
		}
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	return out, nil
}

// Run performs the startup sync when auto-run is enabled. A total
// failure is logged, not fatal; the admin trigger can retry.
func (s *Service) Run(ctx context.Context) {
	summaries := s.SyncAll(ctx)
	var failed int
	for _, sum := range summaries {
		if sum.Fetched == 0 && len(sum.Errors) > 0 {
			failed++
		}
	}
	if failed == len(summaries) && len(summaries) > 0 {
		logger.Warnf("Discovery run failed for all %d sources", failed)
	}
}
