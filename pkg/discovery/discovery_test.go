// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
)

// fakeCatalog is an in-memory Catalog for reconciliation tests.
type fakeCatalog struct {
	tools  map[string]*models.Tool
	nextID int64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tools: make(map[string]*models.Tool), nextID: 1}
}

func (f *fakeCatalog) List(_ context.Context, filter store.ListFilter) ([]*models.Tool, error) {
	var out []*models.Tool
	for _, t := range f.tools {
		if filter.NamePrefix != "" && !strings.HasPrefix(t.Name, filter.NamePrefix) {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeCatalog) Register(_ context.Context, tool *models.Tool, _ bool) (*models.Tool, error) {
	if _, exists := f.tools[tool.Name]; exists {
		return nil, models.ErrNameConflict
	}
	tool.ID = f.nextID
	f.nextID++
	tool.IsActive = true
	f.tools[tool.Name] = tool
	return tool, nil
}

func (f *fakeCatalog) Update(_ context.Context, id int64, tool *models.Tool) (*models.Tool, error) {
	existing := f.byID(id)
	if existing == nil {
		return nil, models.ErrNotFound
	}
	tool.ID = id
	tool.Name = existing.Name
	tool.IsActive = existing.IsActive
	f.tools[tool.Name] = tool
	return tool, nil
}

func (f *fakeCatalog) Activate(_ context.Context, id int64) error {
	return f.setActive(id, true)
}

func (f *fakeCatalog) Deactivate(_ context.Context, id int64) error {
	return f.setActive(id, false)
}

func (f *fakeCatalog) setActive(id int64, active bool) error {
	t := f.byID(id)
	if t == nil {
		return models.ErrNotFound
	}
	t.IsActive = active
	return nil
}

func (f *fakeCatalog) byID(id int64) *models.Tool {
	for _, t := range f.tools {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func testService(catalog Catalog, tools map[string][]remoteTool, fetchErr error) *Service {
	s := New(catalog, nil, []config.MCPSource{
		{Name: "files", URL: "http://files-mcp:8080/mcp", Category: "filesystem"},
	}, time.Second, nil)
	s.fetch = func(_ context.Context, src config.MCPSource) ([]remoteTool, error) {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return tools[src.Name], nil
	}
	return s
}

func TestSyncCreatesNamespacedTools(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	s := testService(catalog, map[string][]remoteTool{
		"files": {
			{name: "read_file", description: "reads a file", inputSchema: map[string]any{"type": "object"}},
			{name: "write_file"},
		},
	}, nil)

	summaries := s.SyncAll(context.Background())
	require.Len(t, summaries, 1)
	sum := summaries[0]
	assert.Equal(t, "files", sum.Source)
	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 2, sum.Created)
	assert.Zero(t, sum.Updated)
	assert.Empty(t, sum.Errors)

	tool := catalog.tools["files:read_file"]
	require.NotNil(t, tool)
	assert.Equal(t, models.ImplMCPServer, tool.ImplementationType)
	assert.Equal(t, "filesystem", tool.Category)
	assert.Contains(t, tool.ImplementationCode, "files-mcp")
	assert.Contains(t, tool.ImplementationCode, `"tool_name":"read_file"`)
	assert.True(t, tool.IsActive)

	// Missing upstream description gets a placeholder.
	assert.Equal(t, "Tool from files", catalog.tools["files:write_file"].Description)
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	upstream := map[string][]remoteTool{
		"files": {{name: "read_file", description: "reads a file"}},
	}
	s := testService(catalog, upstream, nil)

	first := s.SyncAll(context.Background())[0]
	assert.Equal(t, 1, first.Created)

	second := s.SyncAll(context.Background())[0]
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Deactivated)
}

func TestSyncUpdatesDriftedDefinitions(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	upstream := map[string][]remoteTool{
		"files": {{name: "read_file", description: "reads a file"}},
	}
	s := testService(catalog, upstream, nil)
	s.SyncAll(context.Background())

	upstream["files"][0].description = "reads a file, now with offsets"
	sum := s.SyncAll(context.Background())[0]
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, "reads a file, now with offsets", catalog.tools["files:read_file"].Description)
}

func TestSyncDeactivatesAbsentTools(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	upstream := map[string][]remoteTool{
		"files": {
			{name: "read_file", description: "reads"},
			{name: "write_file", description: "writes"},
		},
	}
	s := testService(catalog, upstream, nil)
	s.SyncAll(context.Background())

	upstream["files"] = upstream["files"][:1]
	sum := s.SyncAll(context.Background())[0]
	assert.Equal(t, 1, sum.Deactivated)
	assert.False(t, catalog.tools["files:write_file"].IsActive)
	assert.True(t, catalog.tools["files:read_file"].IsActive)
}

func TestSyncReactivatesReturnedTools(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	upstream := map[string][]remoteTool{
		"files": {{name: "read_file", description: "reads"}},
	}
	s := testService(catalog, upstream, nil)
	s.SyncAll(context.Background())

	gone := map[string][]remoteTool{"files": nil}
	s.fetch = func(_ context.Context, src config.MCPSource) ([]remoteTool, error) {
		return gone[src.Name], nil
	}
	s.SyncAll(context.Background())
	require.False(t, catalog.tools["files:read_file"].IsActive)

	s.fetch = func(_ context.Context, src config.MCPSource) ([]remoteTool, error) {
		return upstream[src.Name], nil
	}
	sum := s.SyncAll(context.Background())[0]
	assert.Equal(t, 1, sum.Updated) // reactivation counts as an update
	assert.True(t, catalog.tools["files:read_file"].IsActive)
}

func TestSyncSourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	catalog := newFakeCatalog()
	s := testService(catalog, nil, fmt.Errorf("connection refused"))

	summaries := s.SyncAll(context.Background())
	require.Len(t, summaries, 1)
	assert.Zero(t, summaries[0].Fetched)
	require.Len(t, summaries[0].Errors, 1)
	assert.Contains(t, summaries[0].Errors[0], "connection refused")
	assert.Empty(t, catalog.tools)
}

func TestSyncSkipsDisabledSources(t *testing.T) {
	t.Parallel()

	disabled := false
	s := New(newFakeCatalog(), nil, []config.MCPSource{
		{Name: "off", URL: "http://off:1/mcp", Enabled: &disabled},
	}, time.Second, nil)
	s.fetch = func(context.Context, config.MCPSource) ([]remoteTool, error) {
		t.Fatal("disabled source must not be fetched")
		return nil, nil
	}

	assert.Empty(t, s.SyncAll(context.Background()))
}
