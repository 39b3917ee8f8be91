// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/discovery"
	"github.com/arcfield/toolgate/pkg/executor"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/retrieval"
)

const testAPIKey = "test-admin-key"

type fakeCatalog struct {
	tools         map[int64]*models.Tool
	registerErr   error
	lastFilter    store.ListFilter
	lastAutoEmbed bool
	total         int64
	reindexed     []int64
	deleted       []int64
	active        map[int64]bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tools: map[int64]*models.Tool{}, active: map[int64]bool{}}
}

func (f *fakeCatalog) Register(_ context.Context, tool *models.Tool, autoEmbed bool) (*models.Tool, error) {
	f.lastAutoEmbed = autoEmbed
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	tool.ID = int64(len(f.tools) + 1)
	f.tools[tool.ID] = tool
	return tool, nil
}

func (f *fakeCatalog) Update(_ context.Context, id int64, tool *models.Tool) (*models.Tool, error) {
	if _, ok := f.tools[id]; !ok {
		return nil, models.ErrNotFound
	}
	f.tools[id] = tool
	return tool, nil
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (*models.Tool, error) {
	tool, ok := f.tools[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return tool, nil
}

func (f *fakeCatalog) List(_ context.Context, filter store.ListFilter) ([]*models.Tool, error) {
	f.lastFilter = filter
	out := make([]*models.Tool, 0, len(f.tools))
	for _, t := range f.tools {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeCatalog) Count(_ context.Context, _ store.ListFilter) (int64, error) {
	if f.total > 0 {
		return f.total, nil
	}
	return int64(len(f.tools)), nil
}

func (f *fakeCatalog) Delete(_ context.Context, id int64) error {
	if _, ok := f.tools[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.tools, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCatalog) Activate(_ context.Context, id int64) error {
	f.active[id] = true
	return nil
}

func (f *fakeCatalog) Deactivate(_ context.Context, id int64) error {
	f.active[id] = false
	return nil
}

func (f *fakeCatalog) ReindexTool(_ context.Context, id int64) error {
	if _, ok := f.tools[id]; !ok {
		return models.ErrNotFound
	}
	f.reindexed = append(f.reindexed, id)
	return nil
}

func (f *fakeCatalog) Stats(context.Context) (*models.RegistryStats, error) {
	return &models.RegistryStats{TotalTools: len(f.tools)}, nil
}

func (*fakeCatalog) ListExecutions(context.Context, string, int) ([]*models.ToolExecution, error) {
	return nil, nil
}

type fakeSearcher struct {
	lastQuery retrieval.Query
	result    *retrieval.Result
	err       error
}

func (f *fakeSearcher) FindTool(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.lastQuery = q
	return f.result, f.err
}

type fakeAPICaller struct {
	result *executor.CallResult
	err    error
}

func (f *fakeAPICaller) CallTool(context.Context, string, map[string]any) (*executor.CallResult, error) {
	return f.result, f.err
}

type fakeSyncer struct {
	summaries []discovery.SourceSummary
	lastOne   string
	oneErr    error
}

func (f *fakeSyncer) SyncAll(context.Context) []discovery.SourceSummary {
	return f.summaries
}

func (f *fakeSyncer) SyncOne(_ context.Context, name string) (discovery.SourceSummary, error) {
	f.lastOne = name
	if f.oneErr != nil {
		return discovery.SourceSummary{}, f.oneErr
	}
	return discovery.SourceSummary{Source: name}, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

type testDeps struct {
	catalog  *fakeCatalog
	searcher *fakeSearcher
	caller   *fakeAPICaller
	syncer   *fakeSyncer
	pinger   *fakePinger
}

func newTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		catalog:  newFakeCatalog(),
		searcher: &fakeSearcher{result: &retrieval.Result{Query: "q"}},
		caller:   &fakeAPICaller{},
		syncer:   &fakeSyncer{},
		pinger:   &fakePinger{},
	}
	cfg := &config.Config{
		Host:           "127.0.0.1",
		Port:           0,
		MaxRequestBody: 1 << 20,
		AdminAPIKey:    testAPIKey,
		CORSOrigins:    []string{"http://localhost:3000"},
	}
	srv := New(cfg, Deps{
		Catalog:  deps.catalog,
		Searcher: deps.searcher,
		Caller:   deps.caller,
		Syncer:   deps.syncer,
		Pinger:   deps.pinger,
	})
	return srv, deps
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestProbes(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	deps.pinger.err = errors.New("connection refused")
	rec = doJSON(t, h, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := &config.Config{Host: "127.0.0.1", MaxRequestBody: 1 << 20, CORSOrigins: []string{"*"}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP toolgate_tool_calls_total\n"))
	})
	srv = New(cfg, Deps{Pinger: &fakePinger{}, Metrics: metrics})
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "toolgate_tool_calls_total")
}

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/admin/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/stats", nil, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/admin/stats", nil, testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuthUnconfigured(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Catalog:  newFakeCatalog(),
		Searcher: &fakeSearcher{},
		Caller:   &fakeAPICaller{},
		Syncer:   &fakeSyncer{},
		Pinger:   &fakePinger{},
	}
	srv := New(&config.Config{Host: "127.0.0.1", MaxRequestBody: 1 << 20}, deps)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/admin/stats", nil, "any")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFindToolEndpoint(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.searcher.result = &retrieval.Result{
		Query: "parse yaml",
		Tools: []*models.ScoredTool{},
	}

	useHybrid := false
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/find_tool", map[string]any{
		"query":      "parse yaml",
		"limit":      3,
		"use_hybrid": useHybrid,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result retrieval.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "parse yaml", result.Query)

	assert.Equal(t, 3, deps.searcher.lastQuery.Limit)
	require.NotNil(t, deps.searcher.lastQuery.UseHybrid)
	assert.False(t, *deps.searcher.lastQuery.UseHybrid)
}

func TestFindToolEndpointHybridUnspecified(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.searcher.result = &retrieval.Result{Query: "parse yaml", Tools: []*models.ScoredTool{}}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/find_tool", map[string]any{
		"query": "parse yaml",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Absent use_hybrid leaves the choice to the server configuration.
	assert.Nil(t, deps.searcher.lastQuery.UseHybrid)
}

func TestFindToolEndpointInvalidQuery(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.searcher.err = fmt.Errorf("%w: query text is required", models.ErrInvalidInput)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/find_tool", map[string]any{"query": ""}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindToolEndpointBadJSON(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp/find_tool", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallToolEndpoint(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.caller.result = &executor.CallResult{
		ToolName: "calc",
		Status:   models.StatusSuccess,
		Output:   map[string]any{"result": float64(4)},
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/call_tool", map[string]any{
		"tool_name": "calc",
		"arguments": map[string]any{"expr": "2+2"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result executor.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusSuccess, result.Status)
}

func TestCallToolEndpointNotFound(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.caller.err = &executor.NotFoundError{Name: "nope"}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/call_tool", map[string]any{
		"tool_name": "nope",
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallToolEndpointExecutionFailure(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.caller.result = &executor.CallResult{
		ToolName: "flaky",
		Status:   models.StatusError,
		Error:    "upstream returned 500",
	}
	deps.caller.err = models.ErrBackendUnavailable

	// A completed execution reports its failure in the body, not the
	// HTTP status.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/call_tool", map[string]any{
		"tool_name": "flaky",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result executor.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusError, result.Status)
}

func TestCallToolEndpointTimeout(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.caller.result = &executor.CallResult{
		ToolName: "slow",
		Status:   models.StatusTimeout,
		Error:    "execution timed out after 30s",
	}
	deps.caller.err = fmt.Errorf("calling slow: %w", models.ErrTimeout)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/call_tool", map[string]any{
		"tool_name": "slow",
	}, "")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var result executor.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusTimeout, result.Status)
}

func TestListToolsEndpoint(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.catalog.total = 7

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/list_tools", map[string]any{
		"category": "math",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "math", deps.catalog.lastFilter.Category)
	assert.True(t, deps.catalog.lastFilter.ActiveOnly)
	assert.Equal(t, 50, deps.catalog.lastFilter.Limit)

	// total reports the filtered catalog size, not the page size.
	var resp struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Total)
}

func TestAdminToolLifecycle(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	h := srv.Handler()

	tool := map[string]any{
		"name":                "calc",
		"description":         "evaluates arithmetic",
		"category":            "math",
		"input_schema":        map[string]any{"type": "object"},
		"implementation_type": "HTTP_ENDPOINT",
	}
	rec := doJSON(t, h, http.MethodPost, "/admin/tools", tool, testAPIKey)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Tool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/admin/tools/%d", created.ID),
		map[string]any{"description": "evaluates arithmetic expressions"}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Tool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "evaluates arithmetic expressions", updated.Description)
	assert.Equal(t, "calc", updated.Name)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/admin/tools/%d/reindex", created.ID), nil, testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{created.ID}, deps.catalog.reindexed)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/admin/tools/%d/deactivate", created.ID), nil, testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, deps.catalog.active[created.ID])

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/admin/tools/%d", created.ID), nil, testAPIKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminRegisterConflict(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.catalog.registerErr = models.ErrNameConflict

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/admin/tools", map[string]any{
		"name": "dup",
	}, testAPIKey)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminRegisterAutoEmbed(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	h := srv.Handler()

	tool := map[string]any{
		"name":                "calc",
		"description":         "evaluates arithmetic",
		"category":            "math",
		"input_schema":        map[string]any{"type": "object"},
		"implementation_type": "HTTP_ENDPOINT",
	}

	// auto_embed defaults to true when the field is absent.
	rec := doJSON(t, h, http.MethodPost, "/admin/tools", tool, testAPIKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, deps.catalog.lastAutoEmbed)

	tool["name"] = "calc2"
	tool["auto_embed"] = false
	rec = doJSON(t, h, http.MethodPost, "/admin/tools", tool, testAPIKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, deps.catalog.lastAutoEmbed)
}

func TestAdminToolNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/admin/tools/99", nil, testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/admin/tools/bogus", nil, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSync(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.syncer.summaries = []discovery.SourceSummary{{Source: "a"}, {Source: "b"}}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/admin/mcp/sync", map[string]any{}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []discovery.SourceSummary `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sources, 2)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/admin/mcp/sync",
		map[string]any{"source": "a"}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", deps.syncer.lastOne)

	deps.syncer.oneErr = fmt.Errorf("%w: unknown discovery source", models.ErrNotFound)
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/admin/mcp/sync",
		map[string]any{"source": "missing"}, testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackendErrorHidesDetail(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t)
	deps.searcher.result = nil
	deps.searcher.err = fmt.Errorf("%w: embedding endpoint returned 503", models.ErrEmbeddingFailed)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/find_tool",
		map[string]any{"query": "anything"}, "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "upstream failure", body.Error)
	assert.NotEmpty(t, body.CorrelationID)
	assert.NotContains(t, rec.Body.String(), "503")
}

func TestRequestBodyCap(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Catalog:  newFakeCatalog(),
		Searcher: &fakeSearcher{result: &retrieval.Result{}},
		Caller:   &fakeAPICaller{},
		Syncer:   &fakeSyncer{},
		Pinger:   &fakePinger{},
	}
	srv := New(&config.Config{Host: "127.0.0.1", MaxRequestBody: 64}, deps)

	big := map[string]any{"query": string(bytes.Repeat([]byte("x"), 256))}
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/find_tool", big, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
