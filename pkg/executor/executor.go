// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package executor routes tool calls to their backing implementation:
// registered in-process callables, HTTP endpoints, upstream MCP
// servers, the LLM gateway, or allow-listed command lines.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/xeipuuv/gojsonschema"

	"github.com/arcfield/toolgate/pkg/gateway"
	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/summarizer"
	"github.com/arcfield/toolgate/pkg/telemetry"
)

// recordCap bounds how much of the arguments and output lands in the
// audit trail.
const recordCap = 8 << 10

// maxSuggestions caps the fuzzy matches attached to a not-found error.
const maxSuggestions = 3

// Options configures a Router.
type Options struct {
	// DefaultTimeout bounds a call when the tool sets no override.
	// Defaults to 30s.
	DefaultTimeout time.Duration

	// MaxTimeout is the hard ceiling any per-tool override is clamped
	// to. Defaults to 300s.
	MaxTimeout time.Duration

	// HTTPClient overrides the client used for HTTP_ENDPOINT tools.
	HTTPClient *http.Client

	// Metrics receives per-call recordings. Defaults to a no-op.
	Metrics telemetry.Metrics
}

// Router resolves tool names and dispatches calls by implementation
// type, recording every attempt in the execution audit trail.
type Router struct {
	registry   *registry.Registry
	gw         *gateway.Client
	callables  *CallableRegistry
	summarizer *summarizer.Summarizer
	httpClient *http.Client
	opts       Options
}

// New wires a Router. The gateway and summarizer may be nil when those
// backends are not configured; calls needing them fail cleanly.
func New(reg *registry.Registry, gw *gateway.Client, callables *CallableRegistry, sum *summarizer.Summarizer, opts Options) (*Router, error) {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 300 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = newBackendHTTPClient(opts.DefaultTimeout)
		if err != nil {
			return nil, err
		}
	}
	if callables == nil {
		callables = NewCallableRegistry(false, nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoop()
	}
	return &Router{
		registry:   reg,
		gw:         gw,
		callables:  callables,
		summarizer: sum,
		httpClient: httpClient,
		opts:       opts,
	}, nil
}

// CallResult is the outcome of one tool call.
type CallResult struct {
	ToolName   string                 `json:"tool_name"`
	Status     models.ExecutionStatus `json:"status"`
	Output     any                    `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`

	// Summarized reports whether Output was reduced, either by the
	// summarizer or by truncation fallback.
	Summarized bool `json:"was_summarized"`
}

// CallTool resolves, validates, executes, and records one tool call.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	tool, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if !tool.IsActive {
		return nil, fmt.Errorf("%w: tool %q is deactivated", models.ErrToolInactive, name)
	}
	if err := r.validateArgs(tool, args); err != nil {
		return nil, err
	}

	timeout := r.timeoutFor(tool)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, execErr := r.dispatch(callCtx, tool, args)
	duration := time.Since(start)

	result := &CallResult{
		ToolName:   tool.Name,
		DurationMS: duration.Milliseconds(),
	}
	switch {
	case execErr == nil:
		result.Status = models.StatusSuccess
		result.Output = output
	case errors.Is(execErr, models.ErrTimeout) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		result.Status = models.StatusTimeout
		result.Error = fmt.Sprintf("execution exceeded %s deadline", timeout)
		execErr = fmt.Errorf("%w: tool %q exceeded %s", models.ErrTimeout, tool.Name, timeout)
	default:
		result.Status = models.StatusError
		result.Error = execErr.Error()
	}

	r.record(ctx, tool, args, result)
	r.opts.Metrics.ToolCall(tool.Name, string(result.Status), duration)
	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

// CallToolSummarized executes the tool and compresses its output when
// it exceeds maxTokens. Summarized is reported even when the summarizer
// fell back to truncation.
func (r *Router) CallToolSummarized(ctx context.Context, name string, args map[string]any, maxTokens int, userQuery string) (*CallResult, error) {
	result, err := r.CallTool(ctx, name, args)
	if err != nil {
		return result, err
	}
	if r.summarizer == nil {
		return result, nil
	}
	processed, summarized := r.summarizer.SummarizeIfNeeded(ctx, result.Output, maxTokens, userQuery, name)
	result.Output = processed
	result.Summarized = summarized
	return result, nil
}

// resolve finds a tool by exact name, attaching fuzzy suggestions to
// the miss so agents can self-correct.
func (r *Router) resolve(ctx context.Context, name string) (*models.Tool, error) {
	tool, err := r.registry.GetByName(ctx, name)
	if err == nil {
		return tool, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return nil, &NotFoundError{Name: name, Suggestions: r.suggest(ctx, name)}
}

func (r *Router) suggest(ctx context.Context, name string) []string {
	tools, err := r.registry.List(ctx, store.ListFilter{ActiveOnly: true})
	if err != nil {
		logger.Debugf("Could not list tools for suggestions: %v", err)
		return nil
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	matches := fuzzy.Find(name, names)
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	suggestions := make([]string, len(matches))
	for i, m := range matches {
		suggestions[i] = m.Str
	}
	return suggestions
}

// validateArgs checks call arguments against the tool's input schema.
func (r *Router) validateArgs(tool *models.Tool, args map[string]any) error {
	if tool.InputSchema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(tool.InputSchema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSchemaInvalid, err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", resultErr.Field(), resultErr.Description()))
	}
	return &ValidationError{ToolName: tool.Name, Details: details}
}

// timeoutFor returns the effective deadline for a tool: the
// metadata.timeout_seconds override clamped to the ceiling, otherwise
// the default.
func (r *Router) timeoutFor(tool *models.Tool) time.Duration {
	timeout := r.opts.DefaultTimeout
	if tool.Metadata != nil {
		if raw, ok := tool.Metadata["timeout_seconds"]; ok {
			if seconds, ok := raw.(float64); ok && seconds > 0 {
				timeout = time.Duration(seconds * float64(time.Second))
			}
		}
	}
	if timeout > r.opts.MaxTimeout {
		timeout = r.opts.MaxTimeout
	}
	return timeout
}

func (r *Router) dispatch(ctx context.Context, tool *models.Tool, args map[string]any) (any, error) {
	switch tool.ImplementationType {
	case models.ImplPythonCallable:
		return r.callables.Call(ctx, tool.ImplementationCode, args)
	case models.ImplHTTPEndpoint:
		return callHTTPEndpoint(ctx, r.httpClient, tool.ImplementationCode, args)
	case models.ImplMCPServer:
		return callMCPServer(ctx, tool, args)
	case models.ImplLLMGateway:
		return callLLMGateway(ctx, r.gw, tool.ImplementationCode, args)
	case models.ImplCommandLine:
		return callCommandLine(ctx, tool.ImplementationCode, args)
	default:
		return nil, fmt.Errorf("%w: implementation type %q is not supported",
			models.ErrInvalidTool, tool.ImplementationType)
	}
}

// record appends the call to the audit trail. Recording failures are
// logged, never surfaced; the call outcome stands on its own.
func (r *Router) record(ctx context.Context, tool *models.Tool, args map[string]any, result *CallResult) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte(`{}`)
	}
	var outputJSON json.RawMessage
	if result.Output != nil {
		if data, err := json.Marshal(result.Output); err == nil {
			outputJSON = capJSON(data)
		}
	}

	exec := &models.ToolExecution{
		ToolID:       tool.ID,
		ToolName:     tool.Name,
		Arguments:    capJSON(argsJSON),
		Output:       outputJSON,
		Status:       result.Status,
		ErrorMessage: result.Error,
		DurationMS:   result.DurationMS,
		StartedAt:    time.Now().UTC().Add(-time.Duration(result.DurationMS) * time.Millisecond),
	}
	// The caller's deadline may already be spent (timeout path); the
	// audit row must still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.registry.RecordExecution(recordCtx, exec); err != nil {
		logger.Warnf("Failed to record execution of %q: %v", tool.Name, err)
	}
}

// capJSON truncates an audit payload, replacing it with a stub that
// stays valid JSON.
func capJSON(data []byte) json.RawMessage {
	if len(data) <= recordCap {
		return data
	}
	stub, _ := json.Marshal(map[string]any{
		"truncated":      true,
		"original_bytes": len(data),
	})
	return stub
}
