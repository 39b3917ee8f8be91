// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// MCPToolDef is one tool advertised by the gateway's MCP surface.
type MCPToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// rawToolDef tolerates the shapes gateways emit: top-level MCP fields,
// snake_case variants, or OpenAI function-tool nesting.
type rawToolDef struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	InputSchemaMCP   map[string]any `json:"inputSchema"`
	InputSchemaSnake map[string]any `json:"input_schema"`
	Function         *struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func (r *rawToolDef) normalize() (MCPToolDef, bool) {
	def := MCPToolDef{
		Name:        r.Name,
		Description: r.Description,
		InputSchema: r.InputSchemaMCP,
	}
	if def.InputSchema == nil {
		def.InputSchema = r.InputSchemaSnake
	}
	if r.Function != nil {
		if def.Name == "" {
			def.Name = r.Function.Name
		}
		if def.Description == "" {
			def.Description = r.Function.Description
		}
		if def.InputSchema == nil {
			def.InputSchema = r.Function.Parameters
		}
	}
	if def.InputSchema == nil {
		def.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return def, def.Name != ""
}

// ListMCPTools fetches the tools the gateway proxies on its MCP
// surface. LiteLLM-style gateways authenticate this endpoint with an
// x-litellm-api-key header rather than a bearer token.
func (c *Client) ListMCPTools(ctx context.Context) ([]MCPToolDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/mcp/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("building tool list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-litellm-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading tool list response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway tool list returned %d: %s",
			models.ErrBackendUnavailable, resp.StatusCode, truncate(data, 512))
	}

	var raw []rawToolDef
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Tools []rawToolDef `json:"tools"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding tool list: %w", err)
		}
		raw = wrapped.Tools
	}

	defs := make([]MCPToolDef, 0, len(raw))
	for i := range raw {
		if def, ok := raw[i].normalize(); ok {
			defs = append(defs, def)
		}
	}
	return defs, nil
}
