// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTool() *Tool {
	return &Tool{
		Name:               "calculator",
		Description:        "basic arithmetic",
		Category:           "math",
		Tags:               []string{"add", "math"},
		InputSchema:        map[string]any{"type": "object"},
		ImplementationType: ImplPythonCallable,
		Version:            "1.0.0",
	}
}

func TestToolValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Tool)
		wantErr string
	}{
		{name: "valid", mutate: func(*Tool) {}},
		{name: "namespaced name", mutate: func(tool *Tool) { tool.Name = "files:read_file" }},
		{name: "empty name", mutate: func(tool *Tool) { tool.Name = "" }, wantErr: "name must be"},
		{
			name:    "overlong name",
			mutate:  func(tool *Tool) { tool.Name = strings.Repeat("a", NameMaxLen+1) },
			wantErr: "name must be",
		},
		{
			name:    "name with spaces",
			mutate:  func(tool *Tool) { tool.Name = "my tool" },
			wantErr: "may only contain",
		},
		{
			name:    "name with unicode",
			mutate:  func(tool *Tool) { tool.Name = "outil-été" },
			wantErr: "may only contain",
		},
		{name: "blank description", mutate: func(tool *Tool) { tool.Description = "  " }, wantErr: "description is required"},
		{name: "blank category", mutate: func(tool *Tool) { tool.Category = "" }, wantErr: "category is required"},
		{
			name:    "overlong tag",
			mutate:  func(tool *Tool) { tool.Tags = []string{strings.Repeat("x", TagMaxLen+1)} },
			wantErr: "exceeds",
		},
		{name: "nil schema", mutate: func(tool *Tool) { tool.InputSchema = nil }, wantErr: "input schema is required"},
		{
			name:    "bogus implementation type",
			mutate:  func(tool *Tool) { tool.ImplementationType = "MAGIC" },
			wantErr: "unknown implementation type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tool := validTool()
			tt.mutate(tool)
			err := tool.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
				require.ErrorIs(t, err, ErrInvalidTool)
			}
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	t.Parallel()

	tool := validTool()
	assert.Equal(t, "calculator\nbasic arithmetic\nCategory: math\nTags: add, math", tool.EmbeddingText())

	tool.Tags = nil
	assert.Equal(t, "calculator\nbasic arithmetic\nCategory: math\nTags: ", tool.EmbeddingText())
}

func TestDefinitionHash(t *testing.T) {
	t.Parallel()

	a := validTool()
	b := validTool()
	assert.Equal(t, a.DefinitionHash(), b.DefinitionHash())

	// Tag order must not register as a change.
	b.Tags = []string{"math", "add"}
	assert.Equal(t, a.DefinitionHash(), b.DefinitionHash())

	b.Description = "different"
	assert.NotEqual(t, a.DefinitionHash(), b.DefinitionHash())

	c := validTool()
	c.InputSchema = map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}}
	assert.NotEqual(t, a.DefinitionHash(), c.DefinitionHash())
}

func TestSourcePrefix(t *testing.T) {
	t.Parallel()

	tool := validTool()
	assert.Empty(t, tool.SourcePrefix())
	assert.Equal(t, "calculator", tool.RemoteName())

	tool.Name = "files:read_file"
	assert.Equal(t, "files", tool.SourcePrefix())
	assert.Equal(t, "read_file", tool.RemoteName())
}

func TestImplementationTypeScan(t *testing.T) {
	t.Parallel()

	var impl ImplementationType
	require.NoError(t, impl.Scan("MCP_SERVER"))
	assert.Equal(t, ImplMCPServer, impl)

	require.Error(t, impl.Scan("NOPE"))
	require.Error(t, impl.Scan(nil))
	require.Error(t, impl.Scan(42))

	_, err := ImplementationType("NOPE").Value()
	require.Error(t, err)
}

func TestExecutionStatusScan(t *testing.T) {
	t.Parallel()

	var status ExecutionStatus
	require.NoError(t, status.Scan("TIMEOUT"))
	assert.Equal(t, StatusTimeout, status)
	require.Error(t, status.Scan("RUNNING"))

	v, err := StatusSuccess.Value()
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", v)
}
