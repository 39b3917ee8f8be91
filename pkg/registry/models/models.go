// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package models defines the registry's domain model: tools, their
// implementation routing, and execution audit rows.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// NameMaxLen is the maximum length of a tool name.
const NameMaxLen = 255

// TagMaxLen is the maximum length of a single tag.
const TagMaxLen = 64

// namePattern restricts tool names to ASCII letters, digits and :_- so they
// stay routable through MCP and URL paths. The colon separates a discovery
// source prefix from the remote tool name.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)

// Tool is the registry's primary entity. Embedding is nil until the indexing
// pipeline has run; retrieval filters unembedded rows on the semantic leg.
type Tool struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	Category           string             `json:"category"`
	Tags               []string           `json:"tags"`
	InputSchema        map[string]any     `json:"input_schema"`
	OutputSchema       map[string]any     `json:"output_schema,omitempty"`
	ImplementationType ImplementationType `json:"implementation_type"`
	ImplementationCode string             `json:"implementation_code,omitempty"`
	Version            string             `json:"version"`
	Embedding          []float32          `json:"-"` // stored in the vector column, never serialized
	IsActive           bool               `json:"is_active"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Validate checks the invariants that must hold before a tool is persisted.
func (t *Tool) Validate() error {
	if t.Name == "" || len(t.Name) > NameMaxLen {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidTool, NameMaxLen)
	}
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: name %q may only contain ASCII letters, digits, ':', '_' and '-'",
			ErrInvalidTool, t.Name)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidTool)
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTool)
	}
	for _, tag := range t.Tags {
		if len(tag) > TagMaxLen {
			return fmt.Errorf("%w: tag %q exceeds %d characters", ErrInvalidTool, tag, TagMaxLen)
		}
	}
	if t.InputSchema == nil {
		return fmt.Errorf("%w: input schema is required", ErrInvalidTool)
	}
	if !t.ImplementationType.Valid() {
		return fmt.Errorf("%w: unknown implementation type %q", ErrInvalidTool, t.ImplementationType)
	}
	return nil
}

// EmbeddingText returns the canonical text fed to the embedding model.
// Any change to this text triggers re-embedding on update.
func (t *Tool) EmbeddingText() string {
	return fmt.Sprintf("%s\n%s\nCategory: %s\nTags: %s",
		t.Name, t.Description, t.Category, strings.Join(t.Tags, ", "))
}

// DefinitionHash returns a stable digest over the fields discovery compares
// when deciding whether an upstream tool changed. Tags are sorted so ordering
// differences do not register as changes.
func (t *Tool) DefinitionHash() string {
	tags := append([]string(nil), t.Tags...)
	sort.Strings(tags)
	schema, _ := json.Marshal(t.InputSchema)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", t.Description, schema, t.Category, strings.Join(tags, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// SourcePrefix returns the discovery source prefix of a namespaced name,
// or "" when the name is not namespaced.
func (t *Tool) SourcePrefix() string {
	if i := strings.IndexByte(t.Name, ':'); i > 0 {
		return t.Name[:i]
	}
	return ""
}

// RemoteName returns the tool's name as known by its upstream source.
func (t *Tool) RemoteName() string {
	if i := strings.IndexByte(t.Name, ':'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// ToolExecution is an append-only audit row. It references a tool by id but
// carries no foreign-key cascade: executions survive tool deletion.
type ToolExecution struct {
	ID           int64           `json:"id"`
	ToolID       int64           `json:"tool_id"`
	ToolName     string          `json:"tool_name"`
	Arguments    json.RawMessage `json:"arguments"`
	Output       json.RawMessage `json:"output,omitempty"`
	Status       ExecutionStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	StartedAt    time.Time       `json:"started_at"`
}

// ScoredTool pairs a tool with its search score. Score semantics depend on
// the producing query: similarity in [0,1] for semantic search, normalized
// rank for lexical, blended for hybrid.
type ScoredTool struct {
	Tool  *Tool   `json:"tool"`
	Score float64 `json:"score"`
	// SemanticScore is the semantic component of a hybrid score. Retrieval
	// thresholds on this value, not the blend, so that lexical-only noise
	// cannot clear the bar. Equal to Score for pure semantic results.
	SemanticScore float64 `json:"-"`
}

// RegistryStats summarizes the catalog for the tools://stats resource.
type RegistryStats struct {
	TotalTools      int            `json:"total_tools"`
	ActiveTools     int            `json:"active_tools"`
	IndexedTools    int            `json:"indexed_tools"`
	TotalExecutions int64          `json:"total_executions"`
	ByCategory      map[string]int `json:"by_category"`
	ByImplType      map[string]int `json:"by_implementation_type"`
}
