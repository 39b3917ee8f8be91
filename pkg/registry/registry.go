// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package registry manages the tool catalog: registration, updates,
// lifecycle flags, and keeping embeddings in sync with definitions.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/embeddings"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
)

// Store is the persistence surface the registry drives. *store.Store
// implements it; tests substitute a fake.
type Store interface {
	Create(ctx context.Context, t *models.Tool) error
	CreateEmbedded(ctx context.Context, t *models.Tool, embed store.EmbedFunc) error
	Update(ctx context.Context, t *models.Tool) error
	UpdateEmbedded(ctx context.Context, t *models.Tool, embed store.EmbedFunc) error
	Get(ctx context.Context, id int64) (*models.Tool, error)
	GetByName(ctx context.Context, name string) (*models.Tool, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Tool, error)
	Count(ctx context.Context, filter store.ListFilter) (int64, error)
	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetEmbedding(ctx context.Context, id int64, vec []float32) error
	ToolsWithoutEmbeddings(ctx context.Context, limit int) ([]*models.Tool, error)
	ListCategories(ctx context.Context) (map[string]int, error)
	Stats(ctx context.Context) (*models.RegistryStats, error)
	RecordExecution(ctx context.Context, exec *models.ToolExecution) error
	ListExecutions(ctx context.Context, toolName string, limit int) ([]*models.ToolExecution, error)
}

var _ Store = (*store.Store)(nil)

// Registry is the write-side service for the tool catalog.
type Registry struct {
	store    Store
	embedder embeddings.Client
}

// New wires a Registry over its store and embedding client.
func New(s Store, embedder embeddings.Client) *Registry {
	return &Registry{store: s, embedder: embedder}
}

// validateSchema checks that a declared input schema is itself a
// compilable JSON Schema, so malformed schemas fail at registration
// instead of at call time.
func validateSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrSchemaInvalid, err)
	}
	return nil
}

// Register validates and inserts a new tool. With autoEmbed the
// embedding is computed and stored in the same transaction as the
// insert, and an embedding failure rolls the registration back. Without
// it the tool lands unembedded; the next reindex pass picks it up.
func (r *Registry) Register(ctx context.Context, tool *models.Tool, autoEmbed bool) (*models.Tool, error) {
	if err := tool.Validate(); err != nil {
		return nil, err
	}
	if err := validateSchema(tool.InputSchema); err != nil {
		return nil, err
	}
	tool.IsActive = true
	if tool.Version == "" {
		tool.Version = "1.0.0"
	}

	var err error
	if autoEmbed {
		err = r.store.CreateEmbedded(ctx, tool, r.embedFunc(tool))
	} else {
		err = r.store.Create(ctx, tool)
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("Registered tool %q (id=%d, type=%s)", tool.Name, tool.ID, tool.ImplementationType)
	return tool, nil
}

// Update rewrites a tool's definition. The embedding is recomputed only
// when the fields feeding the embedding text actually changed, in the
// same transaction as the definition rewrite.
func (r *Registry) Update(ctx context.Context, id int64, updated *models.Tool) (*models.Tool, error) {
	existing, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated.ID = id
	updated.Name = existing.Name // names are immutable once registered
	updated.IsActive = existing.IsActive
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := validateSchema(updated.InputSchema); err != nil {
		return nil, err
	}

	if existing.EmbeddingText() != updated.EmbeddingText() {
		err = r.store.UpdateEmbedded(ctx, updated, r.embedFunc(updated))
	} else {
		err = r.store.Update(ctx, updated)
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("Updated tool %q (id=%d)", updated.Name, id)
	return updated, nil
}

// embedFunc defers the embedding call so the store can run it between
// the row write and the commit.
func (r *Registry) embedFunc(tool *models.Tool) store.EmbedFunc {
	return func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, tool.EmbeddingText())
	}
}

// Activate marks a tool searchable and executable again.
func (r *Registry) Activate(ctx context.Context, id int64) error {
	return r.store.SetActive(ctx, id, true)
}

// Deactivate hides a tool from search and blocks execution without
// losing its definition or history.
func (r *Registry) Deactivate(ctx context.Context, id int64) error {
	return r.store.SetActive(ctx, id, false)
}

// Delete removes a tool permanently. Execution history is retained.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Infof("Deleted tool id=%d", id)
	return nil
}

// Get returns a tool by id.
func (r *Registry) Get(ctx context.Context, id int64) (*models.Tool, error) {
	return r.store.Get(ctx, id)
}

// GetByName returns a tool by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*models.Tool, error) {
	return r.store.GetByName(ctx, name)
}

// List returns catalog entries matching the filter.
func (r *Registry) List(ctx context.Context, filter store.ListFilter) ([]*models.Tool, error) {
	return r.store.List(ctx, filter)
}

// Count reports how many tools match the filter, ignoring pagination.
func (r *Registry) Count(ctx context.Context, filter store.ListFilter) (int64, error) {
	return r.store.Count(ctx, filter)
}

// ListCategories returns active categories with their tool counts.
func (r *Registry) ListCategories(ctx context.Context) (map[string]int, error) {
	return r.store.ListCategories(ctx)
}

// Stats aggregates catalog counters.
func (r *Registry) Stats(ctx context.Context) (*models.RegistryStats, error) {
	return r.store.Stats(ctx)
}

// ReindexResult reports one reindex pass.
type ReindexResult struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Reindex embeds every active tool that is missing a vector, in batches.
// Partial failure is tolerated; the next pass retries what remains.
func (r *Registry) Reindex(ctx context.Context, batchSize int) (*ReindexResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	result := &ReindexResult{}
	for {
		tools, err := r.store.ToolsWithoutEmbeddings(ctx, batchSize)
		if err != nil {
			return result, err
		}
		if len(tools) == 0 {
			break
		}

		texts := make([]string, len(tools))
		for i, t := range tools {
			texts[i] = t.EmbeddingText()
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, models.ErrEmbeddingFailed) {
				result.Failed += len(tools)
				return result, err
			}
			return result, err
		}
		var stored int
		for i, t := range tools {
			if err := r.store.SetEmbedding(ctx, t.ID, vectors[i]); err != nil {
				logger.Warnf("Failed to store embedding for tool %q: %v", t.Name, err)
				result.Failed++
				continue
			}
			stored++
		}
		result.Embedded += stored
		// Nothing stored means we would refetch the same batch forever.
		if stored == 0 {
			break
		}
	}
	if result.Embedded > 0 {
		logger.Infof("Reindex complete: embedded %d tools, %d failed", result.Embedded, result.Failed)
	}
	return result, nil
}

// ReindexTool regenerates the embedding for a single tool.
func (r *Registry) ReindexTool(ctx context.Context, id int64) error {
	tool, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	vec, err := r.embedder.Embed(ctx, tool.EmbeddingText())
	if err != nil {
		return err
	}
	return r.store.SetEmbedding(ctx, tool.ID, vec)
}

// RecordExecution appends to the execution audit trail.
func (r *Registry) RecordExecution(ctx context.Context, exec *models.ToolExecution) error {
	return r.store.RecordExecution(ctx, exec)
}

// ListExecutions returns recent executions, optionally for one tool.
func (r *Registry) ListExecutions(ctx context.Context, toolName string, limit int) ([]*models.ToolExecution, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return r.store.ListExecutions(ctx, toolName, limit)
}
