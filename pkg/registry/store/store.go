// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package store persists tool definitions, embeddings, and execution
// records in Postgres, using pgvector for dense-vector similarity and
// tsvector ranking for lexical search.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/sync/errgroup"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// lexicalDoc is the text fed to full-text ranking. It must match the
// expression of idx_tools_lexical exactly or the GIN index goes unused.
const lexicalDoc = `name || ' ' || description || ' ' || category || ' ' || coalesce(tags::text, '')`

// dbtx is the subset of pgxpool.Pool and pgx.Tx the write paths use, so
// the same statements run standalone or inside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a Postgres-backed tool store. All methods are safe for
// concurrent use; the underlying pool handles connection reuse.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// Options configures a Store.
type Options struct {
	// DatabaseURL is a Postgres connection string.
	DatabaseURL string

	// Dimension is the embedding vector width the schema must carry.
	Dimension int

	// MaxConns caps the pool size. Zero keeps pgxpool's default.
	MaxConns int32

	// MinConns keeps warm connections in the pool. Zero keeps pgxpool's
	// default.
	MinConns int32

	// AcquireTimeout bounds how long establishing a connection may take.
	AcquireTimeout time.Duration

	// ConnMaxLifetime recycles connections older than this so stale
	// connections are evicted. Zero keeps pgxpool's default.
	ConnMaxLifetime time.Duration

	// ResizeOnMismatch rewrites the embedding column to Dimension when
	// the schema disagrees, clearing stored embeddings, instead of
	// failing startup.
	ResizeOnMismatch bool
}

// New connects to Postgres, registers the pgvector types, applies
// pending migrations, and verifies the embedding column dimension.
func New(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.AcquireTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.AcquireTimeout
	}
	if opts.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = opts.ConnMaxLifetime
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	s := &Store{pool: pool, dimension: opts.Dimension}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if opts.ResizeOnMismatch {
		if err := s.ResizeEmbedding(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if err := s.checkDimension(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Infof("Connected to tool store (dimension=%d)", opts.Dimension)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const toolColumns = `id, name, description, category, tags, input_schema, output_schema,
	implementation_type, implementation_code, version, is_active, metadata,
	created_at, updated_at`

func scanTool(row pgx.Row) (*models.Tool, error) {
	var t models.Tool
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &t.Tags, &t.InputSchema,
		&t.OutputSchema, &t.ImplementationType, &t.ImplementationCode,
		&t.Version, &t.IsActive, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scanning tool: %w", err)
	}
	return &t, nil
}

func createTool(ctx context.Context, db dbtx, t *models.Tool) error {
	err := db.QueryRow(ctx, `
		INSERT INTO tools (name, description, category, tags, input_schema,
			output_schema, implementation_type, implementation_code, version,
			is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		t.Name, t.Description, t.Category, t.Tags, t.InputSchema,
		t.OutputSchema, t.ImplementationType, t.ImplementationCode,
		t.Version, t.IsActive, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: tool %q already exists", models.ErrNameConflict, t.Name)
		}
		return fmt.Errorf("inserting tool %q: %w", t.Name, err)
	}
	return nil
}

func updateTool(ctx context.Context, db dbtx, t *models.Tool) error {
	tag, err := db.Exec(ctx, `
		UPDATE tools SET description = $2, category = $3, tags = $4,
			input_schema = $5, output_schema = $6, implementation_type = $7,
			implementation_code = $8, version = $9, metadata = $10,
			updated_at = now()
		WHERE id = $1`,
		t.ID, t.Description, t.Category, t.Tags, t.InputSchema,
		t.OutputSchema, t.ImplementationType, t.ImplementationCode,
		t.Version, t.Metadata,
	)
	if err != nil {
		return fmt.Errorf("updating tool %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) setEmbedding(ctx context.Context, db dbtx, id int64, vec []float32) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: vector has dimension %d, expected %d",
			models.ErrEmbeddingShape, len(vec), s.dimension)
	}
	tag, err := db.Exec(ctx,
		`UPDATE tools SET embedding = $2, updated_at = now() WHERE id = $1`,
		id, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("storing embedding for tool %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Create inserts a new tool without an embedding; a later reindex pass
// picks it up. A duplicate name yields ErrNameConflict.
func (s *Store) Create(ctx context.Context, t *models.Tool) error {
	return createTool(ctx, s.pool, t)
}

// Update rewrites a tool's definition fields by id.
func (s *Store) Update(ctx context.Context, t *models.Tool) error {
	return updateTool(ctx, s.pool, t)
}

// EmbedFunc computes the embedding for a tool once its row exists.
type EmbedFunc func(ctx context.Context) ([]float32, error)

// CreateEmbedded inserts the tool and its embedding in one transaction.
// An embedding failure rolls the insert back: no tool row is left
// behind.
func (s *Store) CreateEmbedded(ctx context.Context, t *models.Tool, embed EmbedFunc) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := createTool(ctx, tx, t); err != nil {
			return err
		}
		vec, err := embed(ctx)
		if err != nil {
			return err
		}
		return s.setEmbedding(ctx, tx, t.ID, vec)
	})
}

// UpdateEmbedded rewrites the tool's definition and its embedding in one
// transaction, rolling both back if either fails.
func (s *Store) UpdateEmbedded(ctx context.Context, t *models.Tool, embed EmbedFunc) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateTool(ctx, tx, t); err != nil {
			return err
		}
		vec, err := embed(ctx)
		if err != nil {
			return err
		}
		return s.setEmbedding(ctx, tx, t.ID, vec)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get returns a tool by id, active or not.
func (s *Store) Get(ctx context.Context, id int64) (*models.Tool, error) {
	return scanTool(s.pool.QueryRow(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE id = $1`, id))
}

// GetByName returns a tool by its unique name, active or not.
func (s *Store) GetByName(ctx context.Context, name string) (*models.Tool, error) {
	return scanTool(s.pool.QueryRow(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE name = $1`, name))
}

// ListFilter narrows List results.
type ListFilter struct {
	Category   string
	ActiveOnly bool
	NamePrefix string
	Limit      int
	Offset     int
}

// listWhere renders the filter's WHERE clause. Limit and Offset are
// handled by List alone so Count sees the whole filtered set.
func listWhere(filter ListFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		where += ` AND is_active`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.NamePrefix != "" {
		args = append(args, filter.NamePrefix+"%")
		where += fmt.Sprintf(` AND name LIKE $%d`, len(args))
	}
	return where, args
}

// List returns tools matching the filter, ordered by name.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*models.Tool, error) {
	where, args := listWhere(filter)
	query := `SELECT ` + toolColumns + ` FROM tools` + where + ` ORDER BY name`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	defer rows.Close()

	var tools []*models.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// Count reports how many tools match the filter, ignoring pagination.
func (s *Store) Count(ctx context.Context, filter ListFilter) (int64, error) {
	where, args := listWhere(filter)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tools`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tools: %w", err)
	}
	return n, nil
}

// Delete removes a tool permanently. Execution records are kept.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tool %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetActive flips a tool's active flag.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tools SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("setting tool %d active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetEmbedding stores the embedding vector for a tool.
func (s *Store) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	return s.setEmbedding(ctx, s.pool, id, vec)
}

// ClearEmbedding drops a tool's embedding so the next reindex pass
// recomputes it.
func (s *Store) ClearEmbedding(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tools SET embedding = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clearing embedding for tool %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ToolsWithoutEmbeddings returns active tools whose embeddings are
// missing, oldest first, for batch reindexing.
func (s *Store) ToolsWithoutEmbeddings(ctx context.Context, limit int) ([]*models.Tool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+toolColumns+` FROM tools
		 WHERE is_active AND embedding IS NULL
		 ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed tools: %w", err)
	}
	defer rows.Close()

	var tools []*models.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

func (s *Store) semanticRows(ctx context.Context, vec []float32, category string, k int) ([]scoredRow, error) {
	query := `SELECT ` + toolColumns + `, embedding <=> $1 AS distance
		FROM tools WHERE is_active AND embedding IS NOT NULL`
	args := []any{pgvector.NewVector(vec)}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	args = append(args, k)
	query += fmt.Sprintf(` ORDER BY distance ASC, id ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var out []scoredRow
	for rows.Next() {
		var t models.Tool
		var distance float64
		err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Category, &t.Tags, &t.InputSchema,
			&t.OutputSchema, &t.ImplementationType, &t.ImplementationCode,
			&t.Version, &t.IsActive, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning semantic result: %w", err)
		}
		out = append(out, scoredRow{tool: &t, score: semanticScore(distance)})
	}
	return out, rows.Err()
}

func (s *Store) lexicalRows(ctx context.Context, query, category string, k int) ([]scoredRow, error) {
	// Normalization flag 32 maps rank into (0, 1): rank/(rank+1).
	sql := `SELECT ` + toolColumns + `,
		ts_rank_cd(to_tsvector('english', ` + lexicalDoc + `),
			plainto_tsquery('english', $1), 32) AS rank
		FROM tools
		WHERE is_active
		  AND to_tsvector('english', ` + lexicalDoc + `) @@
		      plainto_tsquery('english', $1)`
	args := []any{query}
	if category != "" {
		args = append(args, category)
		sql += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	args = append(args, k)
	sql += fmt.Sprintf(` ORDER BY rank DESC, id ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []scoredRow
	for rows.Next() {
		var t models.Tool
		var rank float64
		err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Category, &t.Tags, &t.InputSchema,
			&t.OutputSchema, &t.ImplementationType, &t.ImplementationCode,
			&t.Version, &t.IsActive, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
			&rank,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning lexical result: %w", err)
		}
		out = append(out, scoredRow{tool: &t, score: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	normalizeLexical(out)
	return out, nil
}

// SemanticSearch returns active tools ranked by cosine similarity to
// the query vector. Scores land in [0, 1].
func (s *Store) SemanticSearch(ctx context.Context, vec []float32, category string, limit int) ([]*models.ScoredTool, error) {
	rows, err := s.semanticRows(ctx, vec, category, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ScoredTool, len(rows))
	for i, row := range rows {
		out[i] = &models.ScoredTool{Tool: row.tool, Score: row.score, SemanticScore: row.score}
	}
	return out, nil
}

// LexicalSearch returns active tools ranked by full-text relevance,
// normalized to [0, 1] within the result set.
func (s *Store) LexicalSearch(ctx context.Context, query, category string, limit int) ([]*models.ScoredTool, error) {
	rows, err := s.lexicalRows(ctx, query, category, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ScoredTool, len(rows))
	for i, row := range rows {
		out[i] = &models.ScoredTool{Tool: row.tool, Score: row.score}
	}
	return out, nil
}

// HybridSearch runs the semantic and lexical legs concurrently, unions
// their candidates, and blends scores with alpha weighting the
// semantic side. Each leg over-fetches so a tool strong on one signal
// but absent from the other's top results still competes.
func (s *Store) HybridSearch(ctx context.Context, vec []float32, query, category string, alpha float64, limit int) ([]*models.ScoredTool, error) {
	fetch := limit * 2
	if fetch < 10 {
		fetch = 10
	}

	var semRows, lexRows []scoredRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semRows, err = s.semanticRows(gctx, vec, category, fetch)
		return err
	})
	g.Go(func() error {
		var err error
		lexRows, err = s.lexicalRows(gctx, query, category, fetch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeHybrid(semRows, lexRows, alpha, limit), nil
}

// FindSimilar returns active tools nearest to the given tool's own
// embedding, excluding the tool itself.
func (s *Store) FindSimilar(ctx context.Context, id int64, limit int) ([]*models.ScoredTool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+toolColumns+`, embedding <=> (SELECT embedding FROM tools WHERE id = $1) AS distance
		FROM tools
		WHERE is_active AND embedding IS NOT NULL AND id <> $1
		ORDER BY distance ASC, id ASC LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("finding similar tools: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoredTool
	for rows.Next() {
		var t models.Tool
		var distance float64
		err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Category, &t.Tags, &t.InputSchema,
			&t.OutputSchema, &t.ImplementationType, &t.ImplementationCode,
			&t.Version, &t.IsActive, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning similar result: %w", err)
		}
		score := semanticScore(distance)
		out = append(out, &models.ScoredTool{Tool: &t, Score: score, SemanticScore: score})
	}
	return out, rows.Err()
}

// ListCategories returns distinct active categories with tool counts.
func (s *Store) ListCategories(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, count(*) FROM tools
		WHERE is_active GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	categories := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories[category] = count
	}
	return categories, rows.Err()
}

// CountIndexed reports how many active tools carry an embedding.
func (s *Store) CountIndexed(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tools WHERE is_active AND embedding IS NOT NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting indexed tools: %w", err)
	}
	return n, nil
}

// Stats aggregates registry-wide counters.
func (s *Store) Stats(ctx context.Context) (*models.RegistryStats, error) {
	var stats models.RegistryStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE is_active),
			count(*) FILTER (WHERE is_active AND embedding IS NOT NULL),
			(SELECT count(*) FROM tool_executions)
		FROM tools`,
	).Scan(&stats.TotalTools, &stats.ActiveTools, &stats.IndexedTools, &stats.TotalExecutions)
	if err != nil {
		return nil, fmt.Errorf("reading registry stats: %w", err)
	}

	byCategory, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	stats.ByCategory = byCategory

	rows, err := s.pool.Query(ctx, `
		SELECT implementation_type, count(*) FROM tools
		WHERE is_active GROUP BY implementation_type`)
	if err != nil {
		return nil, fmt.Errorf("counting implementation types: %w", err)
	}
	defer rows.Close()

	stats.ByImplType = make(map[string]int)
	for rows.Next() {
		var implType string
		var count int
		if err := rows.Scan(&implType, &count); err != nil {
			return nil, fmt.Errorf("scanning implementation type count: %w", err)
		}
		stats.ByImplType[implType] = count
	}
	return &stats, rows.Err()
}

// RecordExecution appends one execution record to the audit trail.
func (s *Store) RecordExecution(ctx context.Context, exec *models.ToolExecution) error {
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	if exec.Arguments == nil {
		exec.Arguments = json.RawMessage(`{}`)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tool_executions (tool_id, tool_name, arguments, output,
			status, error_message, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		exec.ToolID, exec.ToolName, exec.Arguments, exec.Output,
		exec.Status, exec.ErrorMessage, exec.DurationMS, exec.StartedAt,
	).Scan(&exec.ID)
	if err != nil {
		return fmt.Errorf("recording execution of %q: %w", exec.ToolName, err)
	}
	return nil
}

// ListExecutions returns recent execution records, newest first,
// optionally filtered by tool name.
func (s *Store) ListExecutions(ctx context.Context, toolName string, limit int) ([]*models.ToolExecution, error) {
	query := `SELECT id, tool_id, tool_name, arguments, output, status,
		error_message, duration_ms, started_at FROM tool_executions`
	var args []any
	if toolName != "" {
		args = append(args, toolName)
		query += ` WHERE tool_name = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolExecution
	for rows.Next() {
		var e models.ToolExecution
		err := rows.Scan(&e.ID, &e.ToolID, &e.ToolName, &e.Arguments, &e.Output,
			&e.Status, &e.ErrorMessage, &e.DurationMS, &e.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
