// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/arcfield/toolgate/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies any pending schema migrations. It borrows a
// database/sql handle from the pool's config so goose can drive it.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}

	before, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if after != before {
		logger.Infof("Applied schema migrations: v%d -> v%d", before, after)
	} else {
		logger.Debugf("Schema up to date at v%d", after)
	}
	return nil
}

// ResizeEmbedding rewrites the embedding column to the configured
// dimension: drop the vector index, alter the column, null the now
// incompatible embeddings, rebuild the index. Tools must be reindexed
// afterwards.
func (s *Store) ResizeEmbedding(ctx context.Context) error {
	var current int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'tools'::regclass AND attname = 'embedding'`,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("inspecting embedding column: %w", err)
	}
	if current == s.dimension {
		logger.Infof("Embedding column already vector(%d)", s.dimension)
		return nil
	}

	logger.Warnf("Resizing embedding column vector(%d) -> vector(%d); existing embeddings are cleared",
		current, s.dimension)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting resize transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The index must go before the column type can change.
	steps := []string{
		`DROP INDEX IF EXISTS idx_tools_embedding`,
		fmt.Sprintf(`ALTER TABLE tools ALTER COLUMN embedding TYPE vector(%d) USING NULL::vector(%d)`,
			s.dimension, s.dimension),
		`CREATE INDEX idx_tools_embedding ON tools USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("resizing embedding column: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing resize: %w", err)
	}
	return nil
}

// checkDimension verifies the tools.embedding column width matches the
// configured embedding dimension. A mismatch here would otherwise only
// surface as opaque insert errors at ingestion time.
func (s *Store) checkDimension(ctx context.Context) error {
	var atttypmod int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'tools'::regclass AND attname = 'embedding'`,
	).Scan(&atttypmod)
	if err != nil {
		return fmt.Errorf("inspecting embedding column: %w", err)
	}
	// For the vector type atttypmod is the declared dimension.
	if atttypmod != s.dimension {
		return fmt.Errorf(
			"embedding column is vector(%d) but the configured dimension is %d; "+
				"migrate the column before changing embedding models",
			atttypmod, s.dimension)
	}
	return nil
}
