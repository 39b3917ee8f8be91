// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/store"
)

func newMigrateCmd() *cobra.Command {
	var resize bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply pending database migrations and verify the embedding column
dimension, then exit. The serve command migrates on startup as well;
this command exists for init containers and CI.

With --resize-embedding a dimension mismatch rewrites the column to the
configured width and clears the stored embeddings; run a reindex
afterwards to repopulate them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := store.New(cmd.Context(), store.Options{
				DatabaseURL:      cfg.DatabaseURL,
				Dimension:        cfg.EmbeddingDimension,
				MaxConns:         1,
				ResizeOnMismatch: resize,
			})
			if err != nil {
				return err
			}
			st.Close()
			logger.Info("Migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&resize, "resize-embedding", false,
		"Rewrite the embedding column to the configured dimension on mismatch")
	return cmd
}
