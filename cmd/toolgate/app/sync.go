// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/discovery"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/store"
)

func newSyncCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run MCP discovery once and exit",
		Long: `Reconcile the configured MCP sources (and the LLM gateway, when
configured) into the registry, print the per-source summaries as JSON,
and exit. Without --source all sources are synced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := store.New(ctx, store.Options{
				DatabaseURL: cfg.DatabaseURL,
				Dimension:   cfg.EmbeddingDimension,
				MaxConns:    cfg.DBPoolSize,
			})
			if err != nil {
				return err
			}
			defer st.Close()

			embedder, _, err := buildEmbedder(cfg)
			if err != nil {
				return err
			}
			gw, err := buildGateway(cfg)
			if err != nil {
				return err
			}

			disc := discovery.New(registry.New(st, embedder), gw, cfg.MCPSources, cfg.DiscoveryTimeout, nil)

			var summaries []discovery.SourceSummary
			if source != "" {
				sum, err := disc.SyncOne(ctx, source)
				if err != nil {
					return err
				}
				summaries = []discovery.SourceSummary{sum}
			} else {
				summaries = disc.SyncAll(ctx)
			}
			if len(summaries) == 0 {
				return fmt.Errorf("no discovery sources configured")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Sync a single source by name")
	return cmd
}
