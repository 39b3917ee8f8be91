// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arcfield/toolgate/pkg/api"
	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/discovery"
	"github.com/arcfield/toolgate/pkg/executor"
	"github.com/arcfield/toolgate/pkg/gateway"
	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/mcpserver"
	"github.com/arcfield/toolgate/pkg/registry"
	"github.com/arcfield/toolgate/pkg/registry/embeddings"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/retrieval"
	"github.com/arcfield/toolgate/pkg/summarizer"
	"github.com/arcfield/toolgate/pkg/telemetry"
	"github.com/arcfield/toolgate/pkg/versions"
)

// cacheStatsInterval is how often embedding cache counters are mirrored
// into the metrics gauges.
const cacheStatsInterval = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the toolgate server",
		Long: `Start the toolgate server.

Runs the REST API and the MCP endpoint until interrupted. Configuration
is read from TOOLGATE_* environment variables; the database schema is
migrated on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	metrics, metricsHandler := telemetry.NewPrometheus()

	st, err := store.New(ctx, store.Options{
		DatabaseURL:     cfg.DatabaseURL,
		Dimension:       cfg.EmbeddingDimension,
		MaxConns:        cfg.DBPoolSize,
		MinConns:        cfg.DBPoolMinConns,
		AcquireTimeout:  cfg.DBAcquireTimeout,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	embedder, cache, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	reg := registry.New(st, embedder)

	finder := retrieval.New(st, embedder, retrieval.Options{
		Alpha:         cfg.HybridAlpha,
		Threshold:     cfg.SearchThreshold,
		DefaultLimit:  cfg.SearchLimit,
		Timeout:       cfg.FindToolTimeout,
		DisableHybrid: !cfg.HybridSearch,
		Metrics:       metrics,
	})

	gw, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	sum := summarizer.New(gw, summarizer.Options{
		Enabled:       cfg.SummarizeEnabled && gw != nil,
		Model:         cfg.SummarizeModel,
		MaxInputChars: cfg.SummarizeMaxInputChars,
		Timeout:       cfg.SummarizeTimeout,
	})

	callables := executor.NewCallableRegistry(cfg.GoExecutorEnabled, cfg.GoExecutorAllow)
	router, err := executor.New(reg, gw, callables, sum, executor.Options{
		DefaultTimeout: cfg.CallToolTimeout,
		MaxTimeout:     cfg.CallToolMaxTimeout,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	disc := discovery.New(reg, gw, cfg.MCPSources, cfg.DiscoveryTimeout, metrics)

	mcpSrv, err := mcpserver.New(ctx, &mcpserver.Config{
		Host: cfg.Host,
		Port: strconv.Itoa(cfg.MCPPort),
	}, mcpserver.NewHandler(finder, router, reg, mcpserver.HandlerOptions{
		SummaryMaxTokens: cfg.SummarizeMaxTokens,
	}), versions.GetVersionInfo().Version)
	if err != nil {
		return err
	}

	apiSrv := api.New(cfg, api.Deps{
		Catalog:  reg,
		Searcher: finder,
		Caller:   router,
		Syncer:   disc,
		Pinger:   st,
		Metrics:  metricsHandler,
	})

	if cfg.DiscoveryAutoRun {
		go disc.Run(ctx)
	}
	if cache != nil {
		go mirrorCacheStats(ctx, cache, metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiSrv.Serve(gctx) })
	g.Go(mcpSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return mcpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildEmbedder assembles the embedding client, wrapped in an LRU cache
// when enabled. The cache is returned separately for stats mirroring.
func buildEmbedder(cfg *config.Config) (embeddings.Client, *embeddings.CachedClient, error) {
	client, err := embeddings.NewHTTPClient(embeddings.Options{
		BaseURL:   cfg.EmbeddingEndpoint,
		APIKey:    cfg.EmbeddingAPIKey,
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
		Timeout:   cfg.EmbeddingTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.EmbeddingCacheOn {
		return client, nil, nil
	}
	cached, err := embeddings.NewCachedClient(client, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached, nil
}

// buildGateway returns nil when no gateway is configured; the dependent
// backends then fail cleanly at call time.
func buildGateway(cfg *config.Config) (*gateway.Client, error) {
	if cfg.GatewayURL == "" {
		logger.Info("No LLM gateway configured; LLM_GATEWAY tools and summarization are disabled")
		return nil, nil
	}
	return gateway.New(gateway.Options{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Model:   cfg.GatewayModel,
		Timeout: cfg.GatewayTimeout,
	})
}

func mirrorCacheStats(ctx context.Context, cache *embeddings.CachedClient, metrics telemetry.Metrics) {
	ticker := time.NewTicker(cacheStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := cache.Stats()
			metrics.EmbeddingCache(stats.Hits, stats.Misses)
		}
	}
}
