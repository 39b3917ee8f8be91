// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package retrieval answers "which tool should I use" queries against
// the catalog, blending semantic and lexical search.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/embeddings"
	"github.com/arcfield/toolgate/pkg/registry/models"
	"github.com/arcfield/toolgate/pkg/registry/store"
	"github.com/arcfield/toolgate/pkg/telemetry"
)

// maxQueryChars caps how long a query text may be.
const maxQueryChars = 2000

// Options tunes the finder's defaults.
type Options struct {
	// Alpha weights the semantic component of hybrid scores.
	Alpha float64

	// Threshold is the minimum semantic score a result must reach.
	Threshold float64

	// DefaultLimit applies when a request does not specify one.
	DefaultLimit int

	// MaxLimit caps any requested limit. Defaults to 100.
	MaxLimit int

	// Timeout bounds each FindTool call. Defaults to 10s.
	Timeout time.Duration

	// DisableHybrid makes queries that do not ask for a mode rank by
	// vector similarity alone.
	DisableHybrid bool

	// Metrics receives per-search recordings. Defaults to a no-op.
	Metrics telemetry.Metrics
}

// Store is the search surface of the tool store.
type Store interface {
	SemanticSearch(ctx context.Context, vec []float32, category string, limit int) ([]*models.ScoredTool, error)
	LexicalSearch(ctx context.Context, query, category string, limit int) ([]*models.ScoredTool, error)
	HybridSearch(ctx context.Context, vec []float32, query, category string, alpha float64, limit int) ([]*models.ScoredTool, error)
	FindSimilar(ctx context.Context, id int64, limit int) ([]*models.ScoredTool, error)
	CountIndexed(ctx context.Context) (int64, error)
}

var _ Store = (*store.Store)(nil)

// Finder serves tool discovery queries.
type Finder struct {
	store    Store
	embedder embeddings.Client
	counter  *TokenCounter
	opts     Options
}

// New builds a Finder. Zero option fields get sensible defaults.
func New(s Store, embedder embeddings.Client, opts Options) *Finder {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = 0.7
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoop()
	}
	return &Finder{store: s, embedder: embedder, counter: NewTokenCounter(), opts: opts}
}

// Query is one discovery request.
type Query struct {
	// Text is the natural-language task description.
	Text string

	// Category optionally restricts results to one category.
	Category string

	// Limit caps the result count. Zero means the configured default.
	Limit int

	// Threshold overrides the configured semantic threshold when
	// non-nil. A zero value disables thresholding for this query.
	Threshold *float64

	// UseHybrid selects hybrid (true) or semantic-only (false) ranking.
	// Nil means the configured default.
	UseHybrid *bool
}

// Result is a ranked answer to a discovery query.
type Result struct {
	Query string               `json:"query"`
	Tools []*models.ScoredTool `json:"tools"`

	// Degraded is set when the embedding backend was unreachable and
	// only lexical ranking was applied.
	Degraded bool `json:"degraded,omitempty"`

	// Tokens estimates the context cost of returning these tools
	// versus shipping the whole catalog to the model.
	Tokens *TokenMetrics `json:"token_metrics,omitempty"`
}

// normalizeQuery trims and collapses whitespace so equivalent queries
// share cache entries and embeddings.
func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// FindTool ranks catalog tools against a natural-language query.
// When the embedding backend is down it degrades to lexical-only
// ranking rather than failing the request.
func (f *Finder) FindTool(ctx context.Context, q Query) (*Result, error) {
	text := normalizeQuery(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is required", models.ErrInvalidInput)
	}
	if len(text) > maxQueryChars {
		return nil, fmt.Errorf("%w: query exceeds %d characters", models.ErrInvalidInput, maxQueryChars)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = f.opts.DefaultLimit
	}
	if limit > f.opts.MaxLimit {
		limit = f.opts.MaxLimit
	}
	threshold := f.opts.Threshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0, 1], got %g", models.ErrInvalidInput, threshold)
	}
	hybrid := !f.opts.DisableHybrid
	if q.UseHybrid != nil {
		hybrid = *q.UseHybrid
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	start := time.Now()
	result := &Result{Query: text}

	indexed, err := f.store.CountIndexed(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case indexed == 0:
		// Nothing carries an embedding yet: the semantic signal is zero
		// everywhere and thresholding on it would empty every result
		// set. Rank lexically and skip the filter.
		tools, err := f.store.LexicalSearch(ctx, text, q.Category, limit)
		if err != nil {
			return nil, err
		}
		result.Tools = tools
	default:
		vec, err := f.embedder.Embed(ctx, text)
		if err != nil {
			logger.Warnf("Embedding backend unavailable, degrading to lexical search: %v", err)
			tools, lexErr := f.store.LexicalSearch(ctx, text, q.Category, limit)
			if lexErr != nil {
				return nil, lexErr
			}
			result.Tools = tools
			result.Degraded = true
			break
		}
		var tools []*models.ScoredTool
		if hybrid {
			tools, err = f.store.HybridSearch(ctx, vec, text, q.Category, f.opts.Alpha, limit)
		} else {
			tools, err = f.store.SemanticSearch(ctx, vec, q.Category, limit)
		}
		if err != nil {
			return nil, err
		}
		result.Tools = filterByThreshold(tools, threshold)
	}

	result.Tokens = f.counter.Measure(ctx, result.Tools)
	f.opts.Metrics.Search(result.Degraded, time.Since(start))
	return result, nil
}

// filterByThreshold drops results whose semantic component falls below
// the cutoff. The blend is deliberately not used here: a strong lexical
// hit on an unrelated tool must not clear the bar.
func filterByThreshold(tools []*models.ScoredTool, threshold float64) []*models.ScoredTool {
	if threshold <= 0 {
		return tools
	}
	kept := tools[:0:0]
	for _, t := range tools {
		if t.SemanticScore >= threshold {
			kept = append(kept, t)
		}
	}
	return kept
}

// Similar returns tools nearest to an existing tool's embedding.
func (f *Finder) Similar(ctx context.Context, toolID int64, limit int) ([]*models.ScoredTool, error) {
	if limit <= 0 {
		limit = f.opts.DefaultLimit
	}
	if limit > f.opts.MaxLimit {
		limit = f.opts.MaxLimit
	}
	return f.store.FindSimilar(ctx, toolID, limit)
}
