// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package telemetry records operational metrics. Components depend on
// the Metrics capability; the process decides whether that is a no-op
// or a Prometheus registry.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the recording capability handed to components. Recording
// never fails and never blocks the calling path.
type Metrics interface {
	// ToolCall records one execution with its terminal status.
	ToolCall(tool, status string, d time.Duration)

	// Search records one find_tool run. Degraded marks lexical-only
	// fallback.
	Search(degraded bool, d time.Duration)

	// SyncRun records the outcome of one discovery source sync.
	SyncRun(source string, created, updated, deactivated int)

	// EmbeddingCache records the current cache hit/miss totals.
	EmbeddingCache(hits, misses uint64)
}

// noop discards all recordings.
type noop struct{}

func (noop) ToolCall(string, string, time.Duration) {}
func (noop) Search(bool, time.Duration)             {}
func (noop) SyncRun(string, int, int, int)          {}
func (noop) EmbeddingCache(uint64, uint64)          {}

// NewNoop returns a Metrics that records nothing.
func NewNoop() Metrics {
	return noop{}
}

// PrometheusMetrics implements Metrics on a dedicated Prometheus
// registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	searches         *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	syncChanges      *prometheus.CounterVec
	cacheHits        prometheus.Gauge
	cacheMisses      prometheus.Gauge
}

// NewPrometheus creates a Metrics backed by its own registry, plus the
// HTTP handler that exposes it.
func NewPrometheus() (*PrometheusMetrics, http.Handler) {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_tool_calls_total",
			Help: "Total number of tool executions by tool and status",
		}, []string{"tool", "status"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolgate_tool_call_duration_seconds",
			Help:    "Duration of tool executions in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_searches_total",
			Help: "Total number of find_tool runs",
		}, []string{"mode"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolgate_search_duration_seconds",
			Help:    "Duration of find_tool runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		syncChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolgate_discovery_changes_total",
			Help: "Tool changes applied by discovery sync runs",
		}, []string{"source", "change"}),
		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolgate_embedding_cache_hits",
			Help: "Embedding cache hits since process start",
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolgate_embedding_cache_misses",
			Help: "Embedding cache misses since process start",
		}),
	}

	registry.MustRegister(
		m.toolCalls, m.toolCallDuration,
		m.searches, m.searchDuration,
		m.syncChanges,
		m.cacheHits, m.cacheMisses,
	)

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ToolCall records one execution.
func (m *PrometheusMetrics) ToolCall(tool, status string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// Search records one find_tool run.
func (m *PrometheusMetrics) Search(degraded bool, d time.Duration) {
	mode := "hybrid"
	if degraded {
		mode = "degraded"
	}
	m.searches.WithLabelValues(mode).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// SyncRun records the changes one discovery sync applied.
func (m *PrometheusMetrics) SyncRun(source string, created, updated, deactivated int) {
	m.syncChanges.WithLabelValues(source, "created").Add(float64(created))
	m.syncChanges.WithLabelValues(source, "updated").Add(float64(updated))
	m.syncChanges.WithLabelValues(source, "deactivated").Add(float64(deactivated))
}

// EmbeddingCache records the current cache totals.
func (m *PrometheusMetrics) EmbeddingCache(hits, misses uint64) {
	m.cacheHits.Set(float64(hits))
	m.cacheMisses.Set(float64(misses))
}

var _ Metrics = (*PrometheusMetrics)(nil)
