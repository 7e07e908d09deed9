// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the rules
// worker.
//
// # Description
//
// This package implements Prometheus metrics for monitoring condition
// evaluation. Metrics include:
//   - Evaluation counters (by outcome) and latency histograms
//   - Result-cache hit/miss counters
//   - Dependency-graph build counters
//   - Bus event counters (by channel and disposition)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "worldsmith"

// Subsystem for rules-evaluation metrics
const rulesSubsystem = "rules"

// RulesMetrics holds all Prometheus metrics for the evaluation pipeline.
//
// Initialize once at startup via InitMetrics(); Prometheus panics on
// duplicate registration.
type RulesMetrics struct {
	// EvaluationsTotal counts condition evaluations by outcome.
	// Labels: outcome (success, not_found, inactive, invalid, error)
	EvaluationsTotal *prometheus.CounterVec

	// EvaluationDurationSeconds measures single-condition evaluation time.
	EvaluationDurationSeconds prometheus.Histogram

	// BatchSize measures the number of conditions per batch call.
	BatchSize prometheus.Histogram

	// CacheHitsTotal counts result-cache hits.
	CacheHitsTotal prometheus.Counter

	// CacheMissesTotal counts result-cache misses.
	CacheMissesTotal prometheus.Counter

	// CacheEvictionsTotal counts capacity evictions.
	CacheEvictionsTotal prometheus.Counter

	// GraphBuildsTotal counts full dependency-graph builds.
	GraphBuildsTotal prometheus.Counter

	// BusEventsTotal counts invalidation bus events by channel and
	// disposition. Labels: channel, disposition (handled, dropped)
	BusEventsTotal *prometheus.CounterVec

	// BusReconnectsTotal counts subscriber reconnection attempts.
	BusReconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of RulesMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *RulesMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup.
func InitMetrics() *RulesMetrics {
	DefaultMetrics = &RulesMetrics{
		EvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "evaluations_total",
				Help:      "Total condition evaluations by outcome",
			},
			[]string{"outcome"},
		),

		EvaluationDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Single-condition evaluation latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		BatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "batch_size",
				Help:      "Number of conditions per batch evaluation",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "cache_hits_total",
				Help:      "Total result cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "cache_misses_total",
				Help:      "Total result cache misses",
			},
		),

		CacheEvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "cache_evictions_total",
				Help:      "Total result cache capacity evictions",
			},
		),

		GraphBuildsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "graph_builds_total",
				Help:      "Total full dependency graph builds",
			},
		),

		BusEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "bus_events_total",
				Help:      "Total invalidation bus events by channel and disposition",
			},
			[]string{"channel", "disposition"},
		),

		BusReconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rulesSubsystem,
				Name:      "bus_reconnects_total",
				Help:      "Total bus subscriber reconnection attempts",
			},
		),
	}
	return DefaultMetrics
}
