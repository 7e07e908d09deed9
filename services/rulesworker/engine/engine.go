// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates condition evaluation: fetch, validate,
// interpret, cache and trace.
//
// The engine never panics and never returns a Go error for a failed
// evaluation; every outcome is a Result. Only successful, untraced results
// are cached — a trace must reflect a live run, never a replay.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/Worldsmith/pkg/validation"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/coordinator"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/expr"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/graph"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/observability"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/resultcache"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/store"
)

// TraceStep is one recorded stage of a traced evaluation.
type TraceStep struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	InputJSON   string `json:"inputJson"`
	OutputJSON  string `json:"outputJson"`
	Passed      bool   `json:"passed"`
}

// Result is the outcome of one condition evaluation. A successful Result
// is the cacheable unit.
type Result struct {
	Success          bool        `json:"success"`
	ValueJSON        string      `json:"valueJson,omitempty"`
	Error            string      `json:"error,omitempty"`
	Trace            []TraceStep `json:"trace,omitempty"`
	EvaluationTimeMs int64       `json:"evaluationTimeMs"`
}

// BatchResult is the outcome of a batch evaluation.
type BatchResult struct {
	Results map[string]*Result
	// Order lists the condition ids in the order they were evaluated.
	Order []string
}

// Engine evaluates conditions against caller-supplied context data.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the injected collaborators.
type Engine struct {
	store   store.Store
	cache   *resultcache.Cache
	graphs  *coordinator.Coordinator
	logger  *slog.Logger
	metrics *observability.RulesMetrics
}

// New creates an Engine over its collaborators.
func New(s store.Store, cache *resultcache.Cache, graphs *coordinator.Coordinator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		cache:   cache,
		graphs:  graphs,
		logger:  logger,
		metrics: observability.DefaultMetrics,
	}
}

// tracer accumulates TraceSteps when tracing is enabled, and is a no-op
// otherwise.
type tracer struct {
	enabled bool
	steps   []TraceStep
}

func (t *tracer) add(description string, input, output any, passed bool) {
	if !t.enabled {
		return
	}
	t.steps = append(t.steps, TraceStep{
		Step:        len(t.steps) + 1,
		Description: description,
		InputJSON:   mustJSON(input),
		OutputJSON:  mustJSON(output),
		Passed:      passed,
	})
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `"<unserialisable>"`
	}
	return string(data)
}

// Evaluate runs one condition against the caller's context.
//
// # Inputs
//
//   - conditionID: the store id of the condition.
//   - evalCtx: the caller's data map; nil is treated as empty.
//   - campaignID, branchID: cache and graph scope; empty branch defaults
//     to "main".
//   - includeTrace: when true, the cache is bypassed in both directions
//     and each stage is recorded.
//
// # Outputs
//
//   - *Result: never nil. Failures are reported in Result.Error, never
//     as a panic or a Go error.
func (e *Engine) Evaluate(ctx context.Context, conditionID string, evalCtx map[string]any, campaignID, branchID string, includeTrace bool) (result *Result) {
	start := time.Now()
	tr := &tracer{enabled: includeTrace}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked",
				"condition_id", conditionID, "panic", r)
			result = &Result{
				Success:          false,
				Error:            fmt.Sprintf("evaluation failed: %v", r),
				Trace:            tr.steps,
				EvaluationTimeMs: time.Since(start).Milliseconds(),
			}
			e.countOutcome("error")
		}
	}()

	branchID, err := validation.ValidateScope(campaignID, branchID)
	if err != nil {
		e.countOutcome("error")
		return e.finish(&Result{Success: false, Error: err.Error()}, tr, start)
	}

	cacheKey := resultcache.EncodeKey(campaignID, branchID,
		graph.NodeID(graph.NodeTypeCondition, conditionID))

	// Step 1: cache lookup, skipped under tracing.
	if !includeTrace {
		if cached, ok := e.cache.Get(cacheKey); ok {
			if hit, ok := cached.(*Result); ok {
				if e.metrics != nil {
					e.metrics.CacheHitsTotal.Inc()
				}
				e.countOutcome("success")
				copied := *hit
				copied.EvaluationTimeMs = time.Since(start).Milliseconds()
				return &copied
			}
		}
		if e.metrics != nil {
			e.metrics.CacheMissesTotal.Inc()
		}
	}

	// Step 2: fetch.
	cond, err := e.store.FindCondition(ctx, conditionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			tr.add("Fetch condition", conditionID, "not found", false)
			e.countOutcome("not_found")
			return e.finish(&Result{
				Success: false,
				Error:   "Condition not found: " + conditionID,
			}, tr, start)
		}
		tr.add("Fetch condition", conditionID, err.Error(), false)
		e.countOutcome("error")
		return e.finish(&Result{Success: false, Error: err.Error()}, tr, start)
	}
	tr.add("Fetch condition", conditionID,
		map[string]any{"field": cond.Field, "isActive": cond.IsActive}, true)

	// Step 3: active check.
	if !cond.IsActive {
		tr.add("Active check", cond.ID, false, false)
		e.countOutcome("inactive")
		return e.finish(&Result{
			Success: false,
			Error:   "Condition is not active: " + conditionID,
		}, tr, start)
	}
	tr.add("Active check", cond.ID, true, true)

	// Step 4: structural validation.
	if problems := expr.ValidationProblems(cond.Expression.V); len(problems) > 0 {
		tr.add("Validate expression", cond.Expression.V, problems, false)
		e.countOutcome("invalid")
		return e.finish(&Result{
			Success: false,
			Error:   "Invalid expression: " + strings.Join(problems, "; "),
		}, tr, start)
	}
	tr.add("Validate expression", cond.Expression.V, "ok", true)

	// Step 5: build context. Nil is an empty map; the interpreter handles
	// missing variables by resolving them to null.
	if evalCtx == nil {
		evalCtx = map[string]any{}
	}

	// Step 6: interpret.
	value, err := expr.Evaluate(cond.Expression.V, evalCtx)
	if err != nil {
		tr.add("Evaluate expression", evalCtx, err.Error(), false)
		e.countOutcome("error")
		return e.finish(&Result{Success: false, Error: err.Error()}, tr, start)
	}
	tr.add("Evaluate expression", evalCtx, value, true)

	// Step 7: serialise.
	valueJSON, err := json.Marshal(value)
	if err != nil {
		e.countOutcome("error")
		return e.finish(&Result{
			Success: false,
			Error:   fmt.Sprintf("failed to serialise result: %v", err),
		}, tr, start)
	}

	if includeTrace {
		e.traceVariables(tr, cond.Expression.V, evalCtx)
	}

	result = e.finish(&Result{
		Success:   true,
		ValueJSON: string(valueJSON),
	}, tr, start)
	e.countOutcome("success")
	if e.metrics != nil {
		e.metrics.EvaluationDurationSeconds.Observe(time.Since(start).Seconds())
	}

	// Step 8: cache, untraced successes only.
	if !includeTrace {
		e.cache.Set(cacheKey, result)
	}
	return result
}

// finish stamps the elapsed time and attaches the trace.
func (e *Engine) finish(r *Result, tr *tracer, start time.Time) *Result {
	r.Trace = tr.steps
	r.EvaluationTimeMs = time.Since(start).Milliseconds()
	return r
}

// traceVariables appends a final step recording how every var path in the
// expression resolved against the context.
func (e *Engine) traceVariables(tr *tracer, expression any, evalCtx map[string]any) {
	paths := expr.ExtractVars(expression)
	if len(paths) == 0 {
		return
	}
	resolved := make(map[string]any, len(paths))
	for _, path := range paths {
		resolved[path] = resolvePath(evalCtx, path)
	}
	tr.add("Resolve variables", paths, resolved, true)
}

// resolvePath walks a dotted path through nested maps, returning nil when
// any segment is missing.
func resolvePath(m map[string]any, path string) any {
	var current any = m
	for _, segment := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = asMap[segment]
		if !ok {
			return nil
		}
	}
	return current
}

func (e *Engine) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

// EvaluateConditions evaluates a set of conditions in dependency order.
//
// # Description
//
// The scope's graph supplies the order: its topological sort is filtered
// to the requested condition ids. Ids absent from the graph are evaluated
// afterwards in input order — the graph may lag behind schema changes.
// Cycles are logged and tolerated; on any graph failure the batch falls
// back to plain input order. The batch is never aborted.
func (e *Engine) EvaluateConditions(ctx context.Context, ids []string, evalCtx map[string]any, campaignID, branchID string, includeTrace bool) *BatchResult {
	batch := &BatchResult{Results: make(map[string]*Result, len(ids))}
	if len(ids) == 0 {
		return batch
	}
	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(ids)))
	}

	order := e.dependencyOrder(ctx, ids, campaignID, branchID)
	for _, id := range order {
		batch.Results[id] = e.Evaluate(ctx, id, evalCtx, campaignID, branchID, includeTrace)
		batch.Order = append(batch.Order, id)
	}
	return batch
}

// dependencyOrder resolves the evaluation order for a batch, falling back
// to input order when the graph pipeline fails.
func (e *Engine) dependencyOrder(ctx context.Context, ids []string, campaignID, branchID string) []string {
	g, err := e.graphs.GetGraph(ctx, campaignID, branchID)
	if err != nil {
		e.logger.Warn("graph unavailable for batch, using input order",
			"campaign_id", campaignID, "branch_id", branchID, "error", err)
		return ids
	}

	if report := g.DetectCycles(); report.HasCycles {
		paths := make([]string, 0, len(report.Cycles))
		for _, c := range report.Cycles {
			paths = append(paths, c.Description)
		}
		e.logger.Warn("dependency cycles present, batch proceeding",
			"campaign_id", campaignID,
			"branch_id", branchID,
			"cycles", paths)
	}

	sorted := g.TopologicalSort()
	if !sorted.Success {
		e.logger.Warn("topological sort failed, using input order",
			"campaign_id", campaignID, "branch_id", branchID, "error", sorted.Error)
		return ids
	}

	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	order := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, nodeID := range sorted.Order {
		nodeType, entityID, err := graph.ParseNodeID(nodeID)
		if err != nil || nodeType != graph.NodeTypeCondition {
			continue
		}
		if requested[entityID] && !seen[entityID] {
			order = append(order, entityID)
			seen[entityID] = true
		}
	}
	// Ids the graph does not know about run last, in input order.
	for _, id := range ids {
		if !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	return order
}
