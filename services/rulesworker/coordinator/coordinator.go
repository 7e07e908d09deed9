// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordinator owns the per-(campaign, branch) dependency graphs.
//
// Graphs are built lazily from the store on first request and patched
// incrementally in response to invalidation events. All writes go through
// the coordinator, which applies them copy-on-write so concurrent readers
// never observe a half-patched graph.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/Worldsmith/pkg/validation"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/expr"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/graph"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/store"
)

// Coordinator maps (campaignId, branchId) to a dependency graph.
//
// # Thread Safety
//
// Safe for concurrent use. The entry map is guarded by an RWMutex;
// concurrent builds of the same missing key are collapsed through
// singleflight so the store sees one enumeration per cold key.
type Coordinator struct {
	mu     sync.RWMutex
	graphs map[string]*graph.Graph
	flight singleflight.Group
	store  store.Store
	logger *slog.Logger

	builds int64
}

// New creates a Coordinator backed by the given store.
func New(s store.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		graphs: make(map[string]*graph.Graph),
		store:  s,
		logger: logger,
	}
}

// graphKey builds the map key. The validation alphabet excludes '|' so the
// encoding is injective.
func graphKey(campaignID, branchID string) string {
	return campaignID + "|" + branchID
}

// GetGraph returns the dependency graph for a campaign branch, building it
// from the store when cold.
//
// # Inputs
//
//   - campaignID: required, validated against the campaign id alphabet.
//   - branchID: optional, empty defaults to "main".
//
// # Outputs
//
//   - *graph.Graph: never nil on success. Callers must treat it as
//     read-only; mutation goes through the coordinator.
func (c *Coordinator) GetGraph(ctx context.Context, campaignID, branchID string) (*graph.Graph, error) {
	branchID, err := validation.ValidateScope(campaignID, branchID)
	if err != nil {
		return nil, err
	}
	key := graphKey(campaignID, branchID)

	c.mu.RLock()
	g, ok := c.graphs[key]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}

	built, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller may have completed the build while this one was
		// queued on the flight group.
		c.mu.RLock()
		existing, ok := c.graphs[key]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		fresh, err := c.buildGraph(ctx, campaignID, branchID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.graphs[key] = fresh
		c.mu.Unlock()
		atomic.AddInt64(&c.builds, 1)

		c.logger.Info("dependency graph built",
			"campaign_id", campaignID,
			"branch_id", branchID,
			"nodes", fresh.NodeCount(),
			"edges", fresh.EdgeCount())
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*graph.Graph), nil
}

// buildGraph enumerates conditions and variables for the scope and
// materialises the graph.
//
// Node layout: one CONDITION node per condition, one VARIABLE node per
// referenced or declared variable, one ENTITY node per condition owner.
// Edges: CONDITION READS VARIABLE for every var reference, ENTITY
// DEPENDS_ON CONDITION for the owning entity.
func (c *Coordinator) buildGraph(ctx context.Context, campaignID, branchID string) (*graph.Graph, error) {
	conditions, err := c.store.ListConditions(ctx, campaignID, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate conditions: %w", err)
	}
	variables, err := c.store.ListVariables(ctx, campaignID, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate variables: %w", err)
	}

	g := graph.New()
	for _, v := range variables {
		g.AddNode(graph.NewNode(graph.NodeTypeVariable, v.Name))
	}
	for _, cond := range conditions {
		attachCondition(g, cond)
	}
	return g, nil
}

// attachCondition inserts one condition with its edges into the graph.
// Missing variable nodes are created on demand so a condition can read a
// variable declared outside the enumerated set.
func attachCondition(g *graph.Graph, cond *store.Condition) {
	condNode := graph.NewNode(graph.NodeTypeCondition, cond.ID)
	condNode.Label = cond.Field
	g.AddNode(condNode)

	for _, path := range expr.ExtractVars(cond.Expression.V) {
		name := rootSegment(path)
		if name == "" {
			continue
		}
		varID := graph.NodeID(graph.NodeTypeVariable, name)
		if !g.HasNode(varID) {
			g.AddNode(graph.NewNode(graph.NodeTypeVariable, name))
		}
		// Endpoints were just ensured; AddEdge cannot fail here.
		_ = g.AddEdge(&graph.Edge{
			FromID: condNode.ID,
			ToID:   varID,
			Type:   graph.EdgeTypeReads,
		})
	}

	if cond.EntityID != "" {
		entityID := graph.NodeID(graph.NodeTypeEntity, cond.EntityID)
		if !g.HasNode(entityID) {
			entityNode := graph.NewNode(graph.NodeTypeEntity, cond.EntityID)
			entityNode.Label = cond.EntityType
			g.AddNode(entityNode)
		}
		_ = g.AddEdge(&graph.Edge{
			FromID: entityID,
			ToID:   condNode.ID,
			Type:   graph.EdgeTypeDependsOn,
		})
	}
}

// rootSegment returns the first element of a dotted var path. Context maps
// are keyed by variable name at the top level.
func rootSegment(path string) string {
	if i := strings.Index(path, "."); i >= 0 {
		return path[:i]
	}
	return path
}

// InvalidateGraph drops the cached graph so the next access rebuilds.
func (c *Coordinator) InvalidateGraph(campaignID, branchID string) error {
	branchID, err := validation.ValidateScope(campaignID, branchID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.graphs, graphKey(campaignID, branchID))
	c.mu.Unlock()
	return nil
}

// UpdateCondition incrementally patches a cached graph after a condition
// change. A cold key is a no-op; the next GetGraph rebuilds from scratch.
func (c *Coordinator) UpdateCondition(ctx context.Context, campaignID, branchID, conditionID string) error {
	return c.patch(ctx, campaignID, branchID, func(clone *graph.Graph) error {
		clone.RemoveNode(graph.NodeID(graph.NodeTypeCondition, conditionID))

		cond, err := c.store.FindCondition(ctx, conditionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil // deleted: removal above is the whole patch
			}
			return err
		}
		attachCondition(clone, cond)
		return nil
	})
}

// UpdateVariable incrementally patches a cached graph after a variable
// change. A cold key is a no-op.
func (c *Coordinator) UpdateVariable(ctx context.Context, campaignID, branchID, variableID string) error {
	return c.patch(ctx, campaignID, branchID, func(clone *graph.Graph) error {
		v, err := c.store.FindVariable(ctx, variableID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				clone.RemoveNode(graph.NodeID(graph.NodeTypeVariable, variableID))
				return nil
			}
			return err
		}
		clone.AddNode(graph.NewNode(graph.NodeTypeVariable, v.Name))
		return nil
	})
}

// patch applies fn to a clone of the cached graph and swaps the clone in.
// Readers holding the old graph keep a consistent snapshot.
func (c *Coordinator) patch(ctx context.Context, campaignID, branchID string, fn func(*graph.Graph) error) error {
	branchID, err := validation.ValidateScope(campaignID, branchID)
	if err != nil {
		return err
	}
	key := graphKey(campaignID, branchID)

	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.graphs[key]
	if !ok {
		return nil
	}

	clone := g.Clone()
	if err := fn(clone); err != nil {
		return err
	}
	c.graphs[key] = clone
	return nil
}

// GetDependenciesOf lists the ids this node depends on (outgoing edges).
func (c *Coordinator) GetDependenciesOf(ctx context.Context, campaignID, branchID, nodeID string) ([]string, error) {
	g, err := c.GetGraph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	edges := g.GetOutgoingEdges(nodeID)
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ToID)
	}
	return ids, nil
}

// GetDependentsOf lists the ids that depend on this node (incoming edges).
func (c *Coordinator) GetDependentsOf(ctx context.Context, campaignID, branchID, nodeID string) ([]string, error) {
	g, err := c.GetGraph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	edges := g.GetIncomingEdges(nodeID)
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FromID)
	}
	return ids, nil
}

// ValidateNoCycles runs cycle detection over the scope's graph.
func (c *Coordinator) ValidateNoCycles(ctx context.Context, campaignID, branchID string) (*graph.CycleReport, error) {
	g, err := c.GetGraph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	return g.DetectCycles(), nil
}

// GetEvaluationOrder topologically sorts the scope's graph.
func (c *Coordinator) GetEvaluationOrder(ctx context.Context, campaignID, branchID string) (*graph.SortResult, error) {
	g, err := c.GetGraph(ctx, campaignID, branchID)
	if err != nil {
		return nil, err
	}
	return g.TopologicalSort(), nil
}

// Size returns the number of cached graphs.
func (c *Coordinator) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.graphs)
}

// BuildCount returns the number of full graph builds performed.
func (c *Coordinator) BuildCount() int64 {
	return atomic.LoadInt64(&c.builds)
}
