// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"sort"
)

// Graph holds the node set plus adjacency lists in both directions.
//
// # Lifecycle
//
// A graph is created empty, populated by the coordinator's builder, patched
// incrementally in response to invalidation events, and destroyed by
// eviction or explicit invalidation. It is process-local and never persisted.
type Graph struct {
	nodes    map[string]*Node
	outgoing map[string][]*Edge
	incoming map[string][]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]*Edge),
	}
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.outgoing {
		n += len(edges)
	}
	return n
}

// GetNode retrieves a node by its id.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddNode inserts a node, replacing any existing node with the same id.
//
// # Description
//
// Idempotent by id: re-adding refreshes the node's label and metadata but
// leaves existing adjacency intact. Adjacency entries are initialised so
// later edge operations need no nil checks.
func (g *Graph) AddNode(n *Node) {
	if n == nil {
		return
	}
	g.nodes[n.ID] = n
	if _, ok := g.outgoing[n.ID]; !ok {
		g.outgoing[n.ID] = make([]*Edge, 0)
	}
	if _, ok := g.incoming[n.ID]; !ok {
		g.incoming[n.ID] = make([]*Edge, 0)
	}
}

// RemoveNode deletes a node and every edge touching it, on both sides.
//
// # Complexity
//
// O(degree) over the removed node's edges.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}

	// Drop this node's outgoing edges from the targets' incoming lists.
	for _, e := range g.outgoing[id] {
		g.incoming[e.ToID] = dropEdgesWith(g.incoming[e.ToID], id)
	}
	// Drop this node's incoming edges from the sources' outgoing lists.
	for _, e := range g.incoming[id] {
		g.outgoing[e.FromID] = dropEdgesWith(g.outgoing[e.FromID], id)
	}

	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
}

// dropEdgesWith removes edges whose other endpoint is the given id.
func dropEdgesWith(edges []*Edge, id string) []*Edge {
	kept := edges[:0]
	for _, e := range edges {
		if e.FromID != id && e.ToID != id {
			kept = append(kept, e)
		}
	}
	return kept
}

// AddEdge creates a directed edge between two existing nodes.
//
// # Description
//
// Both endpoints must already exist. Duplicate edges are allowed; the
// builder does not insert self-loops, so cycles arise only through chains.
//
// # Outputs
//
//   - error: ErrNodeNotFound-wrapped when either endpoint is absent.
func (g *Graph) AddEdge(e *Edge) error {
	if _, ok := g.nodes[e.FromID]; !ok {
		return fmt.Errorf("source node %s does not exist: %w", e.FromID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[e.ToID]; !ok {
		return fmt.Errorf("target node %s does not exist: %w", e.ToID, ErrNodeNotFound)
	}

	g.outgoing[e.FromID] = append(g.outgoing[e.FromID], e)
	g.incoming[e.ToID] = append(g.incoming[e.ToID], e)
	return nil
}

// RemoveEdge removes every edge from one node to another, across all edge
// types.
func (g *Graph) RemoveEdge(fromID, toID string) {
	g.outgoing[fromID] = dropEdgesBetween(g.outgoing[fromID], fromID, toID)
	g.incoming[toID] = dropEdgesBetween(g.incoming[toID], fromID, toID)
}

// dropEdgesBetween removes edges matching the exact from→to pair.
func dropEdgesBetween(edges []*Edge, fromID, toID string) []*Edge {
	kept := edges[:0]
	for _, e := range edges {
		if !(e.FromID == fromID && e.ToID == toID) {
			kept = append(kept, e)
		}
	}
	return kept
}

// GetAllNodes returns every node, ordered by ascending id for determinism.
func (g *Graph) GetAllNodes() []*Node {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// GetAllEdges returns every edge in the graph.
func (g *Graph) GetAllEdges() []*Edge {
	ids := make([]string, 0, len(g.outgoing))
	for id := range g.outgoing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	edges := make([]*Edge, 0)
	for _, id := range ids {
		edges = append(edges, g.outgoing[id]...)
	}
	return edges
}

// GetOutgoingEdges returns the edges whose source is the given node.
// Returns a defensive copy.
func (g *Graph) GetOutgoingEdges(id string) []*Edge {
	edges := g.outgoing[id]
	result := make([]*Edge, len(edges))
	copy(result, edges)
	return result
}

// GetIncomingEdges returns the edges whose target is the given node.
// Returns a defensive copy.
func (g *Graph) GetIncomingEdges(id string) []*Edge {
	edges := g.incoming[id]
	result := make([]*Edge, len(edges))
	copy(result, edges)
	return result
}

// HasPath reports whether a directed path exists from s to t.
//
// # Description
//
// BFS over outgoing edges. When s == t the answer is true exactly when the
// node exists.
//
// # Complexity
//
// O(V + E).
func (g *Graph) HasPath(s, t string) bool {
	if _, ok := g.nodes[s]; !ok {
		return false
	}
	if s == t {
		return true
	}

	visited := map[string]bool{s: true}
	queue := []string{s}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range g.outgoing[current] {
			if e.ToID == t {
				return true
			}
			if !visited[e.ToID] {
				visited[e.ToID] = true
				queue = append(queue, e.ToID)
			}
		}
	}
	return false
}

// WouldCreateCycle reports whether adding an edge from→to would close a
// cycle. Exactly HasPath(to, from).
func (g *Graph) WouldCreateCycle(fromID, toID string) bool {
	return g.HasPath(toID, fromID)
}

// Clone creates an independent deep copy of the graph.
//
// Used by the coordinator for copy-on-write patches: readers of the old
// graph are never exposed to a half-applied update.
func (g *Graph) Clone() *Graph {
	clone := New()
	for _, n := range g.nodes {
		copied := *n
		if n.Metadata != nil {
			copied.Metadata = make(map[string]any, len(n.Metadata))
			for k, v := range n.Metadata {
				copied.Metadata[k] = v
			}
		}
		clone.AddNode(&copied)
	}
	for _, edges := range g.outgoing {
		for _, e := range edges {
			copied := *e
			// Endpoints exist by construction; error cannot occur.
			_ = clone.AddEdge(&copied)
		}
	}
	return clone
}
