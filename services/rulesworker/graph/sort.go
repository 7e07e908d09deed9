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
	"strings"
)

// DFS colors for cycle detection.
const (
	colorWhite = 0 // unvisited
	colorGray  = 1 // on the current DFS stack
	colorBlack = 2 // fully explored
)

// DetectCycles finds every cycle reachable in the graph.
//
// # Description
//
// Three-color DFS with parent pointers. When the walk reaches a gray node a
// back-edge has been found; the cycle path is reconstructed by following
// parents from the current node back to the gray one. Roots are visited in
// ascending id order so repeated runs over the same graph report the same
// cycles.
//
// # Outputs
//
//   - CycleReport: each cycle's Path begins and ends with the same node.
func (g *Graph) DetectCycles() *CycleReport {
	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string, len(g.nodes))
	report := &CycleReport{Cycles: make([]CycleInfo, 0)}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string)
	visit = func(id string) {
		color[id] = colorGray
		for _, e := range g.outgoing[id] {
			next := e.ToID
			switch color[next] {
			case colorWhite:
				parent[next] = id
				visit(next)
			case colorGray:
				report.Cycles = append(report.Cycles, g.reconstructCycle(id, next, parent))
			}
		}
		color[id] = colorBlack
	}

	for _, id := range ids {
		if color[id] == colorWhite {
			visit(id)
		}
	}

	report.CycleCount = len(report.Cycles)
	report.HasCycles = report.CycleCount > 0
	return report
}

// reconstructCycle walks parent pointers from the back-edge source up to
// the back-edge target and emits the cycle in forward order.
func (g *Graph) reconstructCycle(from, to string, parent map[string]string) CycleInfo {
	// Collect to .. from by following parents backwards from `from`.
	reversed := []string{from}
	for current := from; current != to; {
		current = parent[current]
		reversed = append(reversed, current)
	}

	path := make([]string, 0, len(reversed)+1)
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	path = append(path, to) // close the loop

	return CycleInfo{
		Path:        path,
		Description: strings.Join(path, " -> "),
	}
}

// TopologicalSort orders nodes so dependencies come before dependents.
//
// # Description
//
// Kahn's algorithm over in-degrees with a sorted ready set, so ties between
// unordered nodes break lexicographically and the result is stable run to
// run. Because an edge A→B means "A depends on B", the raw Kahn order lists
// dependents first; the result is reversed so callers can evaluate front to
// back.
//
// # Outputs
//
//   - SortResult: on failure Success is false, Error names the number of
//     unsortable nodes and RemainingNodes lists them.
func (g *Graph) TopologicalSort() *SortResult {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.incoming[id])
	}

	ready := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		released := make([]string, 0)
		for _, e := range g.outgoing[current] {
			inDegree[e.ToID]--
			if inDegree[e.ToID] == 0 {
				released = append(released, e.ToID)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(order) < len(g.nodes) {
		remaining := make([]string, 0, len(g.nodes)-len(order))
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return &SortResult{
			Success:        false,
			RemainingNodes: remaining,
			Error:          fmt.Sprintf("Cycle detected: %d nodes could not be sorted", len(remaining)),
		}
	}

	// Reverse: dependencies first.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	return &SortResult{Success: true, Order: order}
}
