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
	"reflect"
	"strings"
	"testing"
)

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b", "c")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "b", "c")

		report := g.DetectCycles()
		if report.HasCycles || report.CycleCount != 0 {
			t.Errorf("report = %+v, want no cycles", report)
		}
	})

	t.Run("simple cycle", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b", "c")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "b", "c")
		addEdge(t, g, "c", "a")

		report := g.DetectCycles()
		if !report.HasCycles || report.CycleCount != 1 {
			t.Fatalf("report = %+v, want exactly one cycle", report)
		}

		cycle := report.Cycles[0]
		if cycle.Path[0] != cycle.Path[len(cycle.Path)-1] {
			t.Errorf("cycle path %v should start and end on the same node", cycle.Path)
		}
		if len(cycle.Path) != 4 {
			t.Errorf("cycle path %v, want 4 entries for a 3-cycle", cycle.Path)
		}
		if !strings.Contains(cycle.Description, " -> ") {
			t.Errorf("Description = %q, want arrow-joined path", cycle.Description)
		}
	})

	t.Run("self loop", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a")
		addEdge(t, g, "a", "a")

		report := g.DetectCycles()
		if report.CycleCount != 1 {
			t.Fatalf("CycleCount = %d, want 1", report.CycleCount)
		}
		if got := report.Cycles[0].Path; !reflect.DeepEqual(got, []string{"a", "a"}) {
			t.Errorf("Path = %v, want [a a]", got)
		}
	})

	t.Run("two disjoint cycles", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b", "x", "y")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "b", "a")
		addEdge(t, g, "x", "y")
		addEdge(t, g, "y", "x")

		report := g.DetectCycles()
		if report.CycleCount != 2 {
			t.Errorf("CycleCount = %d, want 2", report.CycleCount)
		}
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b", "c", "d")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "a", "c")
		addEdge(t, g, "b", "d")
		addEdge(t, g, "c", "d")

		if report := g.DetectCycles(); report.HasCycles {
			t.Errorf("diamond reported cycles: %+v", report)
		}
	})
}

func TestTopologicalSort(t *testing.T) {
	t.Run("dependencies come first", func(t *testing.T) {
		// a depends on b, b depends on c.
		g := New()
		addNodes(t, g, "a", "b", "c")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "b", "c")

		result := g.TopologicalSort()
		if !result.Success {
			t.Fatalf("sort failed: %s", result.Error)
		}
		if want := []string{"c", "b", "a"}; !reflect.DeepEqual(result.Order, want) {
			t.Errorf("Order = %v, want %v", result.Order, want)
		}
	})

	t.Run("lexicographic tie break", func(t *testing.T) {
		g := New()
		addNodes(t, g, "z", "m", "a")

		result := g.TopologicalSort()
		if !result.Success {
			t.Fatal(result.Error)
		}
		// No edges: raw Kahn order is a,m,z and reversal flips it.
		if want := []string{"z", "m", "a"}; !reflect.DeepEqual(result.Order, want) {
			t.Errorf("Order = %v, want %v", result.Order, want)
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		build := func() *Graph {
			g := New()
			addNodes(t, g, "a", "b", "c", "d", "e")
			addEdge(t, g, "a", "c")
			addEdge(t, g, "b", "c")
			addEdge(t, g, "d", "e")
			return g
		}

		first := build().TopologicalSort()
		for i := 0; i < 5; i++ {
			next := build().TopologicalSort()
			if !reflect.DeepEqual(first.Order, next.Order) {
				t.Fatalf("run %d produced %v, first run produced %v", i, next.Order, first.Order)
			}
		}
	})

	t.Run("cycle reports remaining nodes", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b", "c")
		addEdge(t, g, "a", "b")
		addEdge(t, g, "b", "a")

		result := g.TopologicalSort()
		if result.Success {
			t.Fatal("expected failure on cyclic graph")
		}
		if result.Error != "Cycle detected: 2 nodes could not be sorted" {
			t.Errorf("Error = %q", result.Error)
		}
		if want := []string{"a", "b"}; !reflect.DeepEqual(result.RemainingNodes, want) {
			t.Errorf("RemainingNodes = %v, want %v", result.RemainingNodes, want)
		}
	})

	t.Run("empty graph", func(t *testing.T) {
		result := New().TopologicalSort()
		if !result.Success || len(result.Order) != 0 {
			t.Errorf("result = %+v, want empty success", result)
		}
	})
}
