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
	"errors"
	"testing"
)

func addNodes(t *testing.T, g *Graph, ids ...string) {
	t.Helper()
	for _, id := range ids {
		g.AddNode(&Node{ID: id, Type: NodeTypeCondition, EntityID: id})
	}
}

func addEdge(t *testing.T, g *Graph, from, to string) {
	t.Helper()
	if err := g.AddEdge(&Edge{FromID: from, ToID: to, Type: EdgeTypeDependsOn}); err != nil {
		t.Fatalf("AddEdge(%s, %s): %v", from, to, err)
	}
}

func TestGraph_AddNode(t *testing.T) {
	t.Run("adds and retrieves", func(t *testing.T) {
		g := New()
		g.AddNode(NewNode(NodeTypeCondition, "c1"))

		node, ok := g.GetNode("CONDITION:c1")
		if !ok {
			t.Fatal("expected node to exist")
		}
		if node.EntityID != "c1" {
			t.Errorf("EntityID = %q, want c1", node.EntityID)
		}
		if g.NodeCount() != 1 {
			t.Errorf("NodeCount = %d, want 1", g.NodeCount())
		}
	})

	t.Run("re-add replaces without dropping edges", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b")
		addEdge(t, g, "a", "b")

		g.AddNode(&Node{ID: "a", Type: NodeTypeCondition, EntityID: "a", Label: "fresh"})

		if g.EdgeCount() != 1 {
			t.Errorf("EdgeCount = %d, want 1 after re-add", g.EdgeCount())
		}
		node, _ := g.GetNode("a")
		if node.Label != "fresh" {
			t.Errorf("Label = %q, want fresh", node.Label)
		}
	})
}

func TestGraph_AddEdge(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		g := New()
		addNodes(t, g, "b")
		err := g.AddEdge(&Edge{FromID: "a", ToID: "b", Type: EdgeTypeReads})
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("err = %v, want ErrNodeNotFound", err)
		}
	})

	t.Run("missing target", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a")
		err := g.AddEdge(&Edge{FromID: "a", ToID: "b", Type: EdgeTypeReads})
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("err = %v, want ErrNodeNotFound", err)
		}
	})

	t.Run("updates both adjacency sides", func(t *testing.T) {
		g := New()
		addNodes(t, g, "a", "b")
		addEdge(t, g, "a", "b")

		if out := g.GetOutgoingEdges("a"); len(out) != 1 || out[0].ToID != "b" {
			t.Errorf("outgoing of a = %+v, want one edge to b", out)
		}
		if in := g.GetIncomingEdges("b"); len(in) != 1 || in[0].FromID != "a" {
			t.Errorf("incoming of b = %+v, want one edge from a", in)
		}
	})
}

func TestGraph_RemoveNode(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b", "c")
	addEdge(t, g, "a", "b")
	addEdge(t, g, "b", "c")
	addEdge(t, g, "c", "a")

	g.RemoveNode("b")

	if g.HasNode("b") {
		t.Error("b should be gone")
	}
	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount = %d, want 1 (only c->a survives)", g.EdgeCount())
	}
	if len(g.GetOutgoingEdges("a")) != 0 {
		t.Error("a should have no outgoing edges left")
	}
	if len(g.GetIncomingEdges("c")) != 0 {
		t.Error("c should have no incoming edges left")
	}
}

func TestGraph_RemoveEdge(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b")
	// Two parallel edges of different types; RemoveEdge drops both.
	if err := g.AddEdge(&Edge{FromID: "a", ToID: "b", Type: EdgeTypeReads}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(&Edge{FromID: "a", ToID: "b", Type: EdgeTypeDependsOn}); err != nil {
		t.Fatal(err)
	}

	g.RemoveEdge("a", "b")

	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount = %d, want 0", g.EdgeCount())
	}
}

func TestGraph_HasPath(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b", "c", "d")
	addEdge(t, g, "a", "b")
	addEdge(t, g, "b", "c")

	tests := []struct {
		name string
		s, t string
		want bool
	}{
		{"direct", "a", "b", true},
		{"transitive", "a", "c", true},
		{"reverse", "c", "a", false},
		{"disconnected", "a", "d", false},
		{"self with node", "a", "a", true},
		{"self without node", "x", "x", false},
		{"missing source", "x", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.HasPath(tt.s, tt.t); got != tt.want {
				t.Errorf("HasPath(%s, %s) = %v, want %v", tt.s, tt.t, got, tt.want)
			}
		})
	}
}

func TestGraph_WouldCreateCycle(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b", "c")
	addEdge(t, g, "a", "b")
	addEdge(t, g, "b", "c")

	if !g.WouldCreateCycle("c", "a") {
		t.Error("c->a closes a cycle and should be reported")
	}
	if g.WouldCreateCycle("a", "c") {
		t.Error("a->c is a shortcut edge, not a cycle")
	}
}

func TestGraph_Clone(t *testing.T) {
	g := New()
	addNodes(t, g, "a", "b")
	addEdge(t, g, "a", "b")

	clone := g.Clone()
	clone.RemoveNode("a")
	clone.AddNode(&Node{ID: "z", Type: NodeTypeVariable, EntityID: "z"})

	if !g.HasNode("a") || g.EdgeCount() != 1 {
		t.Error("mutating the clone changed the original")
	}
	if g.HasNode("z") {
		t.Error("node added to clone leaked into original")
	}
}

func TestNodeID_RoundTrip(t *testing.T) {
	id := NodeID(NodeTypeVariable, "player.health")
	if id != "VARIABLE:player.health" {
		t.Fatalf("NodeID = %q", id)
	}

	typ, entity, err := ParseNodeID(id)
	if err != nil {
		t.Fatal(err)
	}
	if typ != NodeTypeVariable || entity != "player.health" {
		t.Errorf("ParseNodeID = (%s, %s)", typ, entity)
	}

	if _, _, err := ParseNodeID("no-delimiter"); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("err = %v, want ErrInvalidNodeID", err)
	}
	if _, _, err := ParseNodeID("BOGUS:x"); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("err = %v, want ErrInvalidNodeID", err)
	}
}
