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
	"strings"
)

// NodeType identifies what kind of domain object a node represents.
type NodeType string

const (
	// NodeTypeVariable is a named datum whose value feeds conditions.
	NodeTypeVariable NodeType = "VARIABLE"

	// NodeTypeCondition is a boolean/arithmetic expression bound to an
	// entity field.
	NodeTypeCondition NodeType = "CONDITION"

	// NodeTypeEffect is a node that writes variables. Effects are not
	// evaluated by this engine but are represented in the graph.
	NodeTypeEffect NodeType = "EFFECT"

	// NodeTypeEntity is a domain entity that conditions attach to.
	NodeTypeEntity NodeType = "ENTITY"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeVariable, NodeTypeCondition, NodeTypeEffect, NodeTypeEntity:
		return true
	}
	return false
}

// nodeIDDelimiter separates the type and entity id inside a node id.
const nodeIDDelimiter = ":"

// NodeID composes the canonical node id "<TYPE>:<entityId>".
func NodeID(t NodeType, entityID string) string {
	return string(t) + nodeIDDelimiter + entityID
}

// ParseNodeID splits a canonical node id back into its type and entity id.
//
// The entity id may itself contain the delimiter; only the first occurrence
// splits.
func ParseNodeID(id string) (NodeType, string, error) {
	idx := strings.Index(id, nodeIDDelimiter)
	if idx <= 0 || idx == len(id)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidNodeID, id)
	}
	t := NodeType(id[:idx])
	if !t.Valid() {
		return "", "", fmt.Errorf("%w: unknown node type in %q", ErrInvalidNodeID, id)
	}
	return t, id[idx+1:], nil
}

// EdgeType defines the type of relationship between nodes.
type EdgeType string

const (
	// EdgeTypeReads indicates a condition or effect reads a variable.
	EdgeTypeReads EdgeType = "READS"

	// EdgeTypeWrites indicates an effect writes a variable.
	EdgeTypeWrites EdgeType = "WRITES"

	// EdgeTypeDependsOn is the generic dependency relationship.
	EdgeTypeDependsOn EdgeType = "DEPENDS_ON"
)

// Node represents a variable, condition, effect, or entity in the graph.
type Node struct {
	// ID is the unique identifier, always NodeID(Type, EntityID).
	ID string

	// Type is the node's kind.
	Type NodeType

	// EntityID is the underlying domain identifier.
	EntityID string

	// Label is an optional display string.
	Label string

	// Metadata is an optional free-form map.
	Metadata map[string]any
}

// NewNode builds a node with its canonical id.
func NewNode(t NodeType, entityID string) *Node {
	return &Node{
		ID:       NodeID(t, entityID),
		Type:     t,
		EntityID: entityID,
	}
}

// Edge represents a directed relationship between two nodes.
//
// Multiple edges between the same pair of nodes are permitted; callers
// deduplicate when they care.
type Edge struct {
	// FromID is the id of the source node.
	FromID string

	// ToID is the id of the target node.
	ToID string

	// Type is the relationship type.
	Type EdgeType
}

// CycleInfo describes one cycle found by DetectCycles.
type CycleInfo struct {
	// Path lists the node ids along the cycle. The first and last elements
	// are equal.
	Path []string

	// Description is the path joined with " -> " for log and RPC output.
	Description string
}

// CycleReport is the result of DetectCycles.
type CycleReport struct {
	// HasCycles is true when at least one cycle exists.
	HasCycles bool

	// Cycles lists every cycle found.
	Cycles []CycleInfo

	// CycleCount is len(Cycles).
	CycleCount int
}

// SortResult is the result of TopologicalSort.
type SortResult struct {
	// Success is false when the graph contains a cycle.
	Success bool

	// Order lists node ids with dependencies first. Only meaningful nodes
	// that could be sorted appear here.
	Order []string

	// RemainingNodes lists nodes that could not be sorted because they sit
	// on or behind a cycle. Empty on success.
	RemainingNodes []string

	// Error is a human-readable message, set only on failure.
	Error string
}
