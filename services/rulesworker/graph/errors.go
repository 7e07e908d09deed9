// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the per-(campaign, branch) dependency graph.
//
// Nodes are variables, conditions, effects, and entities; edges express
// read/write/depends-on relationships between them. The graph convention is
// "edge A→B means A depends on B", so evaluation order wants dependencies
// first (see TopologicalSort).
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use on its own. The coordinator package
// serialises writes; reads against a graph that is not being patched are
// safe from multiple goroutines.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound is returned when an edge references a non-existent node.
	// Both source and target nodes must exist before an edge can be created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNodeID is returned when a node id does not follow the
	// "<TYPE>:<entityId>" form or names an unknown node type.
	ErrInvalidNodeID = errors.New("invalid node id")
)
