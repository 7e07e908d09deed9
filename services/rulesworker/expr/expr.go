// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expr validates and evaluates JSONLogic-shaped condition expressions.
//
// An expression is a recursive JSON value: an object whose keys are operator
// names and whose values are argument lists. The {"var": "a.b.c"} operator
// resolves a dotted path in the evaluation context; missing segments resolve
// to null rather than failing, which is how a condition over absent data
// reports false instead of an error.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package expr

import (
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// MaxDepth is the maximum allowed operator nesting depth of an expression.
const MaxDepth = 10

// Validate checks the structural validity of an expression without
// evaluating it.
//
// # Description
//
// Validation is purely structural: it does not type-check operator arity.
// An expression is valid when it is a non-nil, non-array JSON object with at
// least one operator key, and no operator nesting exceeds MaxDepth.
//
// # Inputs
//
//   - expression: Decoded JSON value, typically map[string]any.
//
// # Outputs
//
//   - error: Non-nil when the expression is structurally invalid. The message
//     joins every problem found.
func Validate(expression any) error {
	problems := ValidationProblems(expression)
	if len(problems) == 0 {
		return nil
	}
	msg := problems[0]
	for _, p := range problems[1:] {
		msg += "; " + p
	}
	return fmt.Errorf("%s", msg)
}

// ValidationProblems returns every structural problem found in an expression.
// An empty slice means the expression is valid.
func ValidationProblems(expression any) []string {
	if expression == nil {
		return []string{"expression must not be null"}
	}

	switch v := expression.(type) {
	case []any:
		return []string{"expression must be an object, not an array"}
	case map[string]any:
		if len(v) == 0 {
			return []string{"expression must have at least one operator"}
		}
		if depth := measureDepth(v, 1); depth > MaxDepth {
			return []string{fmt.Sprintf("Expression exceeds maximum depth of %d", MaxDepth)}
		}
		return nil
	default:
		return []string{fmt.Sprintf("expression must be an object, got %T", expression)}
	}
}

// measureDepth walks the tree counting operator-object nesting levels.
// Arrays are argument lists and do not add depth on their own.
func measureDepth(node any, depth int) int {
	if depth > MaxDepth {
		// Deep enough to fail; no need to keep walking.
		return depth
	}

	max := depth
	switch v := node.(type) {
	case map[string]any:
		for _, arg := range v {
			if d := measureDepth(arg, depth+1); d > max {
				max = d
			}
		}
	case []any:
		for _, elem := range v {
			var d int
			if _, isObject := elem.(map[string]any); isObject {
				d = measureDepth(elem, depth+1)
			} else {
				d = measureDepth(elem, depth)
			}
			if d > max {
				max = d
			}
		}
	}
	return max
}

// Evaluate applies a JSONLogic expression to a context map.
//
// # Description
//
// Delegates to the JSONLogic interpreter. Any panic raised by the
// interpreter is recovered and returned as an error; Evaluate never panics.
// Missing context keys resolve to null per JSONLogic semantics.
//
// # Inputs
//
//   - expression: Decoded JSON expression. Callers should Validate first.
//   - context: Caller-supplied data map. May be nil.
//
// # Outputs
//
//   - any: The evaluated JSON value (bool, float64, string, slice, map, nil).
//   - error: Non-nil when the interpreter rejected the expression.
func Evaluate(expression any, context map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("expression evaluation panicked: %v", r)
		}
	}()

	data := any(context)
	if context == nil {
		data = map[string]any{}
	}

	result, err = jsonlogic.ApplyInterface(expression, data)
	if err != nil {
		return nil, fmt.Errorf("apply expression: %w", err)
	}
	return result, nil
}

// ExtractVars collects every {"var": path} string argument in an expression.
//
// # Description
//
// Used for trace output and dependency discovery. The result is
// deduplicated; its order is unspecified and callers must compare as sets.
//
// # Inputs
//
//   - expression: Decoded JSON expression.
//
// # Outputs
//
//   - []string: The distinct variable paths referenced by the expression.
func ExtractVars(expression any) []string {
	seen := make(map[string]bool)
	collectVars(expression, seen)

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	return vars
}

// collectVars recursively walks the expression tree accumulating var paths.
func collectVars(node any, seen map[string]bool) {
	switch v := node.(type) {
	case map[string]any:
		for op, arg := range v {
			if op == "var" {
				switch path := arg.(type) {
				case string:
					seen[path] = true
					continue
				case []any:
					// {"var": ["a.b", default]} form.
					if len(path) > 0 {
						if s, ok := path[0].(string); ok {
							seen[s] = true
						}
					}
					// The default value may itself contain vars.
					if len(path) > 1 {
						for _, elem := range path[1:] {
							collectVars(elem, seen)
						}
					}
					continue
				}
			}
			collectVars(arg, seen)
		}
	case []any:
		for _, elem := range v {
			collectVars(elem, seen)
		}
	}
}
