// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expr

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
)

// mustDecode parses a JSON expression literal for tests.
func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad test expression %q: %v", raw, err)
	}
	return v
}

// wrapDepth wraps {"var":"x"} in {"+":[inner, 1]} the given number of times.
func wrapDepth(levels int) any {
	var inner any = map[string]any{"var": "x"}
	for i := 1; i < levels; i++ {
		inner = map[string]any{"+": []any{inner, float64(1)}}
	}
	return inner
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		expression any
		wantErr    string
	}{
		{"nil rejected", nil, "must not be null"},
		{"array rejected", []any{1.0, 2.0}, "not an array"},
		{"empty object rejected", map[string]any{}, "at least one operator"},
		{"scalar rejected", "just a string", "must be an object"},
		{"simple comparison", mustDecode(t, `{">=": [{"var":"population"}, 5000]}`), ""},
		{"nested boolean", mustDecode(t, `{"and": [{">": [{"var":"a"}, 1]}, {"<": [{"var":"b"}, 2]}]}`), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expression)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDepthBoundary(t *testing.T) {
	t.Run("depth 10 passes", func(t *testing.T) {
		if err := Validate(wrapDepth(MaxDepth)); err != nil {
			t.Errorf("expression at MaxDepth should validate, got: %v", err)
		}
	})

	t.Run("depth 11 fails", func(t *testing.T) {
		err := Validate(wrapDepth(MaxDepth + 1))
		if err == nil {
			t.Fatal("expression over MaxDepth should fail validation")
		}
		if !strings.Contains(err.Error(), "maximum depth") {
			t.Errorf("error = %q, want substring \"maximum depth\"", err)
		}
	})
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		context    map[string]any
		want       any
	}{
		{
			name:       "comparison true",
			expression: `{">=": [{"var":"population"}, 5000]}`,
			context:    map[string]any{"population": 6000.0},
			want:       true,
		},
		{
			name:       "comparison false",
			expression: `{">=": [{"var":"population"}, 5000]}`,
			context:    map[string]any{"population": 400.0},
			want:       false,
		},
		{
			name:       "missing variable resolves null and compares false",
			expression: `{">=": [{"var":"population"}, 5000]}`,
			context:    map[string]any{},
			want:       false,
		},
		{
			name:       "nil context treated as empty",
			expression: `{"==": [{"var":"a"}, null]}`,
			context:    nil,
			want:       true,
		},
		{
			name:       "dotted path resolution",
			expression: `{"==": [{"var":"settlement.name"}, "Kaldwin"]}`,
			context:    map[string]any{"settlement": map[string]any{"name": "Kaldwin"}},
			want:       true,
		},
		{
			name:       "arithmetic",
			expression: `{"+": [{"var":"gold"}, 10]}`,
			context:    map[string]any{"gold": 5.0},
			want:       float64(15),
		},
		{
			name:       "in operator",
			expression: `{"in": [{"var":"faction"}, ["crown", "guild"]]}`,
			context:    map[string]any{"faction": "guild"},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(mustDecode(t, tt.expression), tt.context)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluateIsReferentiallyTransparent(t *testing.T) {
	expression := mustDecode(t, `{"and": [{">": [{"var":"a"}, 1]}, {"<": [{"var":"b"}, 10]}]}`)
	context := map[string]any{"a": 5.0, "b": 3.0}

	first, err := Evaluate(expression, context)
	if err != nil {
		t.Fatalf("first Evaluate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Evaluate(expression, context)
		if err != nil {
			t.Fatalf("repeat Evaluate failed: %v", err)
		}
		if again != first {
			t.Fatalf("Evaluate not stable: run %d = %v, first = %v", i, again, first)
		}
	}
}

func TestEvaluateNeverPanics(t *testing.T) {
	// A handful of malformed shapes; none may escape as a panic.
	inputs := []string{
		`{"/": [1, 0]}`,
		`{"var": 42}`,
		`{"unknownop": [1, 2]}`,
		`{"if": "not-an-array"}`,
	}
	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Evaluate panicked on %s: %v", raw, r)
				}
			}()
			_, _ = Evaluate(mustDecode(t, raw), map[string]any{})
		})
	}
}

func TestExtractVars(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       []string
	}{
		{
			name:       "single var",
			expression: `{">=": [{"var":"population"}, 5000]}`,
			want:       []string{"population"},
		},
		{
			name:       "nested and duplicated",
			expression: `{"and": [{">": [{"var":"a.b"}, 1]}, {"<": [{"var":"a.b"}, {"var":"c"}]}]}`,
			want:       []string{"a.b", "c"},
		},
		{
			name:       "var with default argument",
			expression: `{"==": [{"var": ["flag", false]}, true]}`,
			want:       []string{"flag"},
		},
		{
			name:       "no vars",
			expression: `{"==": [1, 1]}`,
			want:       []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVars(mustDecode(t, tt.expression))
			sort.Strings(got)
			sort.Strings(tt.want)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractVars() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractVars() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
