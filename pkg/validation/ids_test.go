// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateCampaignID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "camp1", false},
		{"with underscore and hyphen", "camp_1-test", false},
		{"uuid style", "550e8400-e29b-41d4-a716-446655440000", false},
		{"empty", "", true},
		{"contains colon", "camp:1", true},
		{"contains slash", "camp/1", true},
		{"contains space", "camp 1", true},
		{"at limit", strings.Repeat("a", MaxCampaignIDLength), false},
		{"over limit", strings.Repeat("a", MaxCampaignIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCampaignID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCampaignID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBranchID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"main", "main", false},
		{"slash separated", "feature/what-if", false},
		{"empty", "", true},
		{"contains colon", "br:anch", true},
		{"at limit", strings.Repeat("b", MaxBranchIDLength), false},
		{"over limit", strings.Repeat("b", MaxBranchIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateScope(t *testing.T) {
	t.Run("empty branch defaults to main", func(t *testing.T) {
		branch, err := ValidateScope("camp1", "")
		if err != nil {
			t.Fatalf("ValidateScope failed: %v", err)
		}
		if branch != DefaultBranch {
			t.Errorf("branch = %q, want %q", branch, DefaultBranch)
		}
	})

	t.Run("invalid campaign rejected before branch default", func(t *testing.T) {
		if _, err := ValidateScope("", ""); err == nil {
			t.Error("expected error for empty campaign id")
		}
	})

	t.Run("explicit branch preserved", func(t *testing.T) {
		branch, err := ValidateScope("camp1", "alt/timeline-3")
		if err != nil {
			t.Fatalf("ValidateScope failed: %v", err)
		}
		if branch != "alt/timeline-3" {
			t.Errorf("branch = %q, want alt/timeline-3", branch)
		}
	})
}
