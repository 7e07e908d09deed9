// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical
// operations.
//
// This package contains validators for user-provided identifiers that are used
// in database queries and cache key construction. Using these validators
// prevents injection into the cache key delimiter scheme and into SQL queries.
package validation

import (
	"fmt"
	"regexp"
)

// Length limits for scope identifiers.
const (
	// MaxCampaignIDLength is the maximum accepted campaign id length.
	MaxCampaignIDLength = 100

	// MaxBranchIDLength is the maximum accepted branch id length.
	MaxBranchIDLength = 200
)

// DefaultBranch is the branch used when a request omits the branch id.
const DefaultBranch = "main"

// campaignPattern matches valid campaign identifiers.
// Allows: letters, digits, underscores, hyphens. Max 100 characters.
var campaignPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// branchPattern matches valid branch identifiers.
// Allows the campaign alphabet plus slashes (feature/alt-timeline style
// names). Max 200 characters.
var branchPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]+$`)

// ValidateCampaignID validates a campaign identifier.
//
// Valid campaign ids:
//   - 1-100 characters
//   - Letters A-Z a-z, digits 0-9, underscore, hyphen
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateCampaignID(campaignID); err != nil {
//	    return nil, fmt.Errorf("invalid campaign: %w", err)
//	}
//	// Safe to use in cache keys and queries
func ValidateCampaignID(id string) error {
	if id == "" {
		return fmt.Errorf("campaign id cannot be empty")
	}
	if len(id) > MaxCampaignIDLength {
		return fmt.Errorf("campaign id exceeds %d characters", MaxCampaignIDLength)
	}
	if !campaignPattern.MatchString(id) {
		return fmt.Errorf("invalid campaign id format: %q (must be alphanumeric, underscore, or hyphen)", id)
	}
	return nil
}

// ValidateBranchID validates a branch identifier.
//
// Valid branch ids:
//   - 1-200 characters
//   - Letters A-Z a-z, digits 0-9, underscore, hyphen, slash
//
// Returns an error if the id is invalid.
func ValidateBranchID(id string) error {
	if id == "" {
		return fmt.Errorf("branch id cannot be empty")
	}
	if len(id) > MaxBranchIDLength {
		return fmt.Errorf("branch id exceeds %d characters", MaxBranchIDLength)
	}
	if !branchPattern.MatchString(id) {
		return fmt.Errorf("invalid branch id format: %q (must be alphanumeric, underscore, hyphen, or slash)", id)
	}
	return nil
}

// NormalizeBranchID returns the branch id to use for a request, substituting
// DefaultBranch when the caller omitted it.
func NormalizeBranchID(id string) string {
	if id == "" {
		return DefaultBranch
	}
	return id
}

// ValidateScope validates a (campaign, branch) pair in one call.
// The branch is normalized first, so an empty branch is accepted.
// Returns the normalized branch id.
func ValidateScope(campaignID, branchID string) (string, error) {
	if err := ValidateCampaignID(campaignID); err != nil {
		return "", err
	}
	branchID = NormalizeBranchID(branchID)
	if err := ValidateBranchID(branchID); err != nil {
		return "", err
	}
	return branchID, nil
}
