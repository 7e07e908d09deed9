// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resultcache

import "strings"

// escapeSegment makes a tuple segment safe to embed in an encoded key.
// Escaping the delimiter renders the tuple encoding injective: no two
// distinct (campaign, branch, node) tuples collide.
func escapeSegment(s string) string {
	return strings.ReplaceAll(s, ":", `\:`)
}

// EncodeKey serialises a (campaignId, branchId, nodeId) tuple into the
// cache's string key space.
func EncodeKey(campaignID, branchID, nodeID string) string {
	return "campaign:" + escapeSegment(campaignID) +
		":branch:" + escapeSegment(branchID) +
		":node:" + escapeSegment(nodeID)
}

// CampaignPrefix returns the key prefix covering every entry of a campaign.
func CampaignPrefix(campaignID string) string {
	return "campaign:" + escapeSegment(campaignID) + ":"
}

// BranchPrefix returns the key prefix covering every entry of a campaign
// branch.
func BranchPrefix(campaignID, branchID string) string {
	return "campaign:" + escapeSegment(campaignID) +
		":branch:" + escapeSegment(branchID) + ":"
}
