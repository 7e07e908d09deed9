// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Worldsmith/services/rulesworker/coordinator"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/resultcache"
)

// sampleKeyLimit caps the number of keys exposed by the stats endpoint.
const sampleKeyLimit = 10

// InvalidateCacheRequest is the body of POST /v1/cache/invalidate.
type InvalidateCacheRequest struct {
	CampaignID string   `json:"campaignId" binding:"required"`
	BranchID   string   `json:"branchId"`
	NodeIDs    []string `json:"nodeIds"`
}

// InvalidateCacheResponse reports how many entries were removed.
type InvalidateCacheResponse struct {
	InvalidatedCount int    `json:"invalidatedCount"`
	Message          string `json:"message"`
}

// CacheStatsResponse is the body of GET /v1/cache/stats.
type CacheStatsResponse struct {
	Hits       int64    `json:"hits"`
	Misses     int64    `json:"misses"`
	Keys       int      `json:"keys"`
	KSize      int64    `json:"ksize"`
	VSize      int64    `json:"vsize"`
	HitRate    float64  `json:"hitRate"`
	SampleKeys []string `json:"sampleKeys"`
}

// InvalidateCache handles POST /v1/cache/invalidate.
//
// With nodeIds, the named entries are removed; without, the whole scope
// is flushed. The scope's dependency graph is dropped either way so the
// next evaluation sees fresh structure.
func InvalidateCache(cache *resultcache.Cache, coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvalidateCacheRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		branchID := req.BranchID
		if branchID == "" {
			branchID = "main"
		}

		count := 0
		if len(req.NodeIDs) == 0 {
			count = cache.InvalidateByPrefix(req.CampaignID, branchID)
		} else {
			for _, nodeID := range req.NodeIDs {
				if cache.Invalidate(resultcache.EncodeKey(req.CampaignID, branchID, nodeID)) {
					count++
				}
			}
		}

		if err := coord.InvalidateGraph(req.CampaignID, branchID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, InvalidateCacheResponse{
			InvalidatedCount: count,
			Message:          fmt.Sprintf("Invalidated %d cache entries", count),
		})
	}
}

// GetCacheStats handles GET /v1/cache/stats.
//
// sampleKeys is populated only when a campaignId is supplied, and only
// with that campaign's keys: exposing the global key space would leak
// other campaigns' identifiers.
func GetCacheStats(cache *resultcache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := cache.GetStats()
		resp := CacheStatsResponse{
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			Keys:       stats.Keys,
			KSize:      stats.KSize,
			VSize:      stats.VSize,
			HitRate:    stats.HitRate,
			SampleKeys: []string{},
		}

		if campaignID := c.Query("campaignId"); campaignID != "" {
			keys := cache.KeysByPrefix(campaignID, c.Query("branchId"))
			if len(keys) > sampleKeyLimit {
				keys = keys[:sampleKeyLimit]
			}
			resp.SampleKeys = keys
		}
		c.JSON(http.StatusOK, resp)
	}
}
