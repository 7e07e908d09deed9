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
	"github.com/AleutianAI/Worldsmith/services/rulesworker/graph"
)

// EvaluationOrderRequest is the body of POST /v1/graph/order.
type EvaluationOrderRequest struct {
	CampaignID   string   `json:"campaignId" binding:"required"`
	BranchID     string   `json:"branchId"`
	ConditionIDs []string `json:"conditionIds"`
}

// EvaluationOrderResponse lists node ids in evaluation order.
type EvaluationOrderResponse struct {
	NodeIDs    []string `json:"nodeIds"`
	TotalNodes int      `json:"totalNodes"`
}

// ValidateDependenciesRequest is the body of POST /v1/graph/validate.
type ValidateDependenciesRequest struct {
	CampaignID string `json:"campaignId" binding:"required"`
	BranchID   string `json:"branchId"`
}

// ValidateDependenciesResponse reports cycle status for a scope.
type ValidateDependenciesResponse struct {
	HasCycle bool     `json:"hasCycle"`
	Cycles   []string `json:"cycles"`
	Message  string   `json:"message"`
}

// GetEvaluationOrder handles POST /v1/graph/order.
//
// With conditionIds the order is filtered to the requested conditions;
// without, the full node order is returned. TotalNodes always counts the
// whole order, before filtering.
func GetEvaluationOrder(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EvaluationOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		sorted, err := coord.GetEvaluationOrder(c.Request.Context(), req.CampaignID, req.BranchID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !sorted.Success {
			c.JSON(http.StatusConflict, gin.H{"error": sorted.Error})
			return
		}

		nodeIDs := sorted.Order
		if len(req.ConditionIDs) > 0 {
			requested := make(map[string]bool, len(req.ConditionIDs))
			for _, id := range req.ConditionIDs {
				requested[graph.NodeID(graph.NodeTypeCondition, id)] = true
			}
			filtered := make([]string, 0, len(req.ConditionIDs))
			for _, nodeID := range sorted.Order {
				if requested[nodeID] {
					filtered = append(filtered, nodeID)
				}
			}
			nodeIDs = filtered
		}

		c.JSON(http.StatusOK, EvaluationOrderResponse{
			NodeIDs:    nodeIDs,
			TotalNodes: len(sorted.Order),
		})
	}
}

// ValidateDependencies handles POST /v1/graph/validate.
func ValidateDependencies(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateDependenciesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		report, err := coord.ValidateNoCycles(c.Request.Context(), req.CampaignID, req.BranchID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := ValidateDependenciesResponse{
			HasCycle: report.HasCycles,
			Cycles:   make([]string, 0, report.CycleCount),
			Message:  "No dependency cycles detected",
		}
		for _, cycle := range report.Cycles {
			resp.Cycles = append(resp.Cycles, cycle.Description)
		}
		if report.HasCycles {
			resp.Message = fmt.Sprintf("Found %d dependency cycle(s)", report.CycleCount)
		}
		c.JSON(http.StatusOK, resp)
	}
}
