// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the rules worker.
//
// The handlers are thin: they parse the caller's contextJson, delegate to
// the engine or coordinator, and serialise the response. Evaluation
// failures are reported in the response body with success=false; HTTP
// error codes are reserved for malformed requests.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Worldsmith/services/rulesworker/engine"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	ConditionID  string `json:"conditionId" binding:"required"`
	CampaignID   string `json:"campaignId" binding:"required"`
	BranchID     string `json:"branchId"`
	ContextJSON  string `json:"contextJson"`
	IncludeTrace bool   `json:"includeTrace"`
}

// BatchEvaluateRequest is the body of POST /v1/evaluate/batch.
type BatchEvaluateRequest struct {
	ConditionIDs       []string `json:"conditionIds" binding:"required"`
	CampaignID         string   `json:"campaignId" binding:"required"`
	BranchID           string   `json:"branchId"`
	ContextJSON        string   `json:"contextJson"`
	IncludeTrace       bool     `json:"includeTrace"`
	UseDependencyOrder bool     `json:"useDependencyOrder"`
}

// BatchEvaluateResponse is the body of a batch evaluation reply.
type BatchEvaluateResponse struct {
	Results               map[string]*engine.Result `json:"results"`
	TotalEvaluationTimeMs int64                     `json:"totalEvaluationTimeMs"`
	EvaluationOrder       []string                  `json:"evaluationOrder"`
}

// parseContext decodes the caller's contextJson. An empty string is an
// empty context; a non-object document is rejected.
func parseContext(contextJSON string) (map[string]any, error) {
	if contextJSON == "" {
		return map[string]any{}, nil
	}
	var evalCtx map[string]any
	if err := json.Unmarshal([]byte(contextJSON), &evalCtx); err != nil {
		return nil, err
	}
	return evalCtx, nil
}

// EvaluateCondition handles POST /v1/evaluate.
func EvaluateCondition(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		evalCtx, err := parseContext(req.ContextJSON)
		if err != nil {
			// Parser failures never reach the engine.
			c.JSON(http.StatusOK, &engine.Result{Success: false, Error: err.Error()})
			return
		}

		result := eng.Evaluate(c.Request.Context(), req.ConditionID, evalCtx,
			req.CampaignID, req.BranchID, req.IncludeTrace)
		c.JSON(http.StatusOK, result)
	}
}

// EvaluateConditions handles POST /v1/evaluate/batch.
//
// evaluationOrder reflects the order actually used: the dependency order
// when the caller requests it, the request order otherwise.
func EvaluateConditions(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchEvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		start := time.Now()

		evalCtx, err := parseContext(req.ContextJSON)
		if err != nil {
			results := make(map[string]*engine.Result, len(req.ConditionIDs))
			for _, id := range req.ConditionIDs {
				results[id] = &engine.Result{Success: false, Error: err.Error()}
			}
			c.JSON(http.StatusOK, BatchEvaluateResponse{
				Results:               results,
				TotalEvaluationTimeMs: time.Since(start).Milliseconds(),
				EvaluationOrder:       []string{},
			})
			return
		}

		var batch *engine.BatchResult
		if req.UseDependencyOrder {
			batch = eng.EvaluateConditions(c.Request.Context(), req.ConditionIDs,
				evalCtx, req.CampaignID, req.BranchID, req.IncludeTrace)
		} else {
			batch = &engine.BatchResult{Results: make(map[string]*engine.Result, len(req.ConditionIDs))}
			for _, id := range req.ConditionIDs {
				if _, done := batch.Results[id]; done {
					continue
				}
				batch.Results[id] = eng.Evaluate(c.Request.Context(), id, evalCtx,
					req.CampaignID, req.BranchID, req.IncludeTrace)
				batch.Order = append(batch.Order, id)
			}
		}

		if batch.Order == nil {
			batch.Order = []string{}
		}
		c.JSON(http.StatusOK, BatchEvaluateResponse{
			Results:               batch.Results,
			TotalEvaluationTimeMs: time.Since(start).Milliseconds(),
			EvaluationOrder:       batch.Order,
		})
	}
}
