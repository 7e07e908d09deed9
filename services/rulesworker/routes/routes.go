// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/Worldsmith/services/rulesworker/coordinator"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/engine"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/handlers"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/middleware"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/resultcache"
)

// SetupRoutes wires the worker's HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, coord *coordinator.Coordinator,
	cache *resultcache.Cache, auth middleware.AuthProvider) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RequestID(), middleware.AuthMiddleware(auth))
	{
		v1.POST("/evaluate", handlers.EvaluateCondition(eng))
		v1.POST("/evaluate/batch", handlers.EvaluateConditions(eng))

		graphOps := v1.Group("/graph")
		{
			graphOps.POST("/order", handlers.GetEvaluationOrder(coord))
			graphOps.POST("/validate", handlers.ValidateDependencies(coord))
		}

		cacheOps := v1.Group("/cache")
		{
			cacheOps.POST("/invalidate", handlers.InvalidateCache(cache, coord))
			cacheOps.GET("/stats", handlers.GetCacheStats(cache))
		}
	}
}
