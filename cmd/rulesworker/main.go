// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rulesworker starts the Worldsmith rules-evaluation worker.
//
// It reads configuration from environment variables and serves the
// evaluation RPCs over HTTP.
//
// # Environment Variables
//
//   - HTTP_PORT: HTTP server port (default: 3001)
//   - DATABASE_URL: read-only Postgres DSN (required)
//   - BUS_HOST, BUS_PORT, BUS_PASSWORD, BUS_DB: Redis pub/sub endpoint
//     (default: localhost:6379, db 0)
//   - CACHE_TTL_SECONDS: result cache entry lifetime (default: 300)
//   - CACHE_CHECK_PERIOD_SECONDS: expiry sweep interval (default: 60)
//   - CACHE_MAX_KEYS: result cache key cap (default: 10000)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o rulesworker ./cmd/rulesworker
//
//	# Run
//	DATABASE_URL=postgres://... ./rulesworker
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/AleutianAI/Worldsmith/services/rulesworker"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/config"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv(logger)
	slog.Info("Starting rules worker",
		"port", cfg.HTTPPort,
		"bus", cfg.BusHost,
		"cache_max_keys", cfg.CacheMaxKeys,
	)

	// Nil auth selects the no-op provider; enterprise builds pass a real
	// token validator here.
	svc, err := rulesworker.New(context.Background(), cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create rules worker: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Rules worker error: %v", err)
	}
}
