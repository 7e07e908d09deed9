// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the rules worker's environment configuration.
//
// Bad values never crash the service: non-numeric or out-of-range settings
// fall back to their defaults with a logged warning, and bounded settings
// are clamped.
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Defaults and bounds for the cache settings.
const (
	DefaultCacheTTLSeconds = 300
	MinCacheTTLSeconds     = 1
	MaxCacheTTLSeconds     = 86400

	DefaultCacheCheckPeriodSeconds = 60
	MinCacheCheckPeriodSeconds     = 10
	MaxCacheCheckPeriodSeconds     = 3600

	DefaultCacheMaxKeys = 10000
	MinCacheMaxKeys     = 100
	MaxCacheMaxKeys     = 1000000
)

// Config holds the worker's runtime settings.
type Config struct {
	// CacheTTLSeconds is the default result-cache entry lifetime.
	CacheTTLSeconds int
	// CacheCheckPeriodSeconds is the expiry sweep interval.
	CacheCheckPeriodSeconds int
	// CacheMaxKeys is the hard key cap triggering eviction.
	CacheMaxKeys int

	// Bus endpoint (Redis pub/sub).
	BusHost     string
	BusPort     int
	BusPassword string
	BusDB       int

	// HTTPPort is the listener for the RPC, health and metrics surface.
	HTTPPort int

	// DatabaseURL is the read-only relational store DSN.
	DatabaseURL string

	// OTLPEndpoint is the OTLP gRPC collector address; empty disables
	// trace export.
	OTLPEndpoint string
}

// FromEnv reads the configuration from the environment.
func FromEnv(logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	return Config{
		CacheTTLSeconds: clampedEnvInt(logger, "CACHE_TTL_SECONDS",
			DefaultCacheTTLSeconds, MinCacheTTLSeconds, MaxCacheTTLSeconds),
		CacheCheckPeriodSeconds: clampedEnvInt(logger, "CACHE_CHECK_PERIOD_SECONDS",
			DefaultCacheCheckPeriodSeconds, MinCacheCheckPeriodSeconds, MaxCacheCheckPeriodSeconds),
		CacheMaxKeys: clampedEnvInt(logger, "CACHE_MAX_KEYS",
			DefaultCacheMaxKeys, MinCacheMaxKeys, MaxCacheMaxKeys),

		BusHost:     getEnvString("BUS_HOST", "localhost"),
		BusPort:     getEnvInt(logger, "BUS_PORT", 6379),
		BusPassword: getEnvString("BUS_PASSWORD", ""),
		BusDB:       getEnvInt(logger, "BUS_DB", 0),

		HTTPPort:    getEnvInt(logger, "HTTP_PORT", 3001),
		DatabaseURL: getEnvString("DATABASE_URL", ""),

		OTLPEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// getEnvString returns an environment variable, or defaultVal if not set.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns an environment variable as int, warning and falling
// back to defaultVal when not numeric.
func getEnvInt(logger *slog.Logger, key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		logger.Warn("ignoring non-numeric configuration value",
			"key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return intVal
}

// clampedEnvInt reads an int setting and clamps it into [low, high],
// warning whenever the configured value is adjusted.
func clampedEnvInt(logger *slog.Logger, key string, defaultVal, low, high int) int {
	val := getEnvInt(logger, key, defaultVal)
	switch {
	case val < low:
		logger.Warn("configuration value below minimum, clamping",
			"key", key, "value", val, "minimum", low)
		return low
	case val > high:
		logger.Warn("configuration value above maximum, clamping",
			"key", key, "value", val, "maximum", high)
		return high
	default:
		return val
	}
}
