// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rulesworker assembles the rules-evaluation worker service.
//
// # Description
//
// The worker evaluates field conditions (JSONLogic expressions) against
// caller-supplied context data. It keeps a per-(campaign, branch)
// dependency graph for batch ordering and cycle detection, caches
// successful results with TTL and LRU bounds, and applies out-of-band
// invalidation events arriving on a Redis pub/sub bus.
//
// # Usage
//
//	cfg := config.FromEnv(nil)
//	svc, err := rulesworker.New(context.Background(), cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package rulesworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/Worldsmith/services/rulesworker/bus"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/config"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/coordinator"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/engine"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/middleware"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/observability"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/resultcache"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/routes"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/store"
)

// serviceName identifies the worker in traces and logs.
const serviceName = "rulesworker-service"

// Service is the assembled worker.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

type service struct {
	config config.Config
	logger *slog.Logger

	store      store.Store
	cache      *resultcache.Cache
	coord      *coordinator.Coordinator
	engine     *engine.Engine
	subscriber *bus.Subscriber
	busClient  *redis.Client
	router     *gin.Engine

	tracerCleanup func(context.Context)
}

// New assembles the worker from its configuration.
//
// # Inputs
//
//   - ctx: bounds store connectivity checks during startup.
//   - cfg: runtime settings, normally from config.FromEnv.
//   - auth: bearer-token validator; nil selects the nop provider.
func New(ctx context.Context, cfg config.Config, auth middleware.AuthProvider) (Service, error) {
	s := &service{
		config: cfg,
		logger: slog.Default(),
	}
	if auth == nil {
		auth = &middleware.NopAuthProvider{}
	}

	cleanup, err := s.initTracer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	observability.InitMetrics()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	s.store, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	s.cache = resultcache.New(
		resultcache.WithTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second),
		resultcache.WithCheckPeriod(time.Duration(cfg.CacheCheckPeriodSeconds)*time.Second),
		resultcache.WithMaxKeys(cfg.CacheMaxKeys),
		resultcache.WithLogger(s.logger),
	)
	s.coord = coordinator.New(s.store, s.logger)
	s.engine = engine.New(s.store, s.cache, s.coord, s.logger)

	s.busClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.BusHost, cfg.BusPort),
		Password: cfg.BusPassword,
		DB:       cfg.BusDB,
	})
	s.subscriber = bus.NewSubscriber(s.busClient, s.cache, s.coord, s.logger)

	s.initRouter(auth)
	return s, nil
}

// initTracer wires the OTLP gRPC exporter into the global tracer provider.
// An empty endpoint disables export and returns a no-op cleanup.
func (s *service) initTracer(ctx context.Context) (func(context.Context), error) {
	if s.config.OTLPEndpoint == "" {
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(s.config.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func (s *service) initRouter(auth middleware.AuthProvider) {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(s.router, s.engine, s.coord, s.cache, auth)
}

// Run starts the sweeper, the bus subscriber and the HTTP server, then
// blocks until SIGINT/SIGTERM. Shutdown drains in-flight requests before
// closing the store.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.cache.StartSweeper()
	defer s.cache.StopSweeper()

	busErr := make(chan error, 1)
	go func() { busErr <- s.subscriber.Run(ctx) }()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler: s.router,
	}
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()

	s.logger.Info("rules worker started", "port", s.config.HTTPPort)

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case err := <-busErr:
		if err != nil {
			return fmt.Errorf("bus subscriber failed: %w", err)
		}
	}

	// Stop the bus first so no invalidation races the drain, then give
	// in-flight requests a window to finish.
	s.subscriber.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// cleanup releases the worker's long-lived resources. Safe on a partially
// constructed service.
func (s *service) cleanup() {
	if s.busClient != nil {
		if err := s.busClient.Close(); err != nil {
			s.logger.Warn("failed to close bus client", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close store", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
