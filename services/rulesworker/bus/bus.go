// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bus consumes out-of-band invalidation events from Redis pub/sub
// and applies them to the result cache and the graph coordinator.
//
// Dispatch is synchronous on the subscriber goroutine: once an event for a
// key has been received, the affected entries are invalidated before the
// next message is read, so an RPC arriving after the event never sees the
// stale entry for that key.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AleutianAI/Worldsmith/services/rulesworker/graph"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/observability"
	"github.com/AleutianAI/Worldsmith/services/rulesworker/resultcache"
)

// Invalidation channel names.
const (
	ChannelConditionCreated = "condition.created"
	ChannelConditionUpdated = "condition.updated"
	ChannelConditionDeleted = "condition.deleted"
	ChannelVariableCreated  = "variable.created"
	ChannelVariableUpdated  = "variable.updated"
	ChannelVariableDeleted  = "variable.deleted"
)

// Channels lists every channel the subscriber listens on.
var Channels = []string{
	ChannelConditionCreated,
	ChannelConditionUpdated,
	ChannelConditionDeleted,
	ChannelVariableCreated,
	ChannelVariableUpdated,
	ChannelVariableDeleted,
}

// Reconnection policy: exponential backoff with a 1 s step, a 10 s cap and
// at most 10 attempts per outage.
const (
	reconnectStep     = 1 * time.Second
	reconnectCap      = 10 * time.Second
	reconnectAttempts = 10
)

// Event is the payload published on every invalidation channel.
type Event struct {
	CampaignID string `json:"campaignId"`
	BranchID   string `json:"branchId,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ResultCache is the slice of the cache surface the subscriber mutates.
type ResultCache interface {
	Invalidate(key string) bool
	InvalidateByPrefix(campaignID, branchID string) int
}

// GraphCoordinator is the slice of the coordinator surface the subscriber
// mutates.
type GraphCoordinator interface {
	InvalidateGraph(campaignID, branchID string) error
}

// Subscriber listens on the invalidation channels and applies the events.
//
// # Thread Safety
//
// Run is single-goroutine; Stop may be called from any goroutine and is
// idempotent.
type Subscriber struct {
	client  *redis.Client
	cache   ResultCache
	graphs  GraphCoordinator
	logger  *slog.Logger
	metrics *observability.RulesMetrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSubscriber creates a Subscriber over an existing Redis client.
func NewSubscriber(client *redis.Client, cache ResultCache, graphs GraphCoordinator, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:  client,
		cache:   cache,
		graphs:  graphs,
		logger:  logger,
		metrics: observability.DefaultMetrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run subscribes and consumes until the context is cancelled or Stop is
// called. Transient failures trigger reconnection with backoff; after the
// attempt cap is exhausted Run returns the last error.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.done)

	attempt := 0
	for {
		connected, err := s.consume(ctx)
		if err == nil || s.stopping(ctx) {
			return nil
		}
		if connected {
			// A session that got past the handshake resets the budget;
			// the cap bounds attempts per outage, not per process.
			attempt = 0
		}

		attempt++
		if attempt > reconnectAttempts {
			return fmt.Errorf("bus subscriber gave up after %d reconnect attempts: %w",
				reconnectAttempts, err)
		}

		delay := backoffDelay(attempt)
		s.logger.Warn("bus connection lost, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay)
		if s.metrics != nil {
			s.metrics.BusReconnectsTotal.Inc()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		}
	}
}

// Stop terminates the consumer. Safe to call multiple times; returns once
// Run has exited.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// stopping reports whether shutdown has been requested, in which case
// reconnection is suppressed.
func (s *Subscriber) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// backoffDelay grows exponentially from the step and saturates at the cap.
func backoffDelay(attempt int) time.Duration {
	delay := reconnectStep
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= reconnectCap {
			return reconnectCap
		}
	}
	return delay
}

// consume runs one subscription session. Returns a nil error on orderly
// shutdown, the receive error otherwise; connected reports whether the
// SUBSCRIBE handshake succeeded.
func (s *Subscriber) consume(ctx context.Context) (connected bool, err error) {
	sub := s.client.Subscribe(ctx, Channels...)
	defer sub.Close()

	// Force the SUBSCRIBE handshake so connection failures surface here
	// instead of on the first receive.
	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe failed: %w", err)
	}
	s.logger.Info("bus subscriber connected", "channels", len(Channels))

	messages := sub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				if s.stopping(ctx) {
					return true, nil
				}
				return true, errors.New("bus message stream closed")
			}
			s.handleMessage(msg.Channel, msg.Payload)
		case <-ctx.Done():
			return true, nil
		case <-s.stop:
			return true, nil
		}
	}
}

// handleMessage applies one event. Malformed payloads, missing campaign
// ids and unknown channels are logged and dropped.
func (s *Subscriber) handleMessage(channel, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("dropping malformed bus event",
			"channel", channel, "error", err)
		s.countEvent(channel, "dropped")
		return
	}
	if event.CampaignID == "" {
		s.logger.Warn("dropping bus event without campaignId", "channel", channel)
		s.countEvent(channel, "dropped")
		return
	}
	if event.BranchID == "" {
		event.BranchID = "main"
	}

	switch channel {
	case ChannelConditionCreated:
		s.invalidateGraph(event)
	case ChannelConditionUpdated, ChannelConditionDeleted:
		s.invalidateConditionKey(event)
		s.invalidateGraph(event)
	case ChannelVariableCreated:
		s.invalidateGraph(event)
	case ChannelVariableUpdated:
		// Values changed but structure did not: flush results, keep graph.
		s.cache.InvalidateByPrefix(event.CampaignID, event.BranchID)
	case ChannelVariableDeleted:
		s.cache.InvalidateByPrefix(event.CampaignID, event.BranchID)
		s.invalidateGraph(event)
	default:
		s.logger.Warn("dropping bus event on unknown channel", "channel", channel)
		s.countEvent(channel, "dropped")
		return
	}

	s.countEvent(channel, "handled")
}

func (s *Subscriber) invalidateConditionKey(event Event) {
	if event.EntityID == "" {
		return
	}
	key := resultcache.EncodeKey(event.CampaignID, event.BranchID,
		graph.NodeID(graph.NodeTypeCondition, event.EntityID))
	s.cache.Invalidate(key)
}

func (s *Subscriber) invalidateGraph(event Event) {
	if err := s.graphs.InvalidateGraph(event.CampaignID, event.BranchID); err != nil {
		s.logger.Warn("graph invalidation failed",
			"campaign_id", event.CampaignID,
			"branch_id", event.BranchID,
			"error", err)
	}
}

func (s *Subscriber) countEvent(channel, disposition string) {
	if s.metrics != nil {
		s.metrics.BusEventsTotal.WithLabelValues(channel, disposition).Inc()
	}
}
