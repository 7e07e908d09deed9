// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resultcache is the in-process TTL cache for evaluation results.
//
// Keys encode (campaignId, branchId, nodeId) tuples injectively so prefix
// deletion maps exactly onto tuple-prefix matching. Capacity is bounded by
// a hard key cap with LRU eviction; a background sweep removes expired
// entries between accesses.
package resultcache

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default capacity and lifetime settings. Out-of-range configuration is
// clamped to these bounds by the config package.
const (
	DefaultTTL         = 300 * time.Second
	DefaultCheckPeriod = 60 * time.Second
	DefaultMaxKeys     = 10000
)

// usageWarnRatio is the fill fraction at which a capacity warning is logged.
const usageWarnRatio = 0.9

// entry is one cached value with its expiry and LRU bookkeeping.
type entry struct {
	key       string
	value     any
	expiresAt time.Time
	valueSize int
	lruElem   *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Keys    int     `json:"keys"`
	KSize   int64   `json:"ksize"`
	VSize   int64   `json:"vsize"`
	HitRate float64 `json:"hitRate"`
}

// Options configures a Cache.
type Options struct {
	TTL         time.Duration
	CheckPeriod time.Duration
	MaxKeys     int
	Logger      *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithTTL sets the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

// WithCheckPeriod sets the expiry sweep interval.
func WithCheckPeriod(period time.Duration) Option {
	return func(o *Options) { o.CheckPeriod = period }
}

// WithMaxKeys sets the hard key cap.
func WithMaxKeys(maxKeys int) Option {
	return func(o *Options) { o.MaxKeys = maxKeys }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Cache is a bounded key→value map with TTL expiry, LRU eviction and
// prefix-based bulk delete.
//
// # Thread Safety
//
// Safe for concurrent use. One mutex guards the map and LRU list; hit and
// miss counters are atomics so GetStats never takes the write path.
//
// # Limitations
//
// Get and Set do not clone values. Stored results are treated as immutable
// at the protocol level.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used
	opts    Options

	ksize int64
	vsize int64

	hits      int64
	misses    int64
	evictions int64

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// New creates a Cache with the given options.
func New(opts ...Option) *Cache {
	options := Options{
		TTL:         DefaultTTL,
		CheckPeriod: DefaultCheckPeriod,
		MaxKeys:     DefaultMaxKeys,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Cache{
		entries:   make(map[string]*entry),
		lru:       list.New(),
		opts:      options,
		sweepStop: make(chan struct{}),
	}
}

// Set stores a value under the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

// SetWithTTL stores a value with a per-entry lifetime override.
//
// When the cache is full the least recently used entry is evicted first.
// A warning is logged once usage crosses 90% of capacity.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.TTL
	}
	valueSize := approxSize(value)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.vsize += int64(valueSize - existing.valueSize)
		existing.value = value
		existing.valueSize = valueSize
		existing.expiresAt = now.Add(ttl)
		c.lru.MoveToFront(existing.lruElem)
		return
	}

	for len(c.entries) >= c.opts.MaxKeys {
		c.evictOldestLocked()
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: now.Add(ttl),
		valueSize: valueSize,
	}
	e.lruElem = c.lru.PushFront(e)
	c.entries[key] = e
	c.ksize += int64(len(key))
	c.vsize += int64(valueSize)

	if float64(len(c.entries)) >= usageWarnRatio*float64(c.opts.MaxKeys) {
		c.opts.Logger.Warn("result cache nearing capacity",
			"keys", len(c.entries),
			"max_keys", c.opts.MaxKeys)
	}
}

// evictOldestLocked removes the LRU tail. Caller holds the mutex.
func (c *Cache) evictOldestLocked() {
	tail := c.lru.Back()
	if tail == nil {
		return
	}
	c.removeLocked(tail.Value.(*entry))
	atomic.AddInt64(&c.evictions, 1)
}

// removeLocked detaches an entry from the map, list and size counters.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.lruElem)
	c.ksize -= int64(len(e.key))
	c.vsize -= int64(e.valueSize)
}

// Get retrieves a value and refreshes its LRU position. Expired entries
// are removed on access and count as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(time.Now()) {
		c.removeLocked(e)
		ok = false
	}
	if !ok {
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	c.lru.MoveToFront(e.lruElem)
	value := e.value
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Has reports whether a live entry exists without touching hit or miss
// counters or the LRU order.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !e.expired(time.Now())
}

// Invalidate removes a single key. Returns true when an entry was removed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// InvalidateByPrefix removes every entry of a campaign, or of a campaign
// branch when branchID is nonempty. Returns the number of removed entries.
func (c *Cache) InvalidateByPrefix(campaignID, branchID string) int {
	prefix := CampaignPrefix(campaignID)
	if branchID != "" {
		prefix = BranchPrefix(campaignID, branchID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Clear removes every entry. Counters other than key and byte sizes are
// preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.ksize = 0
	c.vsize = 0
}

// Keys returns every live key in unspecified order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// KeysByPrefix returns the live keys of a campaign, or of a campaign
// branch when branchID is nonempty.
func (c *Cache) KeysByPrefix(campaignID, branchID string) []string {
	prefix := CampaignPrefix(campaignID)
	if branchID != "" {
		prefix = BranchPrefix(campaignID, branchID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	keys := make([]string, 0)
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetStats returns a snapshot of the cache counters. HitRate is 0 when no
// accesses have occurred.
func (c *Cache) GetStats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	c.mu.Lock()
	stats := Stats{
		Hits:   hits,
		Misses: misses,
		Keys:   len(c.entries),
		KSize:  c.ksize,
		VSize:  c.vsize,
	}
	c.mu.Unlock()

	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Evictions returns the number of capacity evictions performed.
func (c *Cache) Evictions() int64 {
	return atomic.LoadInt64(&c.evictions)
}

// StartSweeper launches the periodic expiry sweep. Call StopSweeper on
// shutdown.
func (c *Cache) StartSweeper() {
	go func() {
		ticker := time.NewTicker(c.opts.CheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.sweepStop:
				return
			}
		}
	}()
}

// StopSweeper terminates the sweep goroutine. Idempotent.
func (c *Cache) StopSweeper() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

// sweep removes every expired entry in one pass.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
		}
	}
}

// approxSize estimates the JSON-serialised footprint of a value for the
// vsize counter. Unserialisable values count as zero.
func approxSize(value any) int {
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return len(data)
}
