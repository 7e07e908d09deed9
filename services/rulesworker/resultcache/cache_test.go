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

import (
	"fmt"
	"testing"
	"time"
)

func TestEncodeKey(t *testing.T) {
	t.Run("layout", func(t *testing.T) {
		got := EncodeKey("camp", "main", "CONDITION:c1")
		want := `campaign:camp:branch:main:node:CONDITION\:c1`
		if got != want {
			t.Errorf("EncodeKey = %q, want %q", got, want)
		}
	})

	t.Run("injective across delimiter abuse", func(t *testing.T) {
		// Tuples crafted so naive joining would collide.
		pairs := [][2][3]string{
			{{"a:b", "c", "d"}, {"a", "b:c", "d"}},
			{{"a", "b", "c:d"}, {"a", "b:c", "d"}},
			{{"camp:branch", "x", "n"}, {"camp", "branch:x", "n"}},
		}
		for _, pair := range pairs {
			left := EncodeKey(pair[0][0], pair[0][1], pair[0][2])
			right := EncodeKey(pair[1][0], pair[1][1], pair[1][2])
			if left == right {
				t.Errorf("collision: %v and %v both encode to %q", pair[0], pair[1], left)
			}
		}
	})

	t.Run("prefix matching equals tuple prefix", func(t *testing.T) {
		key := EncodeKey("camp", "main", "CONDITION:c1")
		other := EncodeKey("camp2", "main", "CONDITION:c1")

		prefix := CampaignPrefix("camp")
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			t.Error("key should match its own campaign prefix")
		}
		if len(other) >= len(prefix) && other[:len(prefix)] == prefix {
			t.Error("camp2 key must not match camp prefix")
		}
	})
}

func TestCache_SetGet(t *testing.T) {
	c := New()
	key := EncodeKey("camp", "main", "CONDITION:c1")

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set(key, "result")
	got, ok := c.Get(key)
	if !ok || got != "result" {
		t.Fatalf("Get = (%v, %v)", got, ok)
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Keys != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New()
	key := EncodeKey("camp", "main", "n")

	c.SetWithTTL(key, "v", 10*time.Millisecond)
	if !c.Has(key) {
		t.Fatal("entry should be live immediately")
	}

	time.Sleep(20 * time.Millisecond)
	if c.Has(key) {
		t.Error("entry should have expired")
	}
	if _, ok := c.Get(key); ok {
		t.Error("expired entry must miss")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(WithMaxKeys(3))

	c.Set("k1", 1)
	c.Set("k2", 2)
	c.Set("k3", 3)

	// Touch k1 so k2 becomes the LRU tail.
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("k1 should be present")
	}

	c.Set("k4", 4)

	if c.Has("k2") {
		t.Error("k2 should have been evicted as least recently used")
	}
	for _, key := range []string{"k1", "k3", "k4"} {
		if !c.Has(key) {
			t.Errorf("%s should survive eviction", key)
		}
	}
	if c.Evictions() != 1 {
		t.Errorf("Evictions = %d, want 1", c.Evictions())
	}
}

func TestCache_InvalidateByPrefix(t *testing.T) {
	seed := func() *Cache {
		c := New()
		c.Set(EncodeKey("camp", "main", "CONDITION:a"), 1)
		c.Set(EncodeKey("camp", "main", "CONDITION:b"), 2)
		c.Set(EncodeKey("camp", "dev", "CONDITION:a"), 3)
		c.Set(EncodeKey("other", "main", "CONDITION:a"), 4)
		return c
	}

	t.Run("campaign wide", func(t *testing.T) {
		c := seed()
		if removed := c.InvalidateByPrefix("camp", ""); removed != 3 {
			t.Errorf("removed = %d, want 3", removed)
		}
		if c.GetStats().Keys != 1 {
			t.Errorf("keys = %d, want 1", c.GetStats().Keys)
		}
	})

	t.Run("branch scoped", func(t *testing.T) {
		c := seed()
		if removed := c.InvalidateByPrefix("camp", "main"); removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}
		if !c.Has(EncodeKey("camp", "dev", "CONDITION:a")) {
			t.Error("other branch should be untouched")
		}
	})

	t.Run("escaped campaign does not bleed", func(t *testing.T) {
		c := New()
		c.Set(EncodeKey("camp", "x", "n"), 1)
		c.Set(EncodeKey("camp:x", "y", "n"), 2)

		if removed := c.InvalidateByPrefix("camp", ""); removed != 1 {
			t.Errorf("removed = %d, want 1", removed)
		}
		if !c.Has(EncodeKey("camp:x", "y", "n")) {
			t.Error("camp:x entry should survive invalidation of camp")
		}
	})
}

func TestCache_KeysByPrefix(t *testing.T) {
	c := New()
	c.Set(EncodeKey("camp", "main", "a"), 1)
	c.Set(EncodeKey("camp", "dev", "b"), 2)

	if got := c.KeysByPrefix("camp", "main"); len(got) != 1 {
		t.Errorf("branch keys = %v", got)
	}
	if got := c.KeysByPrefix("camp", ""); len(got) != 2 {
		t.Errorf("campaign keys = %v", got)
	}
	if got := c.KeysByPrefix("nope", ""); len(got) != 0 {
		t.Errorf("unknown campaign keys = %v", got)
	}
}

func TestCache_Clear(t *testing.T) {
	c := New()
	c.Set("k", "v")
	c.Clear()

	stats := c.GetStats()
	if stats.Keys != 0 || stats.KSize != 0 || stats.VSize != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
}

func TestCache_StatsSizes(t *testing.T) {
	c := New()
	c.Set("key1", "abc")

	stats := c.GetStats()
	if stats.KSize != 4 {
		t.Errorf("KSize = %d, want 4", stats.KSize)
	}
	// "abc" serialises to `"abc"`.
	if stats.VSize != 5 {
		t.Errorf("VSize = %d, want 5", stats.VSize)
	}

	// Overwrite adjusts, it does not accumulate.
	c.Set("key1", "abcdef")
	if got := c.GetStats().VSize; got != 8 {
		t.Errorf("VSize after overwrite = %d, want 8", got)
	}
}

func TestCache_HitRateZeroWhenIdle(t *testing.T) {
	if rate := New().GetStats().HitRate; rate != 0 {
		t.Errorf("HitRate = %v, want 0", rate)
	}
}

func TestCache_Sweeper(t *testing.T) {
	c := New(WithCheckPeriod(10 * time.Millisecond))
	c.StartSweeper()
	defer c.StopSweeper()

	for i := 0; i < 5; i++ {
		c.SetWithTTL(fmt.Sprintf("k%d", i), i, 5*time.Millisecond)
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		if c.GetStats().Keys == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("sweeper left %d keys", c.GetStats().Keys)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
