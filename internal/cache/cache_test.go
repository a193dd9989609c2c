package cache

import (
	"sync"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory(0)

	c.Set(SummaryKey("2026-08-30"), "summary", time.Minute)

	val, found := c.Get(SummaryKey("2026-08-30"))
	if !found || val != "summary" {
		t.Fatalf("got %v, %v", val, found)
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory(0)

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("expected expiry")
	}
	if stats := c.Stats(); stats.Misses != 1 {
		t.Errorf("misses = %d", stats.Misses)
	}
}

func TestMemoryJanitorEvicts(t *testing.T) {
	c := NewMemory(20 * time.Millisecond)
	defer c.(*memoryCache).Stop()

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	stats := c.Stats()
	if stats.CurrentSize != 0 {
		t.Errorf("size = %d, janitor should have evicted", stats.CurrentSize)
	}
	if stats.Evictions == 0 {
		t.Error("expected at least one eviction")
	}
}

func TestMemoryDeleteAndClear(t *testing.T) {
	c := NewMemory(0)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("a should be deleted")
	}

	c.Clear()
	if stats := c.Stats(); stats.CurrentSize != 0 {
		t.Errorf("size after clear = %d", stats.CurrentSize)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	c := NewMemory(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("shared", id, time.Minute)
				c.Get("shared")
			}
		}(i)
	}
	wg.Wait()

	if stats := c.Stats(); stats.Sets != 1000 {
		t.Errorf("sets = %d, want 1000", stats.Sets)
	}
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOp()

	c.Set("k", "v", time.Minute)
	if _, found := c.Get("k"); found {
		t.Error("noop cache must not store")
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := SummaryKey("2026-08-30"); got != "summary:2026-08-30" {
		t.Errorf("SummaryKey = %q", got)
	}
	if got := ReadinessKey("2026-08-30"); got != "readiness:2026-08-30" {
		t.Errorf("ReadinessKey = %q", got)
	}
}
