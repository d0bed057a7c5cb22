package engine

import (
	"testing"
	"time"
)

func TestCacheExpiresOnInjectedClock(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.Now = func() time.Time { return now }
	c.Put(Analysis{ID: "a1", ProjectID: "P1"})
	if a, ok := c.Get("P1"); !ok || a.ID != "a1" {
		t.Fatalf("expected cached analysis, got %+v %v", a, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("P1"); ok {
		t.Fatalf("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be dropped, len=%d", c.Len())
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	for _, id := range []string{"P1", "P2", "P3"} {
		c.Put(Analysis{ID: "a-" + id, ProjectID: id})
	}
	c.Invalidate("P2")
	if _, ok := c.Get("P2"); ok {
		t.Fatalf("P2 should be invalidated")
	}
	if _, ok := c.Get("P1"); !ok {
		t.Fatalf("P1 should survive a targeted invalidate")
	}
	c.Invalidate()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, len=%d", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := &Cache{TTL: time.Hour, Size: 2}
	c.Put(Analysis{ProjectID: "P1"})
	c.Put(Analysis{ProjectID: "P2"})
	c.Get("P1")
	c.Put(Analysis{ProjectID: "P3"})
	if _, ok := c.Get("P2"); ok {
		t.Fatalf("P2 should have been evicted")
	}
	if _, ok := c.Get("P1"); !ok {
		t.Fatalf("P1 was used recently and should remain")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	c.Put(Analysis{ProjectID: "P1"})
	c.Invalidate()
	if _, ok := c.Get("P1"); ok || c.Len() != 0 {
		t.Fatalf("nil cache should hold nothing")
	}
}
