package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int64, string](2, time.Minute)
	c.Set(1, "a")
	c.Set(2, "b")
	if _, ok := c.Get(1); !ok { // 1 is now most recent
		t.Fatal("expected key 1")
	}
	c.Set(3, "c")

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Errorf("Get(1) = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int64, int](10, time.Minute).WithClock(clock.Now)

	c.Set(1, 100)
	c.Set(2, 200)
	clock.Advance(30 * time.Second)
	c.Set(2, 201) // refreshes expiry

	clock.Advance(45 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Error("key 1 should have expired")
	}
	if v, ok := c.Get(2); !ok || v != 201 {
		t.Errorf("Get(2) = %d, %v", v, ok)
	}

	clock.Advance(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRUCacheEvictsExpiredFirst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int64, int](2, time.Minute).WithClock(clock.Now)

	c.Set(1, 100)
	clock.Advance(50 * time.Second)
	c.Set(2, 200)
	c.Get(1) // 1 is most recent but expires first
	clock.Advance(20 * time.Second)
	c.Set(3, 300)

	if _, ok := c.Get(2); !ok {
		t.Error("live key 2 evicted while an expired entry existed")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache[string, int](4, time.Minute)
	c.Set("x", 1)
	c.Delete("x")
	c.Delete("missing")
	if _, ok := c.Get("x"); ok {
		t.Error("deleted key still present")
	}
}
