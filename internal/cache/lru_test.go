package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("empty cache reported a hit")
	}

	c.Set("a", 1)
	c.Set("b", 2)
	if v, found := c.Get("a"); !found || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, found)
	}

	// "a" was just used, so adding "c" evicts "b".
	c.Set("c", 3)
	if _, found := c.Get("b"); found {
		t.Error("least recently used entry survived eviction")
	}
	if _, found := c.Get("a"); !found {
		t.Error("recently used entry was evicted")
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)

	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("expired entry reported a hit")
	}

	c.Set("x", "y")
	time.Sleep(20 * time.Millisecond)
	if cleaned := c.CleanExpired(); cleaned != 1 {
		t.Errorf("CleanExpired = %d, want 1", cleaned)
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("hh-1|2025-03", 1)
	c.Set("hh-1|2025-04", 2)
	c.Set("hh-2|2025-03", 3)

	if dropped := c.DeletePrefix("hh-1|"); dropped != 2 {
		t.Errorf("DeletePrefix = %d, want 2", dropped)
	}
	if _, found := c.Get("hh-1|2025-03"); found {
		t.Error("prefixed entry survived DeletePrefix")
	}
	if _, found := c.Get("hh-2|2025-03"); !found {
		t.Error("unrelated entry was dropped")
	}
}

func TestManagerSweepsRegisteredCaches(t *testing.T) {
	c := NewLRUCache[int](10, 5*time.Millisecond)
	m := NewManager()
	m.Register(c)
	m.StartCleanup(10 * time.Millisecond)
	defer m.Stop()

	c.Set("k", 1)
	time.Sleep(50 * time.Millisecond)

	if c.Size() != 0 {
		t.Errorf("Size after sweep = %d, want 0", c.Size())
	}
}
