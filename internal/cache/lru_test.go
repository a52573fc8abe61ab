package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedCache[T any](size int, ttl time.Duration) (*LRUCache[T], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[T](size, ttl)
	c.now = clock.Now
	return c, clock
}

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache[string](3, time.Hour)
	var evicted []string
	cache.OnEvict(func(key string, _ string) { evicted = append(evicted, key) })

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	cache.Set("key3", "value3")
	cache.Set("key4", "value4") // Should evict key1

	if _, found := cache.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, key := range []string{"key2", "key3", "key4"} {
		if _, found := cache.Get(key); !found {
			t.Errorf("%s should still exist", key)
		}
	}
	if len(evicted) != 1 || evicted[0] != "key1" {
		t.Errorf("evicted = %v, want [key1]", evicted)
	}
}

func TestLRUCacheGetRefreshesRecency(t *testing.T) {
	cache := NewLRUCache[int](2, time.Hour)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Get("a")
	cache.Set("c", 3) // b is now the oldest

	if _, found := cache.Get("b"); found {
		t.Error("b should have been evicted")
	}
	if v, found := cache.Get("a"); !found || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, found)
	}
}

// TestLRUCacheTTLExpiration tests time-based expiration
func TestLRUCacheTTLExpiration(t *testing.T) {
	cache, clock := newClockedCache[string](100, time.Minute)
	var evicted []string
	cache.OnEvict(func(key string, _ string) { evicted = append(evicted, key) })

	cache.Set("key1", "value1")
	if _, found := cache.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	clock.Advance(2 * time.Minute)

	if _, found := cache.Get("key1"); found {
		t.Error("key1 should have expired")
	}
	if len(evicted) != 1 {
		t.Errorf("evicted = %v, want one entry", evicted)
	}
}

func TestLRUCacheSlidingTTL(t *testing.T) {
	cache, clock := newClockedCache[string](100, time.Minute)
	cache.Set("key1", "value1")

	for i := 0; i < 3; i++ {
		clock.Advance(40 * time.Second)
		if _, found := cache.Get("key1"); !found {
			t.Fatalf("key1 should stay alive while read, round %d", i)
		}
	}
}

// TestLRUCacheCleanExpired tests the cleanup mechanism
func TestLRUCacheCleanExpired(t *testing.T) {
	cache, clock := newClockedCache[string](100, time.Minute)
	count := 0
	cache.OnEvict(func(string, string) { count++ })

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	clock.Advance(30 * time.Second)
	cache.Set("key3", "value3")
	clock.Advance(45 * time.Second)

	if removed := cache.CleanExpired(); removed != 2 {
		t.Errorf("Expected 2 items cleaned, got %d", removed)
	}
	if count != 2 {
		t.Errorf("OnEvict called %d times, want 2", count)
	}
	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", cache.Size())
	}
}

func TestLRUCacheDeleteSkipsEvictHook(t *testing.T) {
	cache := NewLRUCache[string](10, time.Hour)
	called := false
	cache.OnEvict(func(string, string) { called = true })

	cache.Set("key1", "value1")
	cache.Delete("key1")

	if called {
		t.Error("Delete should not call the evict hook")
	}
	if cache.Size() != 0 {
		t.Errorf("Size() = %d, want 0", cache.Size())
	}
}

func TestLRUCachePurge(t *testing.T) {
	cache := NewLRUCache[int](10, time.Hour)
	evicted := map[string]int{}
	cache.OnEvict(func(key string, v int) { evicted[key] = v })

	cache.Set("a", 1)
	cache.Set("b", 2)

	if n := cache.Purge(); n != 2 {
		t.Errorf("Purge() = %d, want 2", n)
	}
	if cache.Size() != 0 {
		t.Errorf("Size() = %d, want 0", cache.Size())
	}
	if evicted["a"] != 1 || evicted["b"] != 2 {
		t.Errorf("evicted = %v", evicted)
	}
	cache.Set("c", 3)
	if v, ok := cache.Get("c"); !ok || v != 3 {
		t.Error("cache should be usable after Purge")
	}
}

func TestManagerCleanNow(t *testing.T) {
	a, clockA := newClockedCache[string](10, time.Minute)
	b, _ := newClockedCache[int](10, time.Hour)
	a.Set("x", "1")
	b.Set("y", 2)
	clockA.Advance(2 * time.Minute)

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)

	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[string](10, time.Hour))
	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

// BenchmarkLRUCache benchmarks cache performance
func BenchmarkLRUCache(b *testing.B) {
	cache := NewLRUCache[string](1000, time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := "bench-key"
		if i%10 == 0 {
			cache.Set(key, "value")
		} else {
			cache.Get(key)
		}
	}
}
