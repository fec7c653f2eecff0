package cache

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock drives expiration without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLRU[V any](maxEntries int, ttl time.Duration, clock *fakeClock) *LRU[V] {
	c := NewLRU[V](LRUConfig{
		MaxEntries: maxEntries,
		DefaultTTL: ttl,
		Logger:     testLogger(),
	})
	if clock != nil {
		c.now = clock.Now
	}
	return c
}

func TestLRUSetAndGet(t *testing.T) {
	cache := newTestLRU[string](10, 5*time.Minute, nil)

	cache.Set("key1", "value1")

	val, ok := cache.Get("key1")
	if !ok {
		t.Fatal("expected key1 to be found")
	}
	if val != "value1" {
		t.Errorf("expected value1, got %v", val)
	}

	if _, ok := cache.Get("key2"); ok {
		t.Error("expected key2 to not be found")
	}

	if cache.Size() != 1 {
		t.Errorf("expected size 1, got %d", cache.Size())
	}
}

func TestLRUEmptyValueIsAHit(t *testing.T) {
	cache := newTestLRU[string](10, time.Minute, nil)

	cache.Set("acme", "")

	val, ok := cache.Get("acme")
	if !ok {
		t.Fatal("expected cached empty value to be found")
	}
	if val != "" {
		t.Errorf("expected empty value, got %q", val)
	}
}

func TestLRUExpiration(t *testing.T) {
	clock := newFakeClock()
	cache := newTestLRU[int](10, time.Minute, clock)

	cache.Set("key1", 1)
	if _, ok := cache.Get("key1"); !ok {
		t.Fatal("expected key1 to be found immediately")
	}

	clock.Advance(2 * time.Minute)

	if _, ok := cache.Get("key1"); ok {
		t.Error("expected key1 to be expired")
	}

	metrics := cache.Metrics()
	if metrics.Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", metrics.Expirations)
	}
	if cache.Size() != 0 {
		t.Errorf("expected expired entry to be removed, size %d", cache.Size())
	}
}

func TestLRUSetWithTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newTestLRU[int](10, time.Hour, clock)

	cache.SetWithTTL("short", 1, time.Second)
	cache.Set("long", 2)

	clock.Advance(time.Minute)

	if _, ok := cache.Get("short"); ok {
		t.Error("expected short to be expired")
	}
	if _, ok := cache.Get("long"); !ok {
		t.Error("expected long to still be cached")
	}
}

func TestLRUEviction(t *testing.T) {
	cache := newTestLRU[int](3, time.Hour, nil)

	var evicted []string
	cache.OnRemove(func(key string, value int) {
		evicted = append(evicted, key)
	})

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	// Touch a so b becomes the least recently used.
	cache.Get("a")
	cache.Set("d", 4)

	if _, ok := cache.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("expected %s to be cached", key)
		}
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("expected eviction callback for b, got %v", evicted)
	}
	if cache.Metrics().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", cache.Metrics().Evictions)
	}
}

func TestLRUUpdateKeepsSize(t *testing.T) {
	cache := newTestLRU[int](2, time.Hour, nil)

	cache.Set("a", 1)
	cache.Set("a", 2)

	if cache.Size() != 1 {
		t.Errorf("expected size 1, got %d", cache.Size())
	}
	if v, _ := cache.Get("a"); v != 2 {
		t.Errorf("expected updated value 2, got %d", v)
	}
}

func TestLRUDeleteAndPrefix(t *testing.T) {
	cache := newTestLRU[int](10, time.Hour, nil)

	cache.Set("user1:f1", 1)
	cache.Set("user1:f2", 2)
	cache.Set("user2:f1", 3)

	if !cache.Delete("user2:f1") {
		t.Error("expected delete to report removal")
	}
	if cache.Delete("missing") {
		t.Error("expected delete of missing key to report false")
	}
	if n := cache.DeletePrefix("user1:"); n != 2 {
		t.Errorf("expected 2 prefix deletions, got %d", n)
	}
	if cache.Size() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Size())
	}
}

func TestLRUCleanup(t *testing.T) {
	clock := newFakeClock()
	cache := newTestLRU[int](10, time.Minute, clock)

	var removed int
	cache.OnRemove(func(string, int) { removed++ })

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.SetWithTTL("c", 3, time.Hour)

	clock.Advance(2 * time.Minute)

	if n := cache.Cleanup(); n != 2 {
		t.Errorf("expected 2 expired entries, got %d", n)
	}
	if removed != 2 {
		t.Errorf("expected callback for 2 entries, got %d", removed)
	}
	if cache.Size() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", cache.Size())
	}
}

func TestLRUValuesMostRecentFirst(t *testing.T) {
	cache := newTestLRU[int](10, time.Hour, nil)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Get("a")

	values := cache.Values()
	if len(values) != 2 || values[0] != 1 || values[1] != 2 {
		t.Errorf("expected [1 2], got %v", values)
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	cache := newTestLRU[int](50, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%20)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Size() > 50 {
		t.Errorf("expected at most 50 entries, got %d", cache.Size())
	}
}

func TestMetricsHitRate(t *testing.T) {
	if rate := (Metrics{}).HitRate(); rate != 0 {
		t.Errorf("expected 0 hit rate, got %f", rate)
	}
	if rate := (Metrics{Hits: 3, Misses: 1}).HitRate(); rate != 75 {
		t.Errorf("expected 75 hit rate, got %f", rate)
	}
}
