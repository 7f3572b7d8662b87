package cache

import (
	"sync"
	"testing"
)

func TestGetOrSetComputesOnceThenReuses(t *testing.T) {
	c := New[string, int](2)

	calls := 0
	v := c.GetOrSet("a", func() int {
		calls++
		return 42
	})
	if v != 42 {
		t.Errorf("GetOrSet = %d; want 42", v)
	}
	if calls != 1 {
		t.Errorf("fn called %d times; want 1", calls)
	}

	v = c.GetOrSet("a", func() int {
		calls++
		return 99
	})
	if v != 42 {
		t.Errorf("GetOrSet = %d; want 42 (cached)", v)
	}
	if calls != 1 {
		t.Errorf("fn called %d times; want 1 (should use cache)", calls)
	}
}

func TestGetOrSetEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.GetOrSet("a", func() int { return 1 })
	c.GetOrSet("b", func() int { return 2 })

	// Touch 'a' so 'b' becomes the least recently used entry.
	c.GetOrSet("a", func() int { return -1 })

	cCalls := 0
	c.GetOrSet("c", func() int { cCalls++; return 3 })

	// Check 'a' before looking 'b' up again: re-inserting 'b' into the full
	// cache evicts whichever entry is then least recently used.
	aCalls := 0
	c.GetOrSet("a", func() int { aCalls++; return -1 })
	if aCalls != 0 {
		t.Errorf("'a' should still be cached, fn was called %d times", aCalls)
	}

	bCalls := 0
	c.GetOrSet("b", func() int { bCalls++; return -2 })
	if bCalls != 1 {
		t.Errorf("'b' should have been evicted and recomputed, got %d calls", bCalls)
	}
	_ = cCalls
}

func TestNewZeroCapacityDefaults(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < 150; i++ {
		i := i
		c.GetOrSet(i, func() int { return i })
	}
	// Only the default capacity's worth of recently used entries survive.
	if _, ok := c.items[0]; ok {
		t.Error("entry 0 should have been evicted once capacity was exceeded")
	}
}

func TestGetOrSetConcurrentSameKeyComputesOnce(t *testing.T) {
	c := New[string, int](10)

	var wg sync.WaitGroup
	var calls int
	var mu sync.Mutex
	n := 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrSet("shared", func() int {
				mu.Lock()
				calls++
				mu.Unlock()
				return 7
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("fn computed %d times across %d concurrent callers; want 1", calls, n)
	}
}
