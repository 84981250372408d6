package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cassa/internal/log"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Error("empty cache should miss")
	}
	c.Set("a", "1")
	c.Set("a", "2")
	if v, ok := c.Get("a"); !ok || v != "2" {
		t.Errorf("Get(a) = %q, %v; want 2, true", v, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "3")
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("CleanExpired() = %d, want 0 (a already dropped, b refreshed)", n)
	}
	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set(SummaryKey("g1", 2025, 2), "x")
	c.Set(SummaryKey("g1", 2025, 3), "y")
	c.Set(SummaryKey("g10", 2025, 3), "z")

	if n := c.DeletePrefix(GroupPrefix("g1")); n != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", n)
	}
	if _, ok := c.Get(SummaryKey("g10", 2025, 3)); !ok {
		t.Error("g10 must not match g1's prefix")
	}
	c.Delete(SummaryKey("g10", 2025, 3))
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[int](50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := fmt.Sprintf("k%d", (i*j)%80)
				c.Set(k, j)
				c.Get(k)
			}
		}(i)
	}
	wg.Wait()
	if c.Size() > 50 {
		t.Errorf("Size() = %d exceeds max", c.Size())
	}
}

func TestSummaryKey(t *testing.T) {
	if got := SummaryKey("g1", 2025, 3); got != "summary:g1:2025-03" {
		t.Errorf("SummaryKey() = %q", got)
	}
}

func TestManager_CleanNow(t *testing.T) {
	a, clk := newTestLRU(10, time.Minute)
	b, _ := newTestLRU(10, time.Minute)
	b.now = clk.now
	a.Set("x", "1")
	b.Set("y", "2")
	b.Set("z", "3")
	clk.t = clk.t.Add(2 * time.Minute)

	m := NewManager(log.Discard())
	m.Register(a)
	m.Register(b)
	if n := m.CleanNow(); n != 3 {
		t.Errorf("CleanNow() = %d, want 3", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
}
