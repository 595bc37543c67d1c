package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestTTLGetSet(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int]().WithClock(clock.Now)

	c.Set("a", 1, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("expected entry to be fresh before TTL")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to expire at TTL")
	}
}

func TestTTLPerEntryTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, bool]().WithClock(clock.Now)

	c.Set("authorized", true, 2*time.Minute)
	c.Set("limited", false, 30*time.Second)

	clock.Advance(31 * time.Second)
	if _, ok := c.Get("limited"); ok {
		t.Error("expected short TTL entry to expire")
	}
	if _, ok := c.Get("authorized"); !ok {
		t.Error("expected long TTL entry to survive")
	}
}

func TestTTLIgnoresNonPositive(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1, 0)
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestTTLSweepAndFlush(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int]().WithClock(clock.Now)

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("expected 1 entry swept, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}

	c.Flush()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after flush, got %d", c.Len())
	}
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := New[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(j, n, time.Minute)
				c.Get(j)
				if j%10 == 0 {
					c.Sweep()
				}
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Errorf("expected 100 entries, got %d", c.Len())
	}
}
