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

func newTestCache(t *testing.T) (*TTLCache[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New[string](100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c.WithClock(clock.Now), clock
}

func TestTTLCache_RoundTripAndExpiry(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("k", "v", 60)
	if got, ok := c.Get("k"); !ok || got != "v" {
		t.Fatalf("Get after Put: got %q, %v", got, ok)
	}

	clock.Advance(60 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired at exactly expiresAt; want still present")
	}

	clock.Advance(time.Millisecond)
	if got, ok := c.Get("k"); ok {
		t.Fatalf("Get after expiry: got %q, want absent", got)
	}
	// 过期条目在读取时被删除，时钟回拨也读不到
	clock.Advance(-time.Hour)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry not purged on read")
	}
}

func TestTTLCache_NonPositiveTTLStoresNothing(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("zero", "v", 0)
	c.Put("neg", "v", -5)
	for _, k := range []string{"zero", "neg"} {
		if _, ok := c.Get(k); ok {
			t.Fatalf("%s: stored with non-positive ttl", k)
		}
	}
}

func TestTTLCache_LastWriteWins(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("k", "first", 60)
	c.Put("k", "second", 60)
	if got, _ := c.Get("k"); got != "second" {
		t.Fatalf("Get: got %q, want %q", got, "second")
	}
}

func TestTTLCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("k", "v", 60)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get after Delete: want absent")
	}
}

func TestTTLCache_MissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	if got, ok := c.Get("nope"); ok || got != "" {
		t.Fatalf("Get: got %q, %v", got, ok)
	}
}
