package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

func TestWindow_RejectsOverLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindow(3, 600*time.Second)
	w.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := w.Admit(ctx, "10.0.0.1")
		if !ok {
			t.Fatalf("request %d should be admitted", i+1)
		}
		clock.Advance(time.Second)
	}

	ok, _ := w.Admit(ctx, "10.0.0.1")
	if ok {
		t.Fatal("4th request within the window should be rejected")
	}
	if n := w.Count("10.0.0.1"); n != 3 {
		t.Errorf("rejected request must not be recorded, expected 3 got %d", n)
	}

	if ok, _ := w.Admit(ctx, "10.0.0.2"); !ok {
		t.Error("other clients should have their own window")
	}
}

func TestWindow_SlidesOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindow(2, time.Minute)
	w.now = clock.Now
	ctx := context.Background()

	w.Admit(ctx, "c")
	clock.Advance(30 * time.Second)
	w.Admit(ctx, "c")

	if ok, _ := w.Admit(ctx, "c"); ok {
		t.Fatal("expected rejection at limit")
	}

	// First admission leaves the window exactly one minute after it happened.
	clock.Advance(30 * time.Second)
	if ok, _ := w.Admit(ctx, "c"); !ok {
		t.Fatal("expected admission after the oldest entry expired")
	}
	if n := w.Count("c"); n != 2 {
		t.Errorf("expected 2 entries in window, got %d", n)
	}

	clock.Advance(2 * time.Minute)
	if n := w.Count("c"); n != 0 {
		t.Errorf("expected empty window, got %d", n)
	}
	if _, ok := w.hits["c"]; ok {
		t.Error("empty client entries should be dropped")
	}
}

func TestWindow_ConcurrentAdmits(t *testing.T) {
	w := NewWindow(5, time.Hour)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Admit(ctx, "same"); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("expected exactly 5 admissions, got %d", admitted)
	}
}

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Redis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRedis(client, limit, window, "")
	l.now = clock.Now
	return l, clock
}

func TestRedis_RejectsOverLimit(t *testing.T) {
	l, clock := newRedisLimiter(t, 3, 600*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Admit(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be admitted", i+1)
		}
		clock.Advance(time.Second)
	}

	ok, err := l.Admit(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if ok {
		t.Fatal("4th request should be rejected")
	}

	n, err := l.Count(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 recorded admissions, got %d", n)
	}
}

func TestRedis_SlidesOverTime(t *testing.T) {
	l, clock := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := l.Admit(ctx, "c"); !ok {
		t.Fatal("first request should be admitted")
	}
	if ok, _ := l.Admit(ctx, "c"); ok {
		t.Fatal("second request should be rejected")
	}

	clock.Advance(time.Minute)
	if ok, err := l.Admit(ctx, "c"); err != nil || !ok {
		t.Fatalf("expected admission after window, got %v, %v", ok, err)
	}
}

func TestRedis_ErrorWhenUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, 3, time.Minute, "rl:")
	mr.Close()

	if _, err := l.Admit(context.Background(), "c"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
