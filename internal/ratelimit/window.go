package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits or rejects requests per client.
type Limiter interface {
	Admit(ctx context.Context, client string) (bool, error)
}

// Window is an in-memory sliding-window counter. Each client keeps the
// timestamps of its admitted requests inside the trailing window.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Admit never fails; the error is there to satisfy Limiter.
func (w *Window) Admit(_ context.Context, client string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	kept := w.prune(client, now)
	if len(kept) >= w.limit {
		return false, nil
	}
	w.hits[client] = append(kept, now)
	return true, nil
}

// Count returns how many admissions of client are inside the window.
func (w *Window) Count(client string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune(client, w.now()))
}

// prune drops timestamps that left the window. Caller holds mu.
func (w *Window) prune(client string, now time.Time) []time.Time {
	ts := w.hits[client]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= w.window {
		i++
	}
	kept := ts[i:]
	if len(kept) == 0 {
		delete(w.hits, client)
		return nil
	}
	w.hits[client] = kept
	return kept
}
