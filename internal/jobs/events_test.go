package jobs

import (
	"context"
	"testing"
	"time"

	"ytdl-relay/internal/models"
)

func collect(t *testing.T, ch <-chan models.Event) []models.Event {
	t.Helper()
	var events []models.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("channel not closed, got %d events so far", len(events))
			return nil
		}
	}
}

func TestWatch_ProgressThenComplete(t *testing.T) {
	s := NewStore()
	s.Create("a", testURL, "720p")

	go func() {
		s.Start("a")
		for _, pct := range []float64{10, 10, 25, 25, 60, 99} {
			s.SetProgress("a", pct)
			time.Sleep(3 * time.Millisecond)
		}
		s.Complete("a", "a.mp4")
	}()

	events := collect(t, Watch(context.Background(), s, "a", time.Millisecond))
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	last := events[len(events)-1]
	if last.Type != models.EventComplete || last.Filename != "a.mp4" {
		t.Fatalf("expected final complete event, got %+v", last)
	}

	prev := -1.0
	for _, ev := range events[:len(events)-1] {
		if ev.Type != models.EventProgress || ev.Progress == nil {
			t.Fatalf("non-progress event before terminal: %+v", ev)
		}
		if *ev.Progress <= prev {
			t.Fatalf("progress not strictly increasing: %v after %v", *ev.Progress, prev)
		}
		prev = *ev.Progress
	}
}

func TestWatch_Error(t *testing.T) {
	s := NewStore()
	s.Create("a", testURL, "720p")
	s.Start("a")
	s.SetProgress("a", 40)
	s.Fail("a", "boom")

	events := collect(t, Watch(context.Background(), s, "a", time.Millisecond))
	if len(events) != 1 || events[0].Type != models.EventError || events[0].Message != "boom" {
		t.Fatalf("expected a single error event, got %+v", events)
	}
}

func TestWatch_MissingJobClosesSilently(t *testing.T) {
	events := collect(t, Watch(context.Background(), NewStore(), "nope", time.Millisecond))
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestWatch_JobRemovedMidStream(t *testing.T) {
	s := NewStore()
	s.Create("a", testURL, "720p")
	s.Start("a")

	ch := Watch(context.Background(), s, "a", time.Millisecond)
	first := <-ch
	if first.Type != models.EventProgress || *first.Progress != 0 {
		t.Fatalf("expected initial progress 0, got %+v", first)
	}

	s.Delete("a")
	for ev := range ch {
		if ev.IsTerminal() {
			t.Fatalf("unexpected terminal event after removal: %+v", ev)
		}
	}
}

func TestWatch_ContextCancel(t *testing.T) {
	s := NewStore()
	s.Create("a", testURL, "720p")

	ctx, cancel := context.WithCancel(context.Background())
	ch := Watch(ctx, s, "a", time.Millisecond)
	<-ch
	cancel()

	for range ch {
	}
}
