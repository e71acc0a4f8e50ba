package jobs

import (
	"context"
	"time"

	"ytdl-relay/internal/models"
)

// Watch polls the store for job id and emits its live events on the
// returned channel. Progress is sent only when it changes; a ready or
// failed job yields one terminal event. The channel is closed after the
// terminal event, when the job disappears, or when ctx is done.
func Watch(ctx context.Context, store *Store, id string, interval time.Duration) <-chan models.Event {
	out := make(chan models.Event)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := -1.0
		for {
			job, ok := store.Get(id)
			if !ok {
				return
			}

			var ev models.Event
			send := true
			switch job.Status {
			case models.StatusReady:
				ev = models.CompleteEvent(job.Filename)
			case models.StatusError:
				ev = models.ErrorEvent(job.Error)
			default:
				if job.Progress == last {
					send = false
				} else {
					last = job.Progress
					ev = models.ProgressEvent(job.Progress)
				}
			}

			if send {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.IsTerminal() {
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
