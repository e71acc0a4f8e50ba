package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ytdl-relay/internal/config"
	"ytdl-relay/internal/storage"
)

// Janitor expires old jobs and their files on a fixed cadence.
type Janitor struct {
	store    *Store
	files    *storage.Artifacts
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewJanitor(store *Store, files *storage.Artifacts, cfg *config.Config, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:    store,
		files:    files,
		ttl:      cfg.DownloadTTL,
		interval: cfg.SweepInterval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Janitor started", zap.Duration("interval", j.interval), zap.Duration("ttl", j.ttl))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes every job older than the TTL along with its artifact, then
// purges files in the download and temp directories that outlived the TTL.
// It returns the number of jobs removed. Errors are logged, never returned.
func (j *Janitor) Sweep() int {
	expired := j.store.RemoveExpired(j.ttl)
	for _, job := range expired {
		if job.Filename != "" {
			if err := j.files.Remove(job.Filename); err != nil {
				j.logger.Warn("Janitor: could not remove artifact",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}
		j.logger.Debug("Janitor: expired job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
	}

	purged, err := j.files.PurgeOlderThan(j.now().Add(-j.ttl))
	if err != nil {
		j.logger.Warn("Janitor: purge incomplete", zap.Error(err))
	}
	if len(expired) > 0 || purged > 0 {
		j.logger.Info("Janitor: cleanup finished", zap.Int("jobs", len(expired)), zap.Int("files", purged))
	}
	return len(expired)
}
