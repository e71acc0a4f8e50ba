package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ytdl-relay/internal/config"
	"ytdl-relay/internal/downloader"
	"ytdl-relay/internal/models"
	"ytdl-relay/internal/storage"
)

var ErrServerBusy = errors.New("no worker slot available")

// Downloader resolves and fetches media for a job.
type Downloader interface {
	Resolve(ctx context.Context, url string) (*downloader.Media, error)
	Download(ctx context.Context, media *downloader.Media, height int, destBase string, r downloader.Reporter) (string, error)
}

// Manager creates jobs and runs one worker goroutine per job.
type Manager struct {
	ctx    context.Context
	store  *Store
	dl     Downloader
	files  *storage.Artifacts
	cfg    *config.Config
	logger *zap.Logger

	queue chan struct{}
	wg    sync.WaitGroup
}

// NewManager returns a Manager whose workers stop when ctx is cancelled.
func NewManager(ctx context.Context, store *Store, dl Downloader, files *storage.Artifacts, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		ctx:    ctx,
		store:  store,
		dl:     dl,
		files:  files,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

func (m *Manager) Store() *Store { return m.store }

// Create registers a job and starts its worker. It never blocks on I/O.
func (m *Manager) Create(req models.CreateJobRequest) (models.Job, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	job, err := m.store.Create(id, req.URL, req.Quality)
	if err != nil {
		return models.Job{}, err
	}

	m.wg.Add(1)
	go m.run(id, req.URL, downloader.ParseQuality(req.Quality))

	return job, nil
}

// Wait blocks until every worker has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(id, url string, height int) {
	defer m.wg.Done()
	log := m.logger.With(zap.String("job_id", id))

	// Concurrency limit
	timer := time.NewTimer(m.cfg.QueueTimeout)
	defer timer.Stop()
	select {
	case m.queue <- struct{}{}:
		defer func() { <-m.queue }()
	case <-timer.C:
		m.fail(log, id, ErrServerBusy)
		return
	case <-m.ctx.Done():
		m.fail(log, id, m.ctx.Err())
		return
	}

	if err := m.store.Start(id); err != nil {
		log.Debug("Job vanished before start", zap.Error(err))
		return
	}
	log.Info("Job started", zap.String("url", url), zap.Int("height", height))

	filename, err := m.process(id, url, height)
	if err != nil {
		m.fail(log, id, err)
		return
	}

	if err := m.store.Complete(id, filename); err != nil {
		// purged while running; nobody can claim the file any more
		log.Info("Job gone before completion, removing artifact", zap.Error(err))
		if rmErr := m.files.Remove(filename); rmErr != nil {
			log.Warn("Could not remove artifact", zap.Error(rmErr))
		}
		return
	}
	log.Info("Job ready", zap.String("filename", filename))
}

func (m *Manager) process(id, url string, height int) (string, error) {
	resolveCtx, cancel := context.WithTimeout(m.ctx, m.cfg.ResolveTimeout)
	media, err := m.dl.Resolve(resolveCtx, url)
	cancel()
	if err != nil {
		return "", err
	}
	_ = m.store.SetTitle(id, media.Title)

	fetchCtx, cancel := context.WithTimeout(m.ctx, m.cfg.FetchTimeout)
	defer cancel()
	path, err := m.dl.Download(fetchCtx, media, height, m.files.Base(id), jobReporter{store: m.store, id: id})
	if err != nil {
		return "", err
	}
	return filepath.Base(path), nil
}

func (m *Manager) fail(log *zap.Logger, id string, err error) {
	msg := downloader.Describe(err)
	if errors.Is(err, ErrServerBusy) {
		msg = "Server busy, please try again in a moment."
	}
	log.Warn("Job failed", zap.Error(err), zap.String("message", msg))
	if ferr := m.store.Fail(id, msg); ferr != nil && !errors.Is(ferr, ErrJobNotFound) {
		log.Error("Could not record failure", zap.Error(ferr))
	}
}

// jobReporter writes engine progress straight into the store.
type jobReporter struct {
	store *Store
	id    string
}

func (r jobReporter) Progress(pct float64) { _ = r.store.SetProgress(r.id, pct) }

func (r jobReporter) Converting() { _ = r.store.SetConverting(r.id) }
