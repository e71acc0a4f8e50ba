package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ytdl-relay/internal/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	maxRunningProgress = 99
	convertingProgress = 95
)

// Store is the in-memory registry of jobs. All reads return copies; all
// state changes go through methods that enforce the status machine.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*models.Job), now: time.Now}
}

// Create registers a queued job.
func (s *Store) Create(id, url, quality string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return models.Job{}, ErrJobExists
	}
	job := &models.Job{
		ID:        id,
		URL:       url,
		Quality:   quality,
		Status:    models.StatusQueued,
		CreatedAt: s.now(),
	}
	s.jobs[id] = job
	return *job, nil
}

func (s *Store) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// List returns all jobs, oldest first.
func (s *Store) List() []models.Job {
	s.mu.RLock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) update(id string, fn func(job *models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	return fn(job)
}

func transition(job *models.Job, next models.Status) error {
	if !job.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	job.Status = next
	return nil
}

// Start moves a queued job to downloading at progress 0.
func (s *Store) Start(id string) error {
	return s.update(id, func(job *models.Job) error {
		if err := transition(job, models.StatusDownloading); err != nil {
			return err
		}
		job.Progress = 0
		return nil
	})
}

func (s *Store) SetTitle(id, title string) error {
	return s.update(id, func(job *models.Job) error {
		job.Title = title
		return nil
	})
}

// SetProgress records transfer progress. Values are capped at 99 and
// updates that would lower the current value are ignored.
func (s *Store) SetProgress(id string, pct float64) error {
	return s.update(id, func(job *models.Job) error {
		if !job.Status.IsActive() {
			return fmt.Errorf("%w: progress while %s", ErrInvalidTransition, job.Status)
		}
		if pct > maxRunningProgress {
			pct = maxRunningProgress
		}
		if pct > job.Progress {
			job.Progress = pct
		}
		return nil
	})
}

// SetConverting marks the mux stage.
func (s *Store) SetConverting(id string) error {
	return s.update(id, func(job *models.Job) error {
		if err := transition(job, models.StatusConverting); err != nil {
			return err
		}
		if job.Progress < convertingProgress {
			job.Progress = convertingProgress
		}
		return nil
	})
}

// Complete marks the job ready with its artifact name.
func (s *Store) Complete(id, filename string) error {
	return s.update(id, func(job *models.Job) error {
		if err := transition(job, models.StatusReady); err != nil {
			return err
		}
		job.Progress = 100
		job.Filename = filename
		return nil
	})
}

// Fail marks the job failed and discards its progress.
func (s *Store) Fail(id, msg string) error {
	return s.update(id, func(job *models.Job) error {
		if err := transition(job, models.StatusError); err != nil {
			return err
		}
		job.Progress = 0
		job.Error = msg
		return nil
	})
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// ByFilename returns the job that produced filename.
func (s *Store) ByFilename(filename string) (models.Job, bool) {
	if filename == "" {
		return models.Job{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Filename == filename {
			return *job, true
		}
	}
	return models.Job{}, false
}

// DeleteByFilename removes every job that produced filename and returns
// how many were removed.
func (s *Store) DeleteByFilename(filename string) int {
	if filename == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if job.Filename == filename {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// RemoveExpired deletes jobs created more than ttl ago, whatever their
// status, and returns what was removed. A worker finishing one of them
// afterwards gets ErrJobNotFound from Complete.
func (s *Store) RemoveExpired(ttl time.Duration) []models.Job {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			out = append(out, *job)
			delete(s.jobs, id)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
