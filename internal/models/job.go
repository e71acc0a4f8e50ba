package models

import (
	"time"
)

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusReady       Status = "ready"
	StatusError       Status = "error"
)

var statusRank = map[Status]int{
	StatusQueued:      0,
	StatusDownloading: 1,
	StatusConverting:  2,
	StatusReady:       3,
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// IsActive reports whether the job is transferring or muxing.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusConverting
}

// CanTransition reports whether a job in state s may move to next.
// Transitions only go forward; any non-terminal state may fail.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	n, ok := statusRank[next]
	if !ok {
		return false
	}
	return n > cur
}

// Job holds the full state of one download.
type Job struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Quality   string    `json:"quality"`
	Title     string    `json:"title,omitempty"`
	Status    Status    `json:"status"`
	Progress  float64   `json:"progress"`
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateJobRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	ID      string `json:"id,omitempty"`
}

type CreateJobResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}
