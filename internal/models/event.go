package models

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on a job's live-update channel.
type Event struct {
	Type     EventType `json:"type"`
	Progress *float64  `json:"progress,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func ProgressEvent(pct float64) Event {
	return Event{Type: EventProgress, Progress: &pct}
}

func CompleteEvent(filename string) Event {
	return Event{Type: EventComplete, Filename: filename}
}

func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
