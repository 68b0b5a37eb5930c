package journal

import "time"

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Source says what started an execution.
type Source string

const (
	SourceHotkey     Source = "hotkey"
	SourceBackground Source = "background"
	SourceAPI        Source = "api"
)

// Execution is one finished plugin run.
type Execution struct {
	ID         string    `json:"id"`
	Plugin     string    `json:"plugin"`
	Source     Source    `json:"source"`
	HotkeyID   uint32    `json:"hotkey_id,omitempty"`
	Status     Status    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is how long the execution ran.
func (e Execution) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}
