package models

import "time"

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobDead    JobStatus = "dead"
)

// Job is one queued match-end event. The payload is the game identifier and
// nothing else; the worker resolves every dependency from its own process.
type Job struct {
	ID        int64     `json:"id"`
	GameID    string    `json:"game_id"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	RunAt     time.Time `json:"run_at"`
	LastError *string   `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
