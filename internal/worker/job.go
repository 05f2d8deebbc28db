package worker

import "time"

// Status tracks a job through its lifecycle.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one accepted analysis submission. The orchestrator owns the struct;
// callers receive snapshots.
type Job struct {
	ID          string
	OwnerID     string
	FileName    string
	InputPath   string
	Status      Status
	SubmittedAt time.Time
	FinishedAt  time.Time
	ErrMessage  string
}
