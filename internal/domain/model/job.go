package model

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// GenerationJob is a deferred generation request. It transitions
// pending -> processing -> completed|failed exactly once; after a terminal
// state it is retained for caller polling only.
type GenerationJob struct {
	ID          string
	AccountID   string
	Feature     Feature
	Request     *GenerationRequest
	Status      JobStatus
	Priority    int
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      *GenerationResult
	LastError   string
}

// Terminal reports whether the job has reached a final state.
func (j *GenerationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
