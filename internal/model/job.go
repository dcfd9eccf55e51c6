package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// JobType selects a sync job's target-selection policy.
type JobType string

const (
	JobTypeStaleRefresh JobType = "stale_refresh"
	JobTypeDiscover     JobType = "discover"
)

// JobStatus represents the lifecycle state of a sync job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrJobTerminal is returned when a transition is attempted on a finished job.
var ErrJobTerminal = eris.New("job is already terminal")

// SyncJob tracks one bulk refresh or discovery run.
type SyncJob struct {
	ID          string     `json:"id"`
	JobType     JobType    `json:"job_type"`
	Status      JobStatus  `json:"status"`
	Targets     []string   `json:"targets"`
	Processed   int        `json:"processed"`
	Updated     int        `json:"updated"`
	Changed     int        `json:"changed"`
	Failed      int        `json:"failed"`
	Cancelled   bool       `json:"cancelled"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Start moves a pending job to running.
func (j *SyncJob) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return eris.Errorf("job %s: cannot start from %s", j.ID, j.Status)
	}
	j.Status = JobStatusRunning
	j.StartedAt = &now
	return nil
}

// Complete moves a job to completed. Pending jobs may complete directly when
// there was nothing to do.
func (j *SyncJob) Complete(now time.Time) error {
	if j.Status.Terminal() {
		return eris.Wrapf(ErrJobTerminal, "job %s", j.ID)
	}
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	return nil
}

// Fail moves a job to failed with the given systemic error.
func (j *SyncJob) Fail(now time.Time, reason string) error {
	if j.Status.Terminal() {
		return eris.Wrapf(ErrJobTerminal, "job %s", j.ID)
	}
	j.Status = JobStatusFailed
	j.Error = reason
	j.CompletedAt = &now
	return nil
}

// SuccessRate is Updated / Processed, or 0 when nothing was processed.
func (j *SyncJob) SuccessRate() float64 {
	if j.Processed == 0 {
		return 0
	}
	return float64(j.Updated) / float64(j.Processed)
}

// JobFailure records one identifier that failed inside a job.
type JobFailure struct {
	JobID      string    `json:"job_id"`
	ExternalID string    `json:"external_id"`
	ErrorClass string    `json:"error_class"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}
