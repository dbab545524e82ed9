package model

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// FailureWorkerTimeout marks a job that exceeded the running timeout twice.
const FailureWorkerTimeout = "worker_timeout"

// Job is one asynchronous invocation of the AI capability for a single turn.
// Input is immutable after creation; Result/LastError are write-once at the
// terminal transition. Terminal jobs are retained for polling.
type Job struct {
	ID          string
	InterviewID string
	Input       string
	Status      JobStatus
	Result      string
	LastError   string
	Retries     int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	UpdatedAt   time.Time
}

func NewJob(id, interviewID, input string) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		InterviewID: interviewID,
		Input:       input,
		Status:      JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
