package repository

import (
	"context"
	"time"

	"interview-orchestrator/internal/domain/model"
)

type JobRepository interface {
	// Enqueue inserts a pending job. It fails with ErrDuplicateActiveJob when
	// the interview already has a pending or running job; the facade's state
	// guard should make that unreachable, so observing it is a consistency bug.
	Enqueue(ctx context.Context, tx Tx, job *model.Job) error

	// ClaimNext atomically picks one pending job and marks it running. No two
	// callers may claim the same job. Returns ErrNotFound when the queue is
	// empty (non-blocking).
	ClaimNext(ctx context.Context) (*model.Job, error)

	// Complete transitions running -> completed and sets the result.
	// Fails with ErrInvalidTransition unless the job is running.
	Complete(ctx context.Context, tx Tx, jobID, result string) (*model.Job, error)

	// Fail transitions running -> failed and records the reason.
	Fail(ctx context.Context, tx Tx, jobID, reason string) (*model.Job, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	FindActiveByInterview(ctx context.Context, tx Tx, interviewID string) (*model.Job, error)

	// FindTimedOut returns running jobs claimed longer than olderThan ago,
	// locked for the surrounding transaction so the reaper's requeue/fail
	// cannot race a late worker completion.
	FindTimedOut(ctx context.Context, tx Tx, olderThan time.Duration, limit int) ([]*model.Job, error)

	// Requeue puts a timed-out running job back to pending and bumps Retries.
	Requeue(ctx context.Context, tx Tx, jobID string) error

	// CountByStatus reports queue depth for metrics.
	CountByStatus(ctx context.Context, status model.JobStatus) (int, error)
}
