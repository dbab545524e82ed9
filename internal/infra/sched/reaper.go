package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/repository"
	"interview-orchestrator/internal/infra/metrics"
)

const sweepBatchSize = 50

// JobReaper recovers jobs orphaned by a worker crash: a job running longer
// than the timeout is requeued once; on a repeated timeout it is failed with
// the worker-timeout reason and the owning interview turn fails with it.
type JobReaper struct {
	interval   time.Duration
	timeout    time.Duration
	jobs       repository.JobRepository
	interviews repository.InterviewRepository
	tm         repository.TransactionManager
	log        *zerolog.Logger
}

func NewJobReaper(
	interval, timeout time.Duration,
	jobs repository.JobRepository,
	interviews repository.InterviewRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *JobReaper {
	reaperLog := logger.With().Str("component", "JobReaper").Logger()
	return &JobReaper{
		interval:   interval,
		timeout:    timeout,
		jobs:       jobs,
		interviews: interviews,
		tm:         tm,
		log:        &reaperLog,
	}
}

func (r *JobReaper) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Dur("timeout", r.timeout).Msg("starting job reaper")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping job reaper")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("reaper sweep error")
			}
		}
	}
}

// Sweep handles one batch of timed-out jobs. Exported for tests.
func (r *JobReaper) Sweep(ctx context.Context) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		stuck, err := r.jobs.FindTimedOut(ctx, tx, r.timeout, sweepBatchSize)
		if err != nil {
			return err
		}
		for _, job := range stuck {
			if job.Retries == 0 {
				if err := r.jobs.Requeue(ctx, tx, job.ID); err != nil {
					return err
				}
				metrics.IncJobRequeue()
				r.log.Warn().Str("job_id", job.ID).Msg("timed-out job requeued")
				continue
			}

			if _, err := r.jobs.Fail(ctx, tx, job.ID, model.FailureWorkerTimeout); err != nil {
				return err
			}
			metrics.IncJob(string(model.JobStatusFailed))
			iv, err := r.interviews.FindByIDForUpdate(ctx, tx, job.InterviewID)
			if err != nil {
				return err
			}
			if iv.State == model.InterviewProcessing && iv.PendingJobID == job.ID {
				if err := iv.FailTurn(model.FailureWorkerTimeout); err != nil {
					return err
				}
				if err := r.interviews.Save(ctx, tx, iv); err != nil {
					return err
				}
				metrics.IncInterviewTransition(string(model.InterviewFailed))
			}
			r.log.Error().Str("job_id", job.ID).Str("interview_id", job.InterviewID).Msg("job failed after repeated timeout")
		}
		return nil
	})
}
