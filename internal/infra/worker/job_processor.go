package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/adapter"
	"interview-orchestrator/internal/domain/ports/repository"
	"interview-orchestrator/internal/infra/metrics"
)

// JobProcessor drains the job store: claim, invoke the AI capability, then
// finalize the job and advance the owning interview in one transaction. The
// AI call is the only place unbounded latency is allowed, and no interview
// lock is held across it.
type JobProcessor struct {
	jobs       repository.JobRepository
	interviews repository.InterviewRepository
	tm         repository.TransactionManager
	ai         adapter.AIServiceAdapter
	poll       time.Duration
	log        *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	interviews repository.InterviewRepository,
	tm repository.TransactionManager,
	ai adapter.AIServiceAdapter,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *JobProcessor {
	procLog := logger.With().Str("component", "JobProcessor").Logger()
	return &JobProcessor{
		jobs:       jobs,
		interviews: interviews,
		tm:         tm,
		ai:         ai,
		poll:       pollInterval,
		log:        &procLog,
	}
}

// Start runs the claim loop until ctx is cancelled. Each tick submits one
// processing attempt to the pool; an empty queue makes the attempt a no-op.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("job processor started")
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.ProcessOne(ctx)
				return nil
			})
			if n, err := p.jobs.CountByStatus(ctx, model.JobStatusPending); err == nil {
				metrics.SetQueueDepth(n)
			}
		}
	}
}

// ProcessOne claims and fully handles a single job. Exported so tests can
// drive the worker without the poll loop.
func (p *JobProcessor) ProcessOne(ctx context.Context) {
	job, err := p.jobs.ClaimNext(ctx)
	if err != nil {
		if err != domain.ErrNotFound {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return
	}

	p.log.Info().Str("job_id", job.ID).Str("interview_id", job.InterviewID).Msg("processing job")
	start := time.Now()

	reply, err := p.invoke(ctx, job)
	status := model.JobStatusCompleted
	var finErr error
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
		status = model.JobStatusFailed
		finErr = p.finalizeFailure(ctx, job, err.Error())
	} else {
		finErr = p.finalizeSuccess(ctx, job, reply)
	}
	if finErr != nil {
		// The job row is still running; the reaper recovers it.
		return
	}

	metrics.IncJob(string(status))
	metrics.ObserveJobDuration(time.Since(start).Seconds())
	p.log.Info().Str("job_id", job.ID).Str("status", string(status)).Dur("duration", time.Since(start)).Msg("job finished")
}

// invoke builds the conversation context from the interview's accumulated
// turns plus the job input and calls the capability.
func (p *JobProcessor) invoke(ctx context.Context, job *model.Job) (string, error) {
	iv, err := p.interviews.FindByID(ctx, nil, job.InterviewID)
	if err != nil {
		return "", fmt.Errorf("interview not found: %w", err)
	}

	msgs := make([]adapter.Message, 0, len(iv.Turns)*2+2)
	for _, t := range iv.Turns {
		msgs = append(msgs,
			adapter.Message{Role: "assistant", Content: t.Question},
			adapter.Message{Role: "user", Content: t.Answer},
		)
	}
	if iv.CurrentQuestion != "" {
		msgs = append(msgs, adapter.Message{Role: "assistant", Content: iv.CurrentQuestion})
	}
	msgs = append(msgs, adapter.Message{Role: "user", Content: job.Input})

	callStart := time.Now()
	reply, err := p.ai.Chat(ctx, iv.AIModel, msgs)
	metrics.ObserveAICall(iv.AIModel, int(time.Since(callStart)/time.Millisecond), err == nil)
	if err != nil {
		return "", fmt.Errorf("ai capability failed: %w", err)
	}
	return reply, nil
}

// finalizeSuccess commits the job result and the interview turn together.
// The interview advance is conditional: if the interview was terminated or
// re-owned while the call was in flight, the job still completes for pollers
// and the advance is skipped.
func (p *JobProcessor) finalizeSuccess(ctx context.Context, job *model.Job, reply string) error {
	err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := p.jobs.Complete(ctx, tx, job.ID, reply); err != nil {
			return err
		}
		iv, err := p.interviews.FindByIDForUpdate(ctx, tx, job.InterviewID)
		if err != nil {
			return err
		}
		if iv.State != model.InterviewProcessing || iv.PendingJobID != job.ID {
			p.log.Warn().Str("job_id", job.ID).Str("state", string(iv.State)).Msg("interview no longer owns job; result dropped")
			return nil
		}
		if err := iv.CompleteTurn(job.Input, reply); err != nil {
			return err
		}
		return p.interviews.Save(ctx, tx, iv)
	})
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to finalize completed job")
		return err
	}
	metrics.IncInterviewTransition(string(model.InterviewAwaitingAnswer))
	return nil
}

func (p *JobProcessor) finalizeFailure(ctx context.Context, job *model.Job, reason string) error {
	err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := p.jobs.Fail(ctx, tx, job.ID, reason); err != nil {
			return err
		}
		iv, err := p.interviews.FindByIDForUpdate(ctx, tx, job.InterviewID)
		if err != nil {
			return err
		}
		if iv.State != model.InterviewProcessing || iv.PendingJobID != job.ID {
			return nil
		}
		if err := iv.FailTurn(reason); err != nil {
			return err
		}
		return p.interviews.Save(ctx, tx, iv)
	})
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to finalize failed job")
		return err
	}
	metrics.IncInterviewTransition(string(model.InterviewFailed))
	return nil
}
