package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/repository"
	"interview-orchestrator/internal/infra/redis"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool  *pgxpool.Pool
	tm    repository.TransactionManager
	cache *redis.JobCache // nil disables the terminal-job poll cache
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager, cache *redis.JobCache) *jobRepo {
	return &jobRepo{pool: pool, tm: tm, cache: cache}
}

const jobColumns = `id, interview_id, input, status, result, last_error, retries, created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	var startedAt, completedAt *time.Time
	err := row.Scan(
		&j.ID, &j.InterviewID, &j.Input, &status, &j.Result, &j.LastError,
		&j.Retries, &j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(status)
	if startedAt != nil {
		j.StartedAt = *startedAt
	}
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	return &j, nil
}

// Enqueue inserts a pending job unless the interview already owns an active
// one. Callers inside SendMessage hold the interview row lock; the partial
// unique index on (interview_id) WHERE active is the backstop for any writer
// that does not.
func (r *jobRepo) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (id, interview_id, input, status, result, last_error, retries, created_at, updated_at)
SELECT $1, $2, $3, $4, '', '', 0, $5, $6
WHERE NOT EXISTS (
  SELECT 1 FROM jobs WHERE interview_id = $2 AND status IN ('pending','running')
);`
	tag, err := ex.Exec(ctx, q, job.ID, job.InterviewID, job.Input, string(model.JobStatusPending), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateActiveJob
		}
		return fmt.Errorf("enqueue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateActiveJob
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ClaimNext atomically picks the oldest pending job and marks it running.
// FOR UPDATE SKIP LOCKED keeps concurrent claimers off the same row.
func (r *jobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	var claimed *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		const fetch = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`
		job, err := scanJob(ex.QueryRow(ctx, fetch))
		if err != nil {
			return err
		}

		const mark = `
UPDATE jobs SET status = 'running', started_at = $2, updated_at = $2 WHERE id = $1;`
		now := time.Now()
		if _, err := ex.Exec(ctx, mark, job.ID, now); err != nil {
			return fmt.Errorf("mark running: %w", err)
		}
		job.Status = model.JobStatusRunning
		job.StartedAt = now
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) Complete(ctx context.Context, tx repository.Tx, jobID, result string) (*model.Job, error) {
	return r.finalize(ctx, tx, jobID, model.JobStatusCompleted, result, "")
}

func (r *jobRepo) Fail(ctx context.Context, tx repository.Tx, jobID, reason string) (*model.Job, error) {
	return r.finalize(ctx, tx, jobID, model.JobStatusFailed, "", reason)
}

func (r *jobRepo) finalize(ctx context.Context, tx repository.Tx, jobID string, status model.JobStatus, result, reason string) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE jobs
SET status = $2, result = $3, last_error = $4, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'running'
RETURNING ` + jobColumns + `;`
	job, err := scanJob(ex.QueryRow(ctx, q, jobID, string(status), result, reason, time.Now()))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Distinguish unknown id from a non-running job.
			if _, lookupErr := r.FindByID(ctx, tx, jobID); errors.Is(lookupErr, domain.ErrNotFound) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	return job, nil
}

// maybeCache stores a terminal snapshot on the non-transactional read path.
// Never called with an open transaction: a cache write followed by a rollback
// would leave pollers a terminal result the store then discards.
func (r *jobRepo) maybeCache(ctx context.Context, tx repository.Tx, job *model.Job) {
	if r.cache == nil || tx != nil || !job.IsTerminal() {
		return
	}
	_ = r.cache.StoreJob(ctx, job)
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	// Terminal jobs are immutable, so a cache hit is always authoritative.
	if r.cache != nil && tx == nil {
		if job, err := r.cache.GetJob(ctx, id); err == nil && job != nil {
			return job, nil
		}
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(ex.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	r.maybeCache(ctx, tx, job)
	return job, nil
}

func (r *jobRepo) FindActiveByInterview(ctx context.Context, tx repository.Tx, interviewID string) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + jobColumns + ` FROM jobs
WHERE interview_id = $1 AND status IN ('pending','running')
LIMIT 1;`
	return scanJob(ex.QueryRow(ctx, q, interviewID))
}

func (r *jobRepo) FindTimedOut(ctx context.Context, tx repository.Tx, olderThan time.Duration, limit int) ([]*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + jobColumns + ` FROM jobs
WHERE status = 'running' AND started_at < $1
ORDER BY started_at
LIMIT $2
FOR UPDATE SKIP LOCKED;`
	rows, err := ex.Query(ctx, q, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("find timed out: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *jobRepo) Requeue(ctx context.Context, tx repository.Tx, jobID string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
UPDATE jobs
SET status = 'pending', retries = retries + 1, started_at = NULL, updated_at = $2
WHERE id = $1 AND status = 'running';`
	tag, err := ex.Exec(ctx, q, jobID, time.Now())
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM jobs WHERE status = $1;`
	if err := r.pool.QueryRow(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
