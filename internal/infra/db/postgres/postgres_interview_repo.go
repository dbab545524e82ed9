package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/repository"
)

var _ repository.InterviewRepository = (*interviewRepo)(nil)

type interviewRepo struct {
	pool *pgxpool.Pool
}

func NewInterviewRepo(pool *pgxpool.Pool) *interviewRepo {
	return &interviewRepo{pool: pool}
}

// Save upserts the interview row and appends any turns not yet persisted.
// Turns are append-only: existing positions are never rewritten.
func (r *interviewRepo) Save(ctx context.Context, tx repository.Tx, iv *model.Interview) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	iv.UpdatedAt = time.Now()

	const q = `
INSERT INTO interviews (id, project_id, ai_model, state, current_question, pending_job_id, failure_reason, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  current_question = EXCLUDED.current_question,
  pending_job_id = EXCLUDED.pending_job_id,
  failure_reason = EXCLUDED.failure_reason,
  updated_at = EXCLUDED.updated_at;`
	if _, err := ex.Exec(ctx, q,
		iv.ID, iv.ProjectID, iv.AIModel, string(iv.State), iv.CurrentQuestion,
		iv.PendingJobID, iv.FailureReason, iv.CreatedAt, iv.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save interview: %w", err)
	}

	const qt = `
INSERT INTO interview_turns (interview_id, position, question, answer, asked_at, answered_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (interview_id, position) DO NOTHING;`
	for pos, t := range iv.Turns {
		if _, err := ex.Exec(ctx, qt, iv.ID, pos, t.Question, t.Answer, t.AskedAt, t.AnsweredAt); err != nil {
			return fmt.Errorf("save turn %d: %w", pos, err)
		}
	}
	return nil
}

func (r *interviewRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Interview, error) {
	return r.findByID(ctx, tx, id, false)
}

// FindByIDForUpdate locks the interview row for the surrounding transaction.
// This is the serialization point for the awaiting_answer -> processing
// check-then-set.
func (r *interviewRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Interview, error) {
	return r.findByID(ctx, tx, id, true)
}

func (r *interviewRepo) findByID(ctx context.Context, tx repository.Tx, id string, forUpdate bool) (*model.Interview, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}

	q := `
SELECT id, project_id, ai_model, state, current_question, pending_job_id, failure_reason, created_at, updated_at
FROM interviews WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}

	var iv model.Interview
	var state string
	err = ex.QueryRow(ctx, q, id).Scan(
		&iv.ID, &iv.ProjectID, &iv.AIModel, &state, &iv.CurrentQuestion,
		&iv.PendingJobID, &iv.FailureReason, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find interview: %w", err)
	}
	iv.State = model.InterviewState(state)

	if err := r.loadTurns(ctx, ex, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interviewRepo) loadTurns(ctx context.Context, ex executor, iv *model.Interview) error {
	const q = `
SELECT question, answer, asked_at, answered_at
FROM interview_turns WHERE interview_id = $1 ORDER BY position;`
	rows, err := ex.Query(ctx, q, iv.ID)
	if err != nil {
		return fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	iv.Turns = iv.Turns[:0]
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Question, &t.Answer, &t.AskedAt, &t.AnsweredAt); err != nil {
			return domain.ErrReadDatabaseRow
		}
		iv.Turns = append(iv.Turns, t)
	}
	return rows.Err()
}

func (r *interviewRepo) FindByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.Interview, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, project_id, ai_model, state, current_question, pending_job_id, failure_reason, created_at, updated_at
FROM interviews WHERE project_id = $1 ORDER BY created_at;`
	rows, err := ex.Query(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("find by project: %w", err)
	}
	defer rows.Close()

	var out []*model.Interview
	for rows.Next() {
		var iv model.Interview
		var state string
		if err := rows.Scan(
			&iv.ID, &iv.ProjectID, &iv.AIModel, &state, &iv.CurrentQuestion,
			&iv.PendingJobID, &iv.FailureReason, &iv.CreatedAt, &iv.UpdatedAt,
		); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		iv.State = model.InterviewState(state)
		out = append(out, &iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, iv := range out {
		if err := r.loadTurns(ctx, ex, iv); err != nil {
			return nil, err
		}
	}
	return out, nil
}
