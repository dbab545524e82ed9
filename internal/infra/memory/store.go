package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/repository"
)

// Store is an in-memory backing for the interview and job repositories plus
// the transaction manager. A single mutex stands in for row locks: WithTx
// holds it for the whole callback, which gives the same serialization the
// Postgres store gets from SELECT ... FOR UPDATE. Used in dev mode and tests.
type Store struct {
	mu         sync.Mutex
	interviews map[string]*model.Interview
	jobs       map[string]*model.Job
	queue      []string // job ids in enqueue order; lazily compacted on claim
}

var _ repository.TransactionManager = (*Store)(nil)

// memTx marks a callback already holding the store mutex.
type memTx struct{}

func NewStore() *Store {
	return &Store{
		interviews: make(map[string]*model.Interview),
		jobs:       make(map[string]*model.Job),
	}
}

// Interviews returns the InterviewRepository view of the store.
func (s *Store) Interviews() *InterviewRepo { return &InterviewRepo{s: s} }

// Jobs returns the JobRepository view of the store.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, memTx{})
}

// lock acquires the mutex unless the caller is already inside WithTx.
func (s *Store) lock(tx repository.Tx) func() {
	if _, ok := tx.(memTx); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func copyInterview(iv *model.Interview) *model.Interview {
	cp := *iv
	cp.Turns = append([]model.Turn(nil), iv.Turns...)
	return &cp
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

// ----- InterviewRepository -----

var _ repository.InterviewRepository = (*InterviewRepo)(nil)

type InterviewRepo struct {
	s *Store
}

func (r *InterviewRepo) Save(ctx context.Context, tx repository.Tx, iv *model.Interview) error {
	defer r.s.lock(tx)()
	r.s.interviews[iv.ID] = copyInterview(iv)
	return nil
}

func (r *InterviewRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Interview, error) {
	defer r.s.lock(tx)()
	iv, ok := r.s.interviews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyInterview(iv), nil
}

func (r *InterviewRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Interview, error) {
	// Exclusivity comes from the store mutex held by WithTx.
	return r.FindByID(ctx, tx, id)
}

func (r *InterviewRepo) FindByProject(ctx context.Context, tx repository.Tx, projectID string) ([]*model.Interview, error) {
	defer r.s.lock(tx)()
	var out []*model.Interview
	for _, iv := range r.s.interviews {
		if iv.ProjectID == projectID {
			out = append(out, copyInterview(iv))
		}
	}
	return out, nil
}

// ----- JobRepository -----

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	s *Store
}

func (r *JobRepo) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	defer r.s.lock(tx)()
	for _, j := range r.s.jobs {
		if j.InterviewID == job.InterviewID && !j.IsTerminal() {
			return domain.ErrDuplicateActiveJob
		}
	}
	job.UpdatedAt = time.Now()
	r.s.jobs[job.ID] = copyJob(job)
	r.s.queue = append(r.s.queue, job.ID)
	return nil
}

func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for len(r.s.queue) > 0 {
		id := r.s.queue[0]
		r.s.queue = r.s.queue[1:]
		j, ok := r.s.jobs[id]
		if !ok || j.Status != model.JobStatusPending {
			continue
		}
		now := time.Now()
		j.Status = model.JobStatusRunning
		j.StartedAt = now
		j.UpdatedAt = now
		return copyJob(j), nil
	}
	return nil, domain.ErrNotFound
}

func (r *JobRepo) Complete(ctx context.Context, tx repository.Tx, jobID, result string) (*model.Job, error) {
	return r.finalize(tx, jobID, model.JobStatusCompleted, result, "")
}

func (r *JobRepo) Fail(ctx context.Context, tx repository.Tx, jobID, reason string) (*model.Job, error) {
	return r.finalize(tx, jobID, model.JobStatusFailed, "", reason)
}

func (r *JobRepo) finalize(tx repository.Tx, jobID string, status model.JobStatus, result, reason string) (*model.Job, error) {
	defer r.s.lock(tx)()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning {
		return nil, domain.ErrInvalidTransition
	}
	now := time.Now()
	j.Status = status
	j.Result = result
	j.LastError = reason
	j.CompletedAt = now
	j.UpdatedAt = now
	return copyJob(j), nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	defer r.s.lock(tx)()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(j), nil
}

func (r *JobRepo) FindActiveByInterview(ctx context.Context, tx repository.Tx, interviewID string) (*model.Job, error) {
	defer r.s.lock(tx)()
	for _, j := range r.s.jobs {
		if j.InterviewID == interviewID && !j.IsTerminal() {
			return copyJob(j), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *JobRepo) FindTimedOut(ctx context.Context, tx repository.Tx, olderThan time.Duration, limit int) ([]*model.Job, error) {
	defer r.s.lock(tx)()
	cutoff := time.Now().Add(-olderThan)
	var out []*model.Job
	for _, j := range r.s.jobs {
		if j.Status == model.JobStatusRunning && j.StartedAt.Before(cutoff) {
			out = append(out, copyJob(j))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *JobRepo) Requeue(ctx context.Context, tx repository.Tx, jobID string) error {
	defer r.s.lock(tx)()
	j, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning {
		return domain.ErrInvalidTransition
	}
	j.Status = model.JobStatusPending
	j.Retries++
	j.StartedAt = time.Time{}
	j.UpdatedAt = time.Now()
	r.s.queue = append(r.s.queue, j.ID)
	return nil
}

func (r *JobRepo) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, j := range r.s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}
