// File: internal/usecase/interview_uc.go
package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/domain/ports/repository"
	"interview-orchestrator/internal/infra/metrics"
)

// Compile-time check
var _ InterviewUseCase = (*interviewUC)(nil)

// JobStatusView is the client-facing job snapshot returned by polling.
type JobStatusView struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"` // pending | running | completed | failed
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// InterviewUseCase is the orchestration facade: it translates client intents
// into state-machine transitions and job store operations. SendMessage never
// blocks on the AI capability; it hands back a job id for polling.
type InterviewUseCase interface {
	Create(ctx context.Context, projectID, modelName, openingQuestion string) (*model.Interview, error)
	Start(ctx context.Context, interviewID string) (question string, err error)
	SendMessage(ctx context.Context, interviewID, content string) (jobID string, err error)
	JobStatus(ctx context.Context, jobID string) (*JobStatusView, error)
	Get(ctx context.Context, interviewID string) (*model.Interview, error)
	Finish(ctx context.Context, interviewID string) error
}

type interviewUC struct {
	interviews repository.InterviewRepository
	jobs       repository.JobRepository
	tm         repository.TransactionManager

	defaultModel   string
	defaultOpening string
}

func NewInterviewUseCase(
	interviews repository.InterviewRepository,
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	defaultModel string,
	defaultOpening string,
) *interviewUC {
	return &interviewUC{
		interviews:     interviews,
		jobs:           jobs,
		tm:             tm,
		defaultModel:   defaultModel,
		defaultOpening: defaultOpening,
	}
}

func (u *interviewUC) Create(ctx context.Context, projectID, modelName, openingQuestion string) (*model.Interview, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if modelName == "" {
		modelName = u.defaultModel
	}
	if strings.TrimSpace(openingQuestion) == "" {
		openingQuestion = u.defaultOpening
	}
	iv := model.NewInterview(uuid.NewString(), projectID, modelName, openingQuestion)
	if err := u.interviews.Save(ctx, nil, iv); err != nil {
		return nil, err
	}
	metrics.IncInterviewTransition(string(model.InterviewCreated))
	return iv, nil
}

func (u *interviewUC) Start(ctx context.Context, interviewID string) (string, error) {
	var question string
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		iv, err := u.interviews.FindByIDForUpdate(ctx, tx, interviewID)
		if err != nil {
			return err
		}
		q, err := iv.Start()
		if err != nil {
			return err
		}
		if err := u.interviews.Save(ctx, tx, iv); err != nil {
			return err
		}
		question = q
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.IncInterviewTransition(string(model.InterviewAwaitingAnswer))
	return question, nil
}

// SendMessage performs the check-then-set on the interview state and the job
// insert in one transaction. Two concurrent senders serialize on the row
// lock; the loser observes processing and gets ErrInterviewBusy, so a second
// job for the same turn can never exist.
func (u *interviewUC) SendMessage(ctx context.Context, interviewID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrInvalidArgument
	}

	job := model.NewJob(uuid.NewString(), interviewID, content)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		iv, err := u.interviews.FindByIDForUpdate(ctx, tx, interviewID)
		if err != nil {
			return err
		}
		if err := iv.BeginProcessing(job.ID); err != nil {
			return err
		}
		if err := u.jobs.Enqueue(ctx, tx, job); err != nil {
			return err
		}
		return u.interviews.Save(ctx, tx, iv)
	})
	if err != nil {
		if err == domain.ErrInterviewBusy {
			metrics.IncBusyRejection()
		}
		return "", err
	}
	metrics.IncInterviewTransition(string(model.InterviewProcessing))
	return job.ID, nil
}

func (u *interviewUC) JobStatus(ctx context.Context, jobID string) (*JobStatusView, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return &JobStatusView{
		JobID:  job.ID,
		Status: string(job.Status),
		Result: job.Result,
		Error:  job.LastError,
	}, nil
}

func (u *interviewUC) Get(ctx context.Context, interviewID string) (*model.Interview, error) {
	return u.interviews.FindByID(ctx, nil, interviewID)
}

func (u *interviewUC) Finish(ctx context.Context, interviewID string) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		iv, err := u.interviews.FindByIDForUpdate(ctx, tx, interviewID)
		if err != nil {
			return err
		}
		if err := iv.Finish(); err != nil {
			return err
		}
		return u.interviews.Save(ctx, tx, iv)
	})
	if err != nil {
		return err
	}
	metrics.IncInterviewTransition(string(model.InterviewCompleted))
	return nil
}
