package repository

import (
	"context"

	"interview-orchestrator/internal/domain/model"
)

type InterviewRepository interface {
	Save(ctx context.Context, tx Tx, iv *model.Interview) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Interview, error)
	// FindByIDForUpdate loads the interview holding its exclusive lock for the
	// duration of the surrounding transaction. Every state mutation must go
	// through this so the check-then-set on State serializes concurrent
	// senders on the same interview.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Interview, error)
	FindByProject(ctx context.Context, tx Tx, projectID string) ([]*model.Interview, error)
}
