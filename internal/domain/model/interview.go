package model

import (
	"time"

	"interview-orchestrator/internal/domain"
)

type InterviewState string

const (
	InterviewCreated         InterviewState = "created"
	InterviewAwaitingAnswer  InterviewState = "awaiting_answer"
	InterviewProcessing      InterviewState = "processing"
	InterviewCompleted       InterviewState = "completed"
	InterviewFailed          InterviewState = "failed"
)

// Turn is one completed (question, answer) pair.
type Turn struct {
	Question   string
	Answer     string
	AskedAt    time.Time
	AnsweredAt time.Time
}

// Interview is the aggregate root for a turn-based conversation with an AI model.
// All state transitions go through the methods below; callers must hold the
// store-level lock (row lock or store mutex) while mutating, so the
// check-then-set on State is atomic with respect to concurrent senders.
type Interview struct {
	ID              string
	ProjectID       string
	AIModel         string
	State           InterviewState
	Turns           []Turn
	CurrentQuestion string // open question awaiting an answer; empty once closed
	PendingJobID    string // set only while State == InterviewProcessing
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewInterview(id, projectID, aiModel, openingQuestion string) *Interview {
	now := time.Now()
	return &Interview{
		ID:              id,
		ProjectID:       projectID,
		AIModel:         aiModel,
		State:           InterviewCreated,
		Turns:           make([]Turn, 0, 8),
		CurrentQuestion: openingQuestion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MessageCount is the number of completed turns. It grows by exactly one per
// successfully completed job.
func (i *Interview) MessageCount() int { return len(i.Turns) }

func (i *Interview) IsTerminal() bool {
	return i.State == InterviewCompleted || i.State == InterviewFailed
}

// Start moves a freshly created interview to awaiting_answer and returns the
// opening question. No job is involved; the question was fixed at creation.
func (i *Interview) Start() (string, error) {
	if i.State != InterviewCreated {
		return "", domain.ErrInvalidState
	}
	i.State = InterviewAwaitingAnswer
	i.UpdatedAt = time.Now()
	return i.CurrentQuestion, nil
}

// BeginProcessing transitions awaiting_answer -> processing and records the
// job owning the turn. A second message while processing is the race this
// guard exists for; it must never silently create a second job.
func (i *Interview) BeginProcessing(jobID string) error {
	switch i.State {
	case InterviewAwaitingAnswer:
	case InterviewProcessing:
		return domain.ErrInterviewBusy
	case InterviewCompleted, InterviewFailed:
		return domain.ErrInterviewClosed
	default:
		return domain.ErrInvalidState
	}
	i.State = InterviewProcessing
	i.PendingJobID = jobID
	i.UpdatedAt = time.Now()
	return nil
}

// CompleteTurn appends the finished (question, answer) pair, installs the next
// question produced by the job, and returns to awaiting_answer.
func (i *Interview) CompleteTurn(answer, nextQuestion string) error {
	if i.State != InterviewProcessing {
		return domain.ErrInvalidState
	}
	now := time.Now()
	i.Turns = append(i.Turns, Turn{
		Question:   i.CurrentQuestion,
		Answer:     answer,
		AskedAt:    i.UpdatedAt,
		AnsweredAt: now,
	})
	i.CurrentQuestion = nextQuestion
	i.PendingJobID = ""
	i.State = InterviewAwaitingAnswer
	i.UpdatedAt = now
	return nil
}

// FailTurn records a failed job and closes the interview.
func (i *Interview) FailTurn(reason string) error {
	if i.State != InterviewProcessing {
		return domain.ErrInvalidState
	}
	i.State = InterviewFailed
	i.FailureReason = reason
	i.PendingJobID = ""
	i.UpdatedAt = time.Now()
	return nil
}

// Finish terminates the interview from any non-terminal state (external
// decision, e.g. the interview objective was met). A job still in flight is
// orphaned: it completes in the job store for pollers, but the worker's
// conditional advance will no-op because the pending slot is cleared.
func (i *Interview) Finish() error {
	if i.IsTerminal() {
		return domain.ErrInterviewClosed
	}
	i.State = InterviewCompleted
	i.PendingJobID = ""
	i.CurrentQuestion = ""
	i.UpdatedAt = time.Now()
	return nil
}
