package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Interview state machine errors
	ErrInvalidState    = errors.New("operation not valid in current interview state")
	ErrInterviewBusy   = errors.New("interview is still processing the previous message")
	ErrInterviewClosed = errors.New("interview is closed")

	// Job store errors
	ErrDuplicateActiveJob = errors.New("interview already has an active job")
	ErrInvalidTransition  = errors.New("invalid job status transition")

	// Infra-level errors surfaced by repositories
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
