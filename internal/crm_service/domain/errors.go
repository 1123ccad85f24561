package domain

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCohort means the cohort query was rejected before running.
	ErrInvalidCohort = errors.New("invalid cohort query")
	// ErrCohortBackend carries the sanitized record store failure.
	ErrCohortBackend       = errors.New("database error: failed to execute query")
	ErrContentUnavailable  = errors.New("content resolution unavailable")
	ErrDeliveryUnavailable = errors.New("delivery service unavailable")
	ErrShuttingDown        = errors.New("service is shutting down")
	// ErrSubmissionClosed is returned when a message is enqueued after its
	// delivery run has been cancelled.
	ErrSubmissionClosed = errors.New("submission channel closed")
)
