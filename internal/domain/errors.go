package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")

	// ErrStopped reports that a stage observed the cooperative stop signal.
	ErrStopped = errors.New("stop requested")
	// ErrRetriesExhausted reports that a stage failed on every attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrResourceExhausted reports that memory use crossed the hard limit.
	ErrResourceExhausted = errors.New("resource exhausted")
)
