package services

import (
	"errors"
	"fmt"
)

// ErrMaxRetriesExceeded is returned by RetryFailedJob once a job has used up
// its retry budget.
var ErrMaxRetriesExceeded = errors.New("Maximum retry attempts exceeded")

// ValidationError indicates bad or missing caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError indicates a concurrent-import or duplicate-action conflict,
// most commonly a second import requested for a site that already has an
// active job.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError indicates an unknown job or resource.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// InvalidStateError indicates an operation that is illegal from the job's
// current status. The message always names the actual status.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job in status %s", e.Op, e.Status)
}

// RateLimitError indicates the reporting API kept returning 429 after all
// retries were exhausted.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reporting api rate limit exceeded after %d attempts", e.Attempts)
}

// TimeoutError indicates a single report request exceeded the client timeout.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("reporting api request timed out: %v", e.Err) }

func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError carries a non-retryable provider failure: the HTTP status and,
// when present, the provider's message field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("reporting api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("reporting api error: status %d", e.StatusCode)
}
