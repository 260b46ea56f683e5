package jira

import (
	"errors"
	"fmt"

	"github.com/danielolaszy/tether/pkg/models"
)

// APIError is the terminal error surfaced after the client has exhausted
// its internal retry budget (or hit a non-retryable condition). Retryable
// signals callers that a later attempt, e.g. via a cache fallback, is
// reasonable.
type APIError struct {
	// StatusCode is the last HTTP status observed; 0 for network failures.
	StatusCode int

	// Message describes the failure, including the remote's body when available.
	Message string

	// Retryable is true only for timeout/network exhaustion.
	Retryable bool

	// RateLimit carries quota information when the failure was a 429.
	RateLimit *models.RateLimitInfo
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("jira: request failed: %s", e.Message)
	}
	return fmt.Sprintf("jira: API returned %d: %s", e.StatusCode, e.Message)
}

// TransitionNotFoundError indicates a named transition could not be
// resolved against the issue's available transitions. Caller error, never
// retried.
type TransitionNotFoundError struct {
	Key       string
	Name      string
	Available []models.Transition
}

func (e *TransitionNotFoundError) Error() string {
	names := make([]string, 0, len(e.Available))
	for _, t := range e.Available {
		names = append(names, t.Name)
	}
	return fmt.Sprintf("jira: no transition named %q on issue %s (available: %v)", e.Name, e.Key, names)
}

// errNotFound marks an HTTP 404; operations translate it to a nil result
// before it can cross the client boundary.
var errNotFound = errors.New("jira: not found")

// IsRetryable reports whether err is tagged as worth retrying later.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}
