package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrWrongPayload       = errors.New("request payload does not match feature")
	ErrFeatureDisabled    = errors.New("feature has no configured providers")
	ErrRateLimited        = errors.New("too many requests")
	ErrQueueBusy          = errors.New("background queue is saturated")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)

// ContentRejectedError is returned when moderation flags the request input.
// No provider is invoked and no quota is consumed.
type ContentRejectedError struct {
	Categories []string
	Confidence float64
	Reason     string
}

func (e *ContentRejectedError) Error() string {
	return fmt.Sprintf("content rejected: %s", e.Reason)
}

// QuotaExceededError carries the ceiling that tripped and when it clears.
type QuotaExceededError struct {
	Reason  string
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (resets %s)", e.Reason, e.ResetAt.Format(time.RFC3339))
}

// ProviderError wraps a failed provider call. Retryable errors (timeouts,
// rate limits, 5xx) let the orchestrator fall back to the next provider.
type ProviderError struct {
	Provider  string
	Status    int
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed (status=%d retryable=%t): %v", e.Provider, e.Status, e.Retryable, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailedError is surfaced after the configured provider list
// for a feature has been exhausted. Last holds the final provider error.
type AllProvidersFailedError struct {
	Feature string
	Last    error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed for %s: %v", e.Feature, e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Last }
