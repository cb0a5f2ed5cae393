package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation signals a malformed or missing request field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrProfileNotFound signals a missing applicant profile.
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)
	// ErrGrantNotFound signals a missing grant opportunity.
	ErrGrantNotFound = fmt.Errorf("grant %w", ErrNotFound)

	// ErrUnavailable is the parent of every collaborator-unavailable error.
	ErrUnavailable = errors.New("temporarily unavailable")
	// ErrVectorSearchUnavailable signals a vector search failure.
	ErrVectorSearchUnavailable = fmt.Errorf("vector search %w", ErrUnavailable)
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = fmt.Errorf("embedding provider %w", ErrUnavailable)
	// ErrDocumentStoreUnavailable signals a document store failure.
	ErrDocumentStoreUnavailable = fmt.Errorf("document store %w", ErrUnavailable)
	// ErrConversationUnavailable signals a conversation provider failure.
	ErrConversationUnavailable = fmt.Errorf("conversation provider %w", ErrUnavailable)

	// ErrRateLimited signals a rate limit hit at a collaborator.
	ErrRateLimited = errors.New("rate limited")
	// ErrFeatureDisabled signals an optional collaborator that is not configured.
	ErrFeatureDisabled = errors.New("feature disabled")
)

// FieldError wraps ErrValidation with the offending field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// NewFieldError creates a validation error for field.
func NewFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// RateLimitError wraps ErrRateLimited with the collaborator and its back-off hint.
type RateLimitError struct {
	Collaborator string
	RetryAfter   time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s: retry after %s", e.Collaborator, ErrRateLimited.Error(), e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Collaborator, ErrRateLimited.Error())
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimited creates a rate limit error for a collaborator.
func NewRateLimited(collaborator string, retryAfter time.Duration) error {
	return &RateLimitError{Collaborator: collaborator, RetryAfter: retryAfter}
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the back-off hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
