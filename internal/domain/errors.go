package domain

import (
	"errors"
)

var (
	// ErrValidation marks malformed or out-of-range input, rejected before the store is touched.
	ErrValidation = errors.New("validation failed")
	// ErrSlotTaken means a concurrent booking won the interval. Callers re-fetch availability.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrRuleConflict means the request does not fit the resolved working window.
	ErrRuleConflict = errors.New("slot conflicts with calendar rules")
	// ErrPartialCommit means a multi-record write failed midway and was compensated.
	ErrPartialCommit = errors.New("partial commit failure")
	// ErrCompensationFailed means compensation after a partial commit failed too.
	ErrCompensationFailed = errors.New("compensation failed, manual intervention required")
	// ErrNotification is a best-effort notification failure.
	ErrNotification = errors.New("notification failure")

	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrRateLimited            = errors.New("too many requests")
)

const (
	MessageSlotUnavailable = "This time is no longer available, please choose another."
	MessageRetry           = "Something went wrong, please retry."
)

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return "validation failed: " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UserMessage maps an engine error to text safe to show end users.
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrRuleConflict):
		return MessageSlotUnavailable
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrValidation):
		return "invalid request"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "too many requests, please slow down"
	case errors.Is(err, ErrConcurrentModification):
		return "the appointment was changed by someone else, please reload"
	default:
		return MessageRetry
	}
}
