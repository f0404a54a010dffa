package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input: missing required fields,
	// non-contiguous step orders, duplicate step orders.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState is returned when an operation is attempted outside its
	// legal state-machine transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden is returned when the caller is not the resolved approver
	// for the step being acted on.
	ErrForbidden = errors.New("forbidden")

	// ErrUnresolvableAssignee is returned when an assignee rule yields no
	// valid person or department.
	ErrUnresolvableAssignee = errors.New("unresolvable assignee")

	// ErrUpstreamUnavailable is returned after directory lookups exhaust
	// their retries. The operation can be safely re-attempted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidStatef wraps ErrInvalidState with a formatted detail message.
func InvalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Forbiddenf wraps ErrForbidden with a formatted detail message.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Unresolvablef wraps ErrUnresolvableAssignee with a formatted detail message.
func Unresolvablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnresolvableAssignee, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether the error indicates a transient upstream
// failure that the caller may retry without side effects.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
