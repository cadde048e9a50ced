package ticket

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks across the public boundary.
var (
	// ErrNotFound indicates the ticket ID does not exist.
	ErrNotFound = errors.New("ticket not found")

	// ErrInvalidTransition indicates an illegal status move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation indicates bad inputs at the boundary.
	ErrValidation = errors.New("validation error")

	// ErrDatabase indicates a store failure.
	ErrDatabase = errors.New("database error")
)

// TransitionError carries the rejected edge.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) work.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewTransitionError builds a TransitionError for the rejected edge.
func NewTransitionError(from, to Status) error {
	return &TransitionError{From: from, To: to}
}

// NotFoundError carries the missing ticket ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticket not found: %s", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) work.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// DatabaseError wraps ErrDatabase around a store failure.
func DatabaseError(cause error) error {
	return fmt.Errorf("%w: %w", ErrDatabase, cause)
}
