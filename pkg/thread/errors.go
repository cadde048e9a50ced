package thread

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks across the public boundary.
var (
	// ErrNotFound indicates the thread or message ID does not exist.
	ErrNotFound = errors.New("thread not found")

	// ErrWaitingForHuman indicates a non-human tried to post on a parked thread.
	ErrWaitingForHuman = errors.New("thread is waiting for human input")

	// ErrClosed indicates the thread no longer accepts messages.
	ErrClosed = errors.New("thread is closed")

	// ErrValidation indicates bad inputs at the boundary.
	ErrValidation = errors.New("validation error")

	// ErrDatabase indicates a store failure.
	ErrDatabase = errors.New("database error")
)

// NotFoundError carries the missing thread ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("thread not found: %s", e.ID)
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
