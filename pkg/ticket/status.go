// Package ticket defines the work-item model, its status state machine, and
// the SQLite-backed repository that enforces it.
package ticket

import (
	"fmt"
	"strings"
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusBacklog    Status = "BACKLOG"
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusInReview   Status = "IN_REVIEW"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
)

// TransitionTable maps each status to the statuses reachable from it.
type TransitionTable map[Status][]Status

// ValidTransitions is the directed transition graph for tickets. Done and
// Cancelled are terminal.
//
//nolint:gochecknoglobals // Static transition table shared by repository and tests
var ValidTransitions = TransitionTable{
	StatusBacklog:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusBacklog, StatusCancelled},
	StatusInProgress: {StatusBlocked, StatusInReview, StatusDone, StatusCancelled},
	StatusBlocked:    {StatusInProgress, StatusCancelled},
	StatusInReview:   {StatusInProgress, StatusDone, StatusCancelled},
	StatusDone:       {},
	StatusCancelled:  {},
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transitions leave the status.
func IsTerminal(s Status) bool {
	return len(ValidTransitions[s]) == 0
}

// ValidateStatus reports whether a string names a known status.
func ValidateStatus(s string) (Status, bool) {
	status := Status(strings.ToUpper(s))
	if _, ok := ValidTransitions[status]; ok {
		return status, true
	}
	return "", false
}

// ParseStatus parses a string into a Status with validation.
func ParseStatus(s string) (Status, error) {
	if status, ok := ValidateStatus(s); ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown ticket status: %s", s)
}

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}
