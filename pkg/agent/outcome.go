package agent

import (
	"time"

	"ampere/pkg/proto"
)

// OutcomeKind discriminates the outcome variants.
type OutcomeKind string

const (
	// OutcomeBlank is the sentinel for "no outcome yet".
	OutcomeBlank OutcomeKind = "BLANK"

	// OutcomeSuccess and OutcomeFailure are generic terminal results.
	OutcomeSuccess OutcomeKind = "SUCCESS"
	OutcomeFailure OutcomeKind = "FAILURE"

	// NoChanges outcomes terminate executions that touched no files.
	OutcomeNoChangesSuccess OutcomeKind = "NO_CHANGES_SUCCESS"
	OutcomeNoChangesFailure OutcomeKind = "NO_CHANGES_FAILURE"

	// CodeChanged outcomes terminate executions that modified files.
	OutcomeCodeChangedSuccess OutcomeKind = "CODE_CHANGED_SUCCESS"
	OutcomeCodeChangedFailure OutcomeKind = "CODE_CHANGED_FAILURE"
)

// Outcome is the terminal result of executing a plan (or a single step
// chain). Success and failure variants both carry who executed what and
// when; the kind-specific payload is the changed file list, the message, or
// the error text.
//
//nolint:govet // struct alignment optimization not critical for this type
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	ID           string      `json:"id,omitempty"`
	ExecutorID   string      `json:"executor_id,omitempty"`
	TicketID     string      `json:"ticket_id,omitempty"`
	TaskID       string      `json:"task_id,omitempty"`
	StartedAt    time.Time   `json:"started_at,omitempty"`
	EndedAt      time.Time   `json:"ended_at,omitempty"`
	ChangedFiles []string    `json:"changed_files,omitempty"`
	Message      string      `json:"message,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// BlankOutcome returns the empty outcome sentinel.
func BlankOutcome() Outcome {
	return Outcome{Kind: OutcomeBlank}
}

// NewOutcome constructs an outcome of the given kind with a fresh ID.
func NewOutcome(kind OutcomeKind, executorID, ticketID, taskID string) Outcome {
	return Outcome{
		Kind:       kind,
		ID:         proto.NewID(),
		ExecutorID: executorID,
		TicketID:   ticketID,
		TaskID:     taskID,
	}
}

// IsSuccess reports whether the outcome is any success variant.
func (o Outcome) IsSuccess() bool {
	switch o.Kind {
	case OutcomeSuccess, OutcomeNoChangesSuccess, OutcomeCodeChangedSuccess:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the outcome is any failure variant.
func (o Outcome) IsFailure() bool {
	switch o.Kind {
	case OutcomeFailure, OutcomeNoChangesFailure, OutcomeCodeChangedFailure:
		return true
	default:
		return false
	}
}

// IsBlank reports whether the outcome is the empty sentinel.
func (o Outcome) IsBlank() bool {
	return o.Kind == OutcomeBlank
}
