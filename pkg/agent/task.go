// Package agent implements the cognitive loop: an agent perceives its
// assigned ticket, recalls relevant knowledge, plans, executes the plan step
// by step, and records what it learned. The package also carries the plan
// and outcome types shared with the orchestration layer and the LLM provider
// surface with its retry and mock implementations.
package agent

import (
	"ampere/pkg/proto"
)

// TaskKind discriminates the task variants.
type TaskKind string

const (
	// TaskBlank is the empty sentinel; it carries no work.
	TaskBlank TaskKind = "BLANK"

	// TaskCodeChange is a concrete change to the codebase.
	TaskCodeChange TaskKind = "CODE_CHANGE"
)

// TaskStatus tracks a code-change task through its life.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskFailed     TaskStatus = "FAILED"
)

// Task is one unit of plannable work. Blank tasks have no ID or status;
// code-change tasks are referenced by ID.
type Task struct {
	Kind        TaskKind   `json:"kind"`
	ID          string     `json:"id,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
}

// BlankTask returns the empty task sentinel.
func BlankTask() Task {
	return Task{Kind: TaskBlank}
}

// NewCodeChangeTask creates a pending code-change task with a fresh ID.
func NewCodeChangeTask(description string) Task {
	return Task{
		Kind:        TaskCodeChange,
		ID:          proto.NewID(),
		Status:      TaskPending,
		Description: description,
	}
}

// IsBlank reports whether the task is the empty sentinel.
func (t Task) IsBlank() bool {
	return t.Kind == TaskBlank
}

// WithStatus returns a copy of the task with the given status.
func (t Task) WithStatus(status TaskStatus) Task {
	t.Status = status
	return t
}

// WithAssignee returns a copy of the task assigned to the given agent.
func (t Task) WithAssignee(agentID string) Task {
	t.AssignedTo = agentID
	return t
}
