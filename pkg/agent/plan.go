package agent

import (
	"encoding/json"
	"fmt"

	"ampere/pkg/proto"
)

// Plan is the ordered work breakdown for a single ticket. A blank plan is
// the sentinel for "nothing to do"; a for-task plan carries the task it was
// built for and its steps in execution order.
type Plan struct {
	ID                  string `json:"id,omitempty"`
	Task                Task   `json:"task"`
	Steps               []Task `json:"steps,omitempty"`
	EstimatedComplexity int    `json:"estimated_complexity,omitempty"`
}

// BlankPlan returns the empty plan sentinel.
func BlankPlan() Plan {
	return Plan{Task: BlankTask()}
}

// PlanForTask builds a plan for the task with the given steps.
func PlanForTask(task Task, steps []Task, estimatedComplexity int) Plan {
	return Plan{
		ID:                  proto.NewID(),
		Task:                task,
		Steps:               steps,
		EstimatedComplexity: estimatedComplexity,
	}
}

// IsBlank reports whether the plan is the empty sentinel.
func (p Plan) IsBlank() bool {
	return p.Task.IsBlank() && len(p.Steps) == 0
}

// ToJSON serializes the plan for handoff between agents.
func (p Plan) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan %s: %w", p.ID, err)
	}
	return string(data), nil
}

// PlanFromJSON deserializes a handed-off plan.
func PlanFromJSON(data string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Plan{}, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return p, nil
}
