package agent

import (
	"context"
	"fmt"
	"time"

	"ampere/pkg/logx"
	"ampere/pkg/proto"
)

// StepStatus classifies how a single step ended.
type StepStatus string

const (
	StepSuccess        StepStatus = "SUCCESS"
	StepPartialSuccess StepStatus = "PARTIAL_SUCCESS"
	StepFailure        StepStatus = "FAILURE"
	StepSkipped        StepStatus = "SKIPPED"
)

// StepResult is what a step executor returns for one step. ContextUpdates
// are merged into the shared execution context before the next step runs.
type StepResult struct {
	Status         StepStatus        `json:"status"`
	Message        string            `json:"message,omitempty"`
	Critical       bool              `json:"critical,omitempty"`
	ContextUpdates map[string]string `json:"context_updates,omitempty"`
	ChangedFiles   []string          `json:"changed_files,omitempty"`
}

// StepOutcome is the recorded result of one step after execution, including
// steps never run because an earlier critical failure short-circuited the
// plan.
type StepOutcome struct {
	Step         Task          `json:"step"`
	Status       StepStatus    `json:"status"`
	Message      string        `json:"message,omitempty"`
	IsCritical   bool          `json:"is_critical,omitempty"`
	SkipReason   string        `json:"skip_reason,omitempty"`
	ChangedFiles []string      `json:"changed_files,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// StepExecutor runs one step against a snapshot of the accumulated context.
// Returning an error is treated as a critical failure of the step.
type StepExecutor func(ctx context.Context, step Task, snapshot map[string]string) (StepResult, error)

// ExecutionResult bundles the aggregate outcome with per-step outcomes and
// the final context. The context map is not mutated after return.
type ExecutionResult struct {
	Outcome      Outcome           `json:"outcome"`
	StepOutcomes []StepOutcome     `json:"step_outcomes"`
	Context      map[string]string `json:"context"`
}

// PlanExecutor runs plan steps sequentially, merging context between steps
// and short-circuiting on critical failure. The bus may be nil; then no
// per-step events are published.
type PlanExecutor struct {
	maxSteps int
	execute  StepExecutor
	bus      EventPublisher
	clock    proto.Clock
	logger   *logx.Logger
}

// NewPlanExecutor creates an executor capped at maxSteps per plan.
func NewPlanExecutor(maxSteps int, execute StepExecutor, bus EventPublisher) *PlanExecutor {
	return &PlanExecutor{
		maxSteps: maxSteps,
		execute:  execute,
		bus:      bus,
		clock:    proto.SystemClock,
		logger:   logx.NewLogger("executor"),
	}
}

// SetClock overrides the time source (tests).
func (e *PlanExecutor) SetClock(clock proto.Clock) {
	e.clock = clock
}

// ExecutePlan runs every step of the plan in order. A step failure marked
// critical records all remaining steps as skipped and stops; non-critical
// failures continue. The aggregate outcome is a no-changes success when no
// step failed, otherwise a no-changes failure, with a per-status summary
// attached as the message.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, executorID string, plan Plan) (ExecutionResult, error) {
	if len(plan.Steps) > e.maxSteps {
		return ExecutionResult{}, fmt.Errorf("plan %s has %d steps, limit is %d", plan.ID, len(plan.Steps), e.maxSteps)
	}

	execContext := make(map[string]string)
	startedAt := e.clock()

	if len(plan.Steps) == 0 {
		outcome := NewOutcome(OutcomeNoChangesSuccess, executorID, "", plan.Task.ID)
		outcome.StartedAt = startedAt
		outcome.EndedAt = e.clock()
		outcome.Message = "Plan has no steps to execute."
		return ExecutionResult{Outcome: outcome, StepOutcomes: nil, Context: execContext}, nil
	}

	outcomes := make([]StepOutcome, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return ExecutionResult{}, fmt.Errorf("plan %s cancelled at step %d: %w", plan.ID, i+1, err)
		}

		e.publishStepEvent(proto.EventPlanStepStarted, executorID, plan, i, "")

		stepStart := e.clock()
		result, err := e.runStep(ctx, step, execContext)
		outcome := StepOutcome{
			Step:         step,
			Status:       result.Status,
			Message:      result.Message,
			IsCritical:   result.Critical,
			ChangedFiles: result.ChangedFiles,
			Duration:     e.clock().Sub(stepStart),
		}
		if err != nil {
			outcome.Status = StepFailure
			outcome.IsCritical = true
			outcome.Message = err.Error()
		}
		outcomes = append(outcomes, outcome)

		for k, v := range result.ContextUpdates {
			execContext[k] = v
		}

		e.publishStepEvent(proto.EventPlanStepCompleted, executorID, plan, i, string(outcome.Status))

		if outcome.Status == StepFailure && outcome.IsCritical {
			reason := fmt.Sprintf("Skipped due to critical failure in step %d", i+1)
			for _, remaining := range plan.Steps[i+1:] {
				outcomes = append(outcomes, StepOutcome{
					Step:       remaining,
					Status:     StepSkipped,
					SkipReason: reason,
				})
			}
			e.logger.Warn("Plan %s stopped at step %d: %s", plan.ID, i+1, outcome.Message)
			break
		}
	}

	kind := OutcomeNoChangesSuccess
	for _, o := range outcomes {
		if o.Status == StepFailure {
			kind = OutcomeNoChangesFailure
			break
		}
	}

	aggregate := NewOutcome(kind, executorID, "", plan.Task.ID)
	aggregate.StartedAt = startedAt
	aggregate.EndedAt = e.clock()
	aggregate.Message = summarize(outcomes)
	for _, o := range outcomes {
		aggregate.ChangedFiles = append(aggregate.ChangedFiles, o.ChangedFiles...)
	}

	return ExecutionResult{Outcome: aggregate, StepOutcomes: outcomes, Context: execContext}, nil
}

// runStep invokes the step executor against a copy of the context so a step
// cannot mutate shared state directly.
func (e *PlanExecutor) runStep(ctx context.Context, step Task, execContext map[string]string) (StepResult, error) {
	snapshot := make(map[string]string, len(execContext))
	for k, v := range execContext {
		snapshot[k] = v
	}
	return e.execute(ctx, step, snapshot)
}

func (e *PlanExecutor) publishStepEvent(eventType proto.EventType, executorID string, plan Plan, index int, status string) {
	if e.bus == nil {
		return
	}
	event := proto.NewEvent(eventType, proto.AgentSource(executorID), proto.UrgencyLow)
	event.SetPayload(proto.KeyPlanID, plan.ID)
	event.SetPayload(proto.KeyTaskID, plan.Task.ID)
	event.SetPayload(proto.KeyStepIndex, index)
	event.SetPayload(proto.KeyStepCount, len(plan.Steps))
	if status != "" {
		event.SetPayload(proto.KeyStepStatus, status)
	}
	if err := e.bus.Publish(event); err != nil {
		e.logger.Warn("Failed to publish %s for plan %s: %v", eventType, plan.ID, err)
	}
}

// summarize renders the per-status counts as the aggregate outcome message.
func summarize(outcomes []StepOutcome) string {
	var success, partial, failure, skipped int
	for _, o := range outcomes {
		switch o.Status {
		case StepSuccess:
			success++
		case StepPartialSuccess:
			partial++
		case StepFailure:
			failure++
		case StepSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("Plan execution summary:\n✓ Success: %d\n⚠ Partial: %d\n✗ Failure: %d\n⊘ Skipped: %d",
		success, partial, failure, skipped)
}
