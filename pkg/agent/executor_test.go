package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/proto"
)

type capturingBus struct {
	events []*proto.Event
}

func (b *capturingBus) Publish(event *proto.Event) error {
	b.events = append(b.events, event)
	return nil
}

func threeStepPlan() Plan {
	return PlanForTask(NewCodeChangeTask("do the thing"), []Task{
		NewCodeChangeTask("step one"),
		NewCodeChangeTask("step two"),
		NewCodeChangeTask("step three"),
	}, 3)
}

func TestEmptyPlanSucceedsWithoutSteps(t *testing.T) {
	executor := NewPlanExecutor(64, func(context.Context, Task, map[string]string) (StepResult, error) {
		t.Fatal("step executor must not run for an empty plan")
		return StepResult{}, nil
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", BlankPlan())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChangesSuccess, result.Outcome.Kind)
	assert.Equal(t, "Plan has no steps to execute.", result.Outcome.Message)
	assert.Empty(t, result.StepOutcomes)
}

func TestCriticalFailureShortCircuits(t *testing.T) {
	calls := 0
	executor := NewPlanExecutor(64, func(_ context.Context, step Task, _ map[string]string) (StepResult, error) {
		calls++
		if step.Description == "step two" {
			return StepResult{Status: StepFailure, Critical: true, Message: "db unreachable"}, nil
		}
		return StepResult{Status: StepSuccess}, nil
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.NoError(t, err)

	// Step three never ran.
	assert.Equal(t, 2, calls)
	require.Len(t, result.StepOutcomes, 3)
	assert.Equal(t, StepSuccess, result.StepOutcomes[0].Status)
	assert.Equal(t, StepFailure, result.StepOutcomes[1].Status)
	assert.True(t, result.StepOutcomes[1].IsCritical)
	assert.Equal(t, StepSkipped, result.StepOutcomes[2].Status)
	assert.Equal(t, "Skipped due to critical failure in step 2", result.StepOutcomes[2].SkipReason)

	assert.Equal(t, OutcomeNoChangesFailure, result.Outcome.Kind)
	assert.Contains(t, result.Outcome.Message, "✓ Success: 1")
	assert.Contains(t, result.Outcome.Message, "✗ Failure: 1")
	assert.Contains(t, result.Outcome.Message, "⊘ Skipped: 1")
}

func TestNonCriticalFailureContinues(t *testing.T) {
	executor := NewPlanExecutor(64, func(_ context.Context, step Task, _ map[string]string) (StepResult, error) {
		if step.Description == "step two" {
			return StepResult{Status: StepFailure, Message: "lint warnings"}, nil
		}
		return StepResult{Status: StepSuccess}, nil
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.NoError(t, err)
	require.Len(t, result.StepOutcomes, 3)
	assert.Equal(t, StepSuccess, result.StepOutcomes[2].Status)
	assert.Equal(t, OutcomeNoChangesFailure, result.Outcome.Kind)
}

func TestContextAccumulatesAcrossSteps(t *testing.T) {
	var secondSnapshot map[string]string
	executor := NewPlanExecutor(64, func(_ context.Context, step Task, snapshot map[string]string) (StepResult, error) {
		switch step.Description {
		case "step one":
			return StepResult{Status: StepSuccess, ContextUpdates: map[string]string{"branch": "feat/x"}}, nil
		case "step two":
			secondSnapshot = snapshot
			snapshot["branch"] = "mutated"
			return StepResult{Status: StepSuccess, ContextUpdates: map[string]string{"commit": "abc123"}}, nil
		default:
			return StepResult{Status: StepSuccess}, nil
		}
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.NoError(t, err)

	assert.Equal(t, "feat/x", secondSnapshot["branch"])
	// Mutating the snapshot does not leak into the shared context.
	assert.Equal(t, map[string]string{"branch": "feat/x", "commit": "abc123"}, result.Context)
}

func TestExecutorErrorIsCriticalFailure(t *testing.T) {
	executor := NewPlanExecutor(64, func(_ context.Context, step Task, _ map[string]string) (StepResult, error) {
		if step.Description == "step one" {
			return StepResult{}, errors.New("sandbox crashed")
		}
		return StepResult{Status: StepSuccess}, nil
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.NoError(t, err)
	assert.Equal(t, StepFailure, result.StepOutcomes[0].Status)
	assert.True(t, result.StepOutcomes[0].IsCritical)
	assert.Equal(t, StepSkipped, result.StepOutcomes[1].Status)
	assert.Equal(t, StepSkipped, result.StepOutcomes[2].Status)
}

func TestStepLimitEnforced(t *testing.T) {
	executor := NewPlanExecutor(2, func(context.Context, Task, map[string]string) (StepResult, error) {
		return StepResult{Status: StepSuccess}, nil
	}, nil)

	_, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 2")
}

func TestStepEventsPublished(t *testing.T) {
	capture := &capturingBus{}
	executor := NewPlanExecutor(64, func(context.Context, Task, map[string]string) (StepResult, error) {
		return StepResult{Status: StepSuccess}, nil
	}, capture)

	plan := threeStepPlan()
	_, err := executor.ExecutePlan(context.Background(), "eng", plan)
	require.NoError(t, err)

	// Started and completed per step, interleaved.
	require.Len(t, capture.events, 6)
	for i := 0; i < 3; i++ {
		started := capture.events[2*i]
		completed := capture.events[2*i+1]
		assert.Equal(t, proto.EventPlanStepStarted, started.Type)
		assert.Equal(t, proto.EventPlanStepCompleted, completed.Type)

		index, _ := started.GetPayload(proto.KeyStepIndex)
		assert.Equal(t, i, index)
		status, _ := completed.PayloadString(proto.KeyStepStatus)
		assert.Equal(t, "SUCCESS", status)
	}
}

func TestChangedFilesAggregate(t *testing.T) {
	executor := NewPlanExecutor(64, func(_ context.Context, step Task, _ map[string]string) (StepResult, error) {
		return StepResult{
			Status:       StepSuccess,
			ChangedFiles: []string{fmt.Sprintf("pkg/%s.go", step.Description)},
		}, nil
	}, nil)

	result, err := executor.ExecutePlan(context.Background(), "eng", threeStepPlan())
	require.NoError(t, err)
	assert.Len(t, result.Outcome.ChangedFiles, 3)
}

func TestCancelledContextStopsExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := NewPlanExecutor(64, func(context.Context, Task, map[string]string) (StepResult, error) {
		cancel()
		return StepResult{Status: StepSuccess}, nil
	}, nil)

	_, err := executor.ExecutePlan(ctx, "eng", threeStepPlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
