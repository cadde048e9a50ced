package agent

import (
	"context"
	"fmt"

	"ampere/pkg/proto"
	"ampere/pkg/spark"
)

// DelegateTicket runs the coordinator's half of a handoff: perceive and plan
// the ticket, then hand the plan to the worker. The handoff spark is pushed
// for the duration of the planning phase; the worker's event handler picks
// up execution from the published task assignment.
func (a *Agent) DelegateTicket(ctx context.Context, ticketID, workerID string) error {
	t, err := a.tickets.GetTicket(ticketID)
	if err != nil {
		return err
	}
	a.working.Set("current_ticket", ticketID)
	defer a.working.Delete("current_ticket")

	var perception Perception
	err = a.withPhase(spark.PhasePerceive, ticketID, func() error {
		var perr error
		perception, perr = a.perceive(ctx, t)
		return perr
	})
	if err != nil {
		return err
	}
	if len(perception.Ideas) == 0 {
		return fmt.Errorf("no ideas for ticket %s, nothing to delegate", ticketID)
	}

	recalled, err := a.recall(t)
	if err != nil {
		a.logger.Warn("Recall failed for ticket %s, continuing without: %v", ticketID, err)
	}

	var plan Plan
	err = a.withPhase(spark.PhasePlan, ticketID, func() error {
		a.stack = a.stack.Push(spark.HandoffSpark(workerID))
		defer func() {
			a.stack, _ = a.stack.Pop()
		}()

		task, built, perr := a.plan(ctx, t, perception.Ideas[0], recalled)
		if perr != nil {
			return perr
		}
		built.Task = task.WithAssignee(workerID)
		plan = built
		return nil
	})
	if err != nil {
		return err
	}

	planJSON, err := plan.ToJSON()
	if err != nil {
		return err
	}

	// The worker must observe the task assignment before the ticket
	// assignment, so it executes the inherited plan instead of starting a
	// fresh loop.
	event := proto.NewEvent(proto.EventTaskAssigned, proto.AgentSource(a.ID), proto.UrgencyMedium)
	event.SetPayload(proto.KeyAgentID, workerID)
	event.SetPayload(proto.KeyTicketID, ticketID)
	event.SetPayload(proto.KeyTaskID, plan.Task.ID)
	event.SetPayload(proto.KeyPlan, planJSON)
	if err := a.bus.Publish(event); err != nil {
		return fmt.Errorf("failed to publish task assignment for ticket %s: %w", ticketID, err)
	}

	if err := a.coordinator.AssignTicket(ticketID, &workerID, a.ID); err != nil {
		return fmt.Errorf("failed to assign ticket %s to %s: %w", ticketID, workerID, err)
	}

	a.logger.Info("Delegated ticket %s to %s with %d plan steps", ticketID, workerID, len(plan.Steps))
	return nil
}
