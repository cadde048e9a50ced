package agent

import (
	"context"
	"fmt"
	"strings"

	"ampere/pkg/escalation"
	"ampere/pkg/knowledge"
	"ampere/pkg/logx"
	"ampere/pkg/memory"
	"ampere/pkg/proto"
	"ampere/pkg/spark"
	"ampere/pkg/ticket"
)

// TicketCoordinator is the slice of the orchestrator the loop needs.
type TicketCoordinator interface {
	TransitionTicketStatus(id string, newStatus ticket.Status, actor string) error
	AssignTicket(id string, target *string, assigner string) error
	BlockTicket(ctx context.Context, id, reason, reportedBy string) (escalation.Decision, error)
}

// Options configures an agent.
type Options struct {
	ID          string
	Affinity    spark.Affinity
	Role        *spark.Spark
	Provider    Provider
	Memory      *memory.Service
	Tickets     *ticket.Repository
	Coordinator TicketCoordinator
	Bus         EventPublisher
	Executor    *PlanExecutor
	States      *StateStore
}

// Agent runs the cognitive loop for one identity: perceive the assigned
// ticket, recall experience, plan, execute, learn. The loop is invoked per
// ticket and runs on the caller's goroutine; an agent instance must not be
// driven concurrently.
type Agent struct {
	ID string

	stack       spark.Stack
	provider    Provider
	memory      *memory.Service
	tickets     *ticket.Repository
	coordinator TicketCoordinator
	bus         EventPublisher
	executor    *PlanExecutor
	states      *StateStore
	working     *memory.WorkingMemory
	counter     *TokenCounter
	clock       proto.Clock
	logger      *logx.Logger

	inherited map[string]Plan
}

// NewAgent builds an agent over its collaborators. The role spark, when
// given, is pushed once at construction and stays for the agent's life.
func NewAgent(opts Options) *Agent {
	stack := spark.NewStack(opts.Affinity)
	if opts.Role != nil {
		stack = stack.Push(*opts.Role)
	}
	counter, err := NewTokenCounter()
	if err != nil {
		counter = nil
	}
	return &Agent{
		ID:          opts.ID,
		stack:       stack,
		provider:    opts.Provider,
		memory:      opts.Memory,
		tickets:     opts.Tickets,
		coordinator: opts.Coordinator,
		bus:         opts.Bus,
		executor:    opts.Executor,
		states:      opts.States,
		working:     memory.NewWorkingMemory(),
		counter:     counter,
		clock:       proto.SystemClock,
		logger:      logx.NewLogger("agent-" + opts.ID),
		inherited:   make(map[string]Plan),
	}
}

// SetClock overrides the time source (tests).
func (a *Agent) SetClock(clock proto.Clock) {
	a.clock = clock
}

// Stack returns the agent's current spark stack.
func (a *Agent) Stack() spark.Stack {
	return a.stack
}

// WorkingMemory returns the agent's in-RAM state.
func (a *Agent) WorkingMemory() *memory.WorkingMemory {
	return a.working
}

// HandleEvent reacts to bus traffic addressed to this agent: a ticket
// assignment starts the full loop, a task assignment starts execution of an
// inherited plan. Events for other agents are ignored.
func (a *Agent) HandleEvent(event *proto.Event) error {
	switch event.Type {
	case proto.EventTaskAssigned:
		if to, ok := event.PayloadString(proto.KeyAgentID); !ok || to != a.ID {
			return nil
		}
		ticketID, _ := event.PayloadString(proto.KeyTicketID)
		planJSON, ok := event.PayloadString(proto.KeyPlan)
		if !ok {
			return fmt.Errorf("task assignment for ticket %s carries no plan", ticketID)
		}
		plan, err := PlanFromJSON(planJSON)
		if err != nil {
			return err
		}
		a.inherited[ticketID] = plan
		return a.ExecuteInherited(context.Background(), ticketID, plan)

	case proto.EventTicketAssigned:
		if to, ok := event.PayloadString(proto.KeyAssignedTo); !ok || to != a.ID {
			return nil
		}
		ticketID, _ := event.PayloadString(proto.KeyTicketID)
		if _, handedOff := a.inherited[ticketID]; handedOff {
			// Tail of the same handoff: the inherited plan already covered
			// this ticket. Consume the record instead of starting a loop.
			delete(a.inherited, ticketID)
			return nil
		}
		return a.RunTicket(context.Background(), ticketID)
	}
	return nil
}

// RunTicket drives the full loop for one ticket: PERCEIVE, RECALL, PLAN,
// EXECUTE, LEARN, then complete or block the ticket.
func (a *Agent) RunTicket(ctx context.Context, ticketID string) error {
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
		return a.failAndLearn(ctx, t, BlankTask(), BlankPlan(), err)
	}
	if len(perception.Ideas) == 0 {
		a.logger.Info("Perception %s for ticket %s produced no ideas; stopping", perception.ID, ticketID)
		return nil
	}

	recalled, err := a.recall(t)
	if err != nil {
		a.logger.Warn("Recall failed for ticket %s, continuing without: %v", ticketID, err)
	}

	a.ensureInProgress(t)

	var task Task
	var plan Plan
	err = a.withPhase(spark.PhasePlan, ticketID, func() error {
		var perr error
		task, plan, perr = a.plan(ctx, t, perception.Ideas[0], recalled)
		return perr
	})
	if err != nil {
		return a.failAndLearn(ctx, t, task, plan, err)
	}

	return a.executeAndLearn(ctx, t, task, plan)
}

// ExecuteInherited runs the loop's tail for a plan produced by another
// agent: EXECUTE and LEARN only, with no perception or planning of its own.
// The inherited record stays until the matching TICKET_ASSIGNED event is
// observed, since that event trails the task assignment on the bus.
func (a *Agent) ExecuteInherited(ctx context.Context, ticketID string, plan Plan) error {
	t, err := a.tickets.GetTicket(ticketID)
	if err != nil {
		return err
	}
	a.working.Set("current_ticket", ticketID)
	defer a.working.Delete("current_ticket")

	return a.executeAndLearn(ctx, t, plan.Task, plan)
}

// executeAndLearn is the shared EXECUTE + LEARN tail, ending with the
// ticket completed or blocked.
func (a *Agent) executeAndLearn(ctx context.Context, t *ticket.Ticket, task Task, plan Plan) error {
	a.ensureInProgress(t)

	var result ExecutionResult
	err := a.withPhase(spark.PhaseExecute, t.ID, func() error {
		var perr error
		result, perr = a.execute(ctx, t, plan)
		return perr
	})
	if err != nil {
		return a.failAndLearn(ctx, t, task, plan, err)
	}

	learnErr := a.withPhase(spark.PhaseLearn, t.ID, func() error {
		return a.learn(t, task, plan, result.Outcome)
	})
	if learnErr != nil {
		a.logger.Warn("Learning failed for ticket %s: %v", t.ID, learnErr)
	}

	if result.Outcome.IsSuccess() {
		if err := a.coordinator.TransitionTicketStatus(t.ID, ticket.StatusDone, a.ID); err != nil {
			return fmt.Errorf("plan for ticket %s succeeded but completion failed: %w", t.ID, err)
		}
		a.logger.Info("Ticket %s completed", t.ID)
		return nil
	}

	reason := result.Outcome.Error
	if reason == "" {
		reason = result.Outcome.Message
	}
	if _, err := a.coordinator.BlockTicket(ctx, t.ID, reason, a.ID); err != nil {
		return fmt.Errorf("plan for ticket %s failed and blocking failed too: %w", t.ID, err)
	}
	return nil
}

// failAndLearn handles an unrecoverable phase failure: record a failure
// outcome, run LEARN so the failure becomes knowledge, block the ticket, and
// return the original error.
func (a *Agent) failAndLearn(ctx context.Context, t *ticket.Ticket, task Task, plan Plan, cause error) error {
	outcome := NewOutcome(OutcomeFailure, a.ID, t.ID, task.ID)
	outcome.StartedAt = a.clock()
	outcome.EndedAt = a.clock()
	outcome.Error = cause.Error()

	learnErr := a.withPhase(spark.PhaseLearn, t.ID, func() error {
		return a.learn(t, task, plan, outcome)
	})
	if learnErr != nil {
		a.logger.Warn("Learning from failure on ticket %s failed: %v", t.ID, learnErr)
	}

	if _, err := a.coordinator.BlockTicket(ctx, t.ID, cause.Error(), a.ID); err != nil {
		a.logger.Error("Failed to block ticket %s after %v: %v", t.ID, cause, err)
	}
	return cause
}

// withPhase pushes the phase spark, checkpoints, runs fn, and pops the spark
// on every exit path.
func (a *Agent) withPhase(phase, ticketID string, fn func() error) error {
	a.stack = a.stack.Push(spark.PhaseSpark(phase))
	a.checkpoint(phase, ticketID)
	defer func() {
		a.stack, _ = a.stack.Pop()
	}()
	return fn()
}

func (a *Agent) checkpoint(phase, ticketID string) {
	if a.states == nil {
		return
	}
	id := ticketID
	if err := a.states.SaveCheckpoint(a.ID, phase, &id, a.working.Snapshot()); err != nil {
		a.logger.Warn("Checkpoint failed in phase %s: %v", phase, err)
	}
}

// perceive asks the provider for candidate approaches to the ticket.
func (a *Agent) perceive(ctx context.Context, t *ticket.Ticket) (Perception, error) {
	prompt := fmt.Sprintf(
		"Ticket %s (%s, priority %s): %s\n\n%s\n\nList candidate approaches, one per line.",
		t.ID, t.Type, t.Priority, t.Title, t.Description)

	response, err := a.generate(ctx, prompt)
	if err != nil {
		return Perception{}, fmt.Errorf("perception failed for ticket %s: %w", t.ID, err)
	}

	perception := Perception{
		ID:           proto.NewID(),
		CurrentState: fmt.Sprintf("ticket %s in status %s", t.ID, t.Status),
		Ideas:        parseIdeas(response),
	}
	a.logger.Debug("Perceived %d ideas for ticket %s", len(perception.Ideas), t.ID)
	return perception, nil
}

// recall fetches relevant experience for the ticket. A nil memory service
// recalls nothing.
func (a *Agent) recall(t *ticket.Ticket) ([]knowledge.WithScore, error) {
	if a.memory == nil {
		return nil, nil
	}
	return a.memory.RecallRelevantKnowledge(memory.Context{
		TaskType:    strings.ToLower(string(t.Type)),
		Tags:        []string{strings.ToLower(string(t.Type)), strings.ToLower(string(t.Priority))},
		Description: t.Title + " " + t.Description,
	}, 5)
}

// plan turns the chosen idea into a task with ordered steps and announces
// the plan on the bus.
func (a *Agent) plan(ctx context.Context, t *ticket.Ticket, idea Idea, recalled []knowledge.WithScore) (Task, Plan, error) {
	task := NewCodeChangeTask(idea.Description).WithAssignee(a.ID).WithStatus(TaskInProgress)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Approach: %s\n", idea.Description)
	if len(recalled) > 0 {
		sb.WriteString("\nRelevant experience:\n")
		for _, r := range recalled {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Entry.Approach, r.Entry.Learnings)
		}
	}
	sb.WriteString("\nBreak the approach into ordered steps, one per line.")

	response, err := a.generate(ctx, sb.String())
	if err != nil {
		return task, BlankPlan(), fmt.Errorf("planning failed for ticket %s: %w", t.ID, err)
	}

	var steps []Task
	for _, parsed := range parseIdeas(response) {
		steps = append(steps, NewCodeChangeTask(parsed.Description).WithAssignee(a.ID))
	}
	plan := PlanForTask(task, steps, len(steps))

	a.publish(func() *proto.Event {
		event := proto.NewEvent(proto.EventPlanStepStarted, proto.AgentSource(a.ID), proto.UrgencyLow)
		event.SetPayload(proto.KeyPlanID, plan.ID)
		event.SetPayload(proto.KeyTaskID, task.ID)
		event.SetPayload(proto.KeyTicketID, t.ID)
		event.SetPayload(proto.KeyStepCount, len(plan.Steps))
		return event
	})

	a.logger.Info("Planned %d steps for ticket %s", len(steps), t.ID)
	return task, plan, nil
}

// execute delegates to the plan executor and publishes a code submission for
// every file changed by a successful step.
func (a *Agent) execute(ctx context.Context, t *ticket.Ticket, plan Plan) (ExecutionResult, error) {
	result, err := a.executor.ExecutePlan(ctx, a.ID, plan)
	if err != nil {
		return ExecutionResult{}, err
	}
	result.Outcome.TicketID = t.ID

	for _, step := range result.StepOutcomes {
		if step.Status != StepSuccess && step.Status != StepPartialSuccess {
			continue
		}
		for _, file := range step.ChangedFiles {
			file := file
			description := step.Step.Description
			a.publish(func() *proto.Event {
				event := proto.NewEvent(proto.EventCodeSubmitted, proto.AgentSource(a.ID), proto.UrgencyMedium)
				event.SetPayload(proto.KeyTicketID, t.ID)
				event.SetPayload(proto.KeyFilePath, file)
				event.SetPayload(proto.KeyChangeDescription, description)
				event.SetPayload(proto.KeyReviewRequired, false)
				return event
			})
		}
	}
	return result, nil
}

// learn extracts knowledge from the outcome and persists it.
func (a *Agent) learn(t *ticket.Ticket, task Task, plan Plan, outcome Outcome) error {
	k := a.extractKnowledgeFromOutcome(outcome, task, plan)
	taskType := strings.ToLower(string(t.Type))
	tags := []string{taskType, strings.ToLower(string(t.Priority))}

	if a.memory == nil {
		a.logger.Debug("No memory service; outcome %s not persisted", outcome.ID)
		return nil
	}
	entry, err := a.memory.StoreKnowledge(k, tags, taskType)
	if err != nil {
		return err
	}

	a.publish(func() *proto.Event {
		event := proto.NewEvent(proto.EventKnowledgeStored, proto.AgentSource(a.ID), proto.UrgencyLow)
		event.SetPayload(proto.KeyKnowledgeID, entry.ID)
		event.SetPayload(proto.KeyKnowledgeType, string(entry.Type))
		event.SetPayload(proto.KeyTicketID, t.ID)
		event.SetPayload(proto.KeyTags, tags)
		return event
	})
	return nil
}

// extractKnowledgeFromOutcome condenses what happened into a knowledge
// value: the task description as the approach, the outcome's message or
// error as the learnings.
func (a *Agent) extractKnowledgeFromOutcome(outcome Outcome, task Task, plan Plan) knowledge.Knowledge {
	approach := task.Description
	if approach == "" && !plan.IsBlank() {
		approach = fmt.Sprintf("%d-step plan", len(plan.Steps))
	}
	if approach == "" {
		approach = "no concrete approach derived"
	}

	learnings := outcome.Message
	if outcome.Error != "" {
		learnings = "Failed: " + outcome.Error
	}
	if learnings == "" {
		learnings = "no observations recorded"
	}
	return knowledge.FromOutcome(outcome.ID, approach, learnings, a.clock())
}

// ensureInProgress moves a ready ticket into progress. Any other status is
// left alone.
func (a *Agent) ensureInProgress(t *ticket.Ticket) {
	current, err := a.tickets.GetTicket(t.ID)
	if err != nil {
		a.logger.Warn("Could not re-read ticket %s: %v", t.ID, err)
		return
	}
	if current.Status != ticket.StatusReady {
		return
	}
	if err := a.coordinator.TransitionTicketStatus(t.ID, ticket.StatusInProgress, a.ID); err != nil {
		a.logger.Warn("Could not start ticket %s: %v", t.ID, err)
	}
}

// generate calls the provider with the current stack prompt and logs token
// usage.
func (a *Agent) generate(ctx context.Context, prompt string) (string, error) {
	systemPrompt := a.stack.BuildSystemPrompt()
	response, err := a.provider.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	a.logger.Debug("LLM call: %d prompt tokens, %d response tokens (%s)",
		a.counter.Count(systemPrompt)+a.counter.Count(prompt),
		a.counter.Count(response), a.provider.ModelName())
	return response, nil
}

func (a *Agent) publish(build func() *proto.Event) {
	if a.bus == nil {
		return
	}
	event := build()
	if err := a.bus.Publish(event); err != nil {
		a.logger.Warn("Failed to publish %s: %v", event.Type, err)
	}
}
