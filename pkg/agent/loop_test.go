package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/escalation"
	"ampere/pkg/knowledge"
	"ampere/pkg/memory"
	"ampere/pkg/persistence"
	"ampere/pkg/proto"
	"ampere/pkg/spark"
	"ampere/pkg/ticket"
)

// fakeCoordinator applies status changes directly to the repository and
// records what the loop asked for.
type fakeCoordinator struct {
	repo        *ticket.Repository
	transitions []ticket.Status
	assigned    []string
	blocked     []string
}

func (f *fakeCoordinator) TransitionTicketStatus(id string, newStatus ticket.Status, _ string) error {
	if _, err := f.repo.UpdateStatus(id, newStatus); err != nil {
		return err
	}
	f.transitions = append(f.transitions, newStatus)
	return nil
}

func (f *fakeCoordinator) AssignTicket(id string, target *string, _ string) error {
	if err := f.repo.AssignTicket(id, target); err != nil {
		return err
	}
	if target != nil {
		f.assigned = append(f.assigned, *target)
	}
	return nil
}

func (f *fakeCoordinator) BlockTicket(_ context.Context, id, reason, _ string) (escalation.Decision, error) {
	f.blocked = append(f.blocked, reason)
	// Out-of-graph block requests are recorded but leave the status alone.
	_, _ = f.repo.UpdateStatus(id, ticket.StatusBlocked)
	return escalation.Decision{Kind: escalation.DecisionTechnical, Urgency: escalation.UrgencyNormal}, nil
}

type loopHarness struct {
	agent       *Agent
	coordinator *fakeCoordinator
	bus         *capturingBus
	tickets     *ticket.Repository
	knowledge   *knowledge.Repository
	ticketID    string
}

func newLoopHarness(t *testing.T, provider Provider, step StepExecutor) *loopHarness {
	t.Helper()
	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := ticket.NewRepository(db)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tk := &ticket.Ticket{
		ID:               ticket.NewTicketID(),
		Title:            "Refactor the parser",
		Description:      "The parser has grown unwieldy.",
		Type:             ticket.TypeTask,
		Priority:         ticket.PriorityMedium,
		Status:           ticket.StatusBacklog,
		CreatedByAgentID: "pm",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, repo.CreateTicket(tk))
	_, err = repo.UpdateStatus(tk.ID, ticket.StatusReady)
	require.NoError(t, err)

	capture := &capturingBus{}
	coordinator := &fakeCoordinator{repo: repo}
	knowledgeRepo := knowledge.NewRepository(db)
	role := spark.RoleCodeSpark()

	a := NewAgent(Options{
		ID:          "eng",
		Affinity:    spark.Affinity{Name: "Engineer", BasePrompt: "You are an engineering agent."},
		Role:        &role,
		Provider:    provider,
		Memory:      memory.NewService(knowledgeRepo, "eng"),
		Tickets:     repo,
		Coordinator: coordinator,
		Bus:         capture,
		Executor:    NewPlanExecutor(64, step, capture),
		States:      NewStateStore(db),
	})

	return &loopHarness{
		agent:       a,
		coordinator: coordinator,
		bus:         capture,
		tickets:     repo,
		knowledge:   knowledgeRepo,
		ticketID:    tk.ID,
	}
}

func successStep(_ context.Context, step Task, _ map[string]string) (StepResult, error) {
	return StepResult{
		Status:       StepSuccess,
		ChangedFiles: []string{"pkg/parser/parser.go"},
	}, nil
}

func TestRunTicketHappyPath(t *testing.T) {
	provider := NewMockProvider(
		"split grammar into smaller rules",
		"extract rule table\nadd parser tests")
	h := newLoopHarness(t, provider, successStep)
	baseDepth := h.agent.Stack().Depth()

	require.NoError(t, h.agent.RunTicket(context.Background(), h.ticketID))

	// Ticket went InProgress then Done.
	assert.Equal(t, []ticket.Status{ticket.StatusInProgress, ticket.StatusDone}, h.coordinator.transitions)
	loaded, err := h.tickets.GetTicket(h.ticketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusDone, loaded.Status)

	// Plan-level announcement, per-step events, code submissions, knowledge.
	var types []proto.EventType
	for _, e := range h.bus.events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, proto.EventPlanStepStarted)
	assert.Contains(t, types, proto.EventPlanStepCompleted)
	assert.Contains(t, types, proto.EventCodeSubmitted)
	assert.Contains(t, types, proto.EventKnowledgeStored)

	for _, e := range h.bus.events {
		if e.Type == proto.EventCodeSubmitted {
			file, _ := e.PayloadString(proto.KeyFilePath)
			assert.Equal(t, "pkg/parser/parser.go", file)
			review, _ := e.GetPayload(proto.KeyReviewRequired)
			assert.Equal(t, false, review)
		}
	}

	// Learned knowledge is persisted and typed.
	entries, err := h.knowledge.FindKnowledgeByType(knowledge.TypeFromOutcome, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "split grammar into smaller rules", entries[0].Approach)

	// All phase sparks were popped.
	assert.Equal(t, baseDepth, h.agent.Stack().Depth())

	// Both phases called the provider with the stack prompt.
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].SystemPrompt, "PERCEIVE")
	assert.Contains(t, calls[1].SystemPrompt, "PLAN phase")
}

func TestRunTicketNoIdeasAborts(t *testing.T) {
	h := newLoopHarness(t, NewMockProvider(""), successStep)

	require.NoError(t, h.agent.RunTicket(context.Background(), h.ticketID))

	// No transitions, no block, no events beyond nothing at all.
	assert.Empty(t, h.coordinator.transitions)
	assert.Empty(t, h.coordinator.blocked)
	assert.Empty(t, h.bus.events)

	loaded, err := h.tickets.GetTicket(h.ticketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusReady, loaded.Status)
}

func TestRunTicketProviderFailureBlocksTicket(t *testing.T) {
	provider := NewMockProvider()
	provider.FailWith(errors.New("model overloaded"))
	h := newLoopHarness(t, provider, successStep)
	baseDepth := h.agent.Stack().Depth()

	err := h.agent.RunTicket(context.Background(), h.ticketID)
	require.Error(t, err)

	require.Len(t, h.coordinator.blocked, 1)
	assert.Contains(t, h.coordinator.blocked[0], "model overloaded")

	// The failure itself became knowledge.
	entries, findErr := h.knowledge.FindKnowledgeByType(knowledge.TypeFromOutcome, 0)
	require.NoError(t, findErr)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Learnings, "Failed:")

	assert.Equal(t, baseDepth, h.agent.Stack().Depth())
}

func TestRunTicketCriticalStepFailureBlocksTicket(t *testing.T) {
	provider := NewMockProvider("one idea", "one step")
	failing := func(_ context.Context, _ Task, _ map[string]string) (StepResult, error) {
		return StepResult{Status: StepFailure, Critical: true, Message: "compile error"}, nil
	}
	h := newLoopHarness(t, provider, failing)

	require.NoError(t, h.agent.RunTicket(context.Background(), h.ticketID))

	require.Len(t, h.coordinator.blocked, 1)
	assert.Contains(t, h.coordinator.blocked[0], "✗ Failure: 1")

	loaded, err := h.tickets.GetTicket(h.ticketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusBlocked, loaded.Status)
}

func TestHandleEventIgnoresOtherAgents(t *testing.T) {
	h := newLoopHarness(t, NewMockProvider("idea", "step"), successStep)

	event := proto.NewEvent(proto.EventTicketAssigned, proto.AgentSource("pm"), proto.UrgencyMedium)
	event.SetPayload(proto.KeyTicketID, h.ticketID)
	event.SetPayload(proto.KeyAssignedTo, "someone-else")

	require.NoError(t, h.agent.HandleEvent(event))
	assert.Empty(t, h.coordinator.transitions)
}

func TestHandleEventStartsLoopOnAssignment(t *testing.T) {
	h := newLoopHarness(t, NewMockProvider("idea", "step"), successStep)

	event := proto.NewEvent(proto.EventTicketAssigned, proto.AgentSource("pm"), proto.UrgencyMedium)
	event.SetPayload(proto.KeyTicketID, h.ticketID)
	event.SetPayload(proto.KeyAssignedTo, "eng")

	require.NoError(t, h.agent.HandleEvent(event))
	assert.Equal(t, []ticket.Status{ticket.StatusInProgress, ticket.StatusDone}, h.coordinator.transitions)
}

func TestWorkingMemoryTracksCurrentTicket(t *testing.T) {
	h := newLoopHarness(t, NewMockProvider("idea", "step"), successStep)

	var seen []any
	h.agent.WorkingMemory().Observe(func(key string, value any) {
		if key == "current_ticket" {
			seen = append(seen, value)
		}
	})

	require.NoError(t, h.agent.RunTicket(context.Background(), h.ticketID))
	assert.Equal(t, []any{h.ticketID, nil}, seen)
}

func TestDelegationHandsPlanToWorker(t *testing.T) {
	provider := NewMockProvider("delegate this approach", "worker step one\nworker step two")
	h := newLoopHarness(t, provider, successStep)

	require.NoError(t, h.agent.DelegateTicket(context.Background(), h.ticketID, "worker"))

	// The ticket is assigned but not yet executed by the coordinator.
	assert.Equal(t, []string{"worker"}, h.coordinator.assigned)
	assert.Empty(t, h.coordinator.transitions)

	var taskAssigned *proto.Event
	for _, e := range h.bus.events {
		if e.Type == proto.EventTaskAssigned {
			taskAssigned = e
		}
	}
	require.NotNil(t, taskAssigned)
	to, _ := taskAssigned.PayloadString(proto.KeyAgentID)
	assert.Equal(t, "worker", to)

	planJSON, ok := taskAssigned.PayloadString(proto.KeyPlan)
	require.True(t, ok)
	plan, err := PlanFromJSON(planJSON)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	assert.Equal(t, "worker", plan.Task.AssignedTo)

	// A worker picking up the event executes the inherited plan to Done.
	worker := NewAgent(Options{
		ID:          "worker",
		Affinity:    spark.Affinity{Name: "Engineer", BasePrompt: "You are an engineering agent."},
		Provider:    NewMockProvider(),
		Tickets:     h.tickets,
		Coordinator: h.coordinator,
		Bus:         h.bus,
		Executor:    NewPlanExecutor(64, successStep, nil),
	})
	require.NoError(t, worker.HandleEvent(taskAssigned))

	loaded, err := h.tickets.GetTicket(h.ticketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusDone, loaded.Status)
}

func TestWorkerRunsInheritedPlanOnlyOnce(t *testing.T) {
	provider := NewMockProvider("delegate this approach", "worker step one\nworker step two")
	h := newLoopHarness(t, provider, successStep)

	require.NoError(t, h.agent.DelegateTicket(context.Background(), h.ticketID, "worker"))

	var taskAssigned *proto.Event
	for _, e := range h.bus.events {
		if e.Type == proto.EventTaskAssigned {
			taskAssigned = e
		}
	}
	require.NotNil(t, taskAssigned)

	workerProvider := NewMockProvider("should never be consulted")
	worker := NewAgent(Options{
		ID:          "worker",
		Affinity:    spark.Affinity{Name: "Engineer", BasePrompt: "You are an engineering agent."},
		Provider:    workerProvider,
		Tickets:     h.tickets,
		Coordinator: h.coordinator,
		Bus:         h.bus,
		Executor:    NewPlanExecutor(64, successStep, nil),
	})

	// The assignment event trails the task assignment; deliver both in
	// publication order, as the worker's serial subscription would.
	require.NoError(t, worker.HandleEvent(taskAssigned))

	assigned := proto.NewEvent(proto.EventTicketAssigned, proto.AgentSource("eng"), proto.UrgencyMedium)
	assigned.SetPayload(proto.KeyTicketID, h.ticketID)
	assigned.SetPayload(proto.KeyAssignedTo, "worker")
	require.NoError(t, worker.HandleEvent(assigned))

	// One execution of the inherited plan: no perception or planning of its
	// own, and no second pass after the assignment event.
	assert.Zero(t, workerProvider.CallCount())
	assert.Equal(t, []ticket.Status{ticket.StatusInProgress, ticket.StatusDone}, h.coordinator.transitions)

	loaded, err := h.tickets.GetTicket(h.ticketID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusDone, loaded.Status)
}

func TestHandoffSparkScopedToPlanning(t *testing.T) {
	provider := NewMockProvider("approach", "step")
	h := newLoopHarness(t, provider, successStep)
	baseDepth := h.agent.Stack().Depth()

	require.NoError(t, h.agent.DelegateTicket(context.Background(), h.ticketID, "worker"))

	// The planning call saw the delegation prompt; the stack is restored.
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].SystemPrompt, "delegating execution to agent worker")
	assert.Equal(t, baseDepth, h.agent.Stack().Depth())
}
