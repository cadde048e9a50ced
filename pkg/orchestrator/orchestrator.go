// Package orchestrator coordinates tickets, threads, events, and escalation:
// every ticket mutation flows through here so side effects (thread posts,
// event publication, human escalation) stay consistent.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"ampere/pkg/escalation"
	"ampere/pkg/logx"
	"ampere/pkg/proto"
	"ampere/pkg/thread"
	"ampere/pkg/ticket"
)

// EventPublisher is the slice of the bus the orchestrator needs.
type EventPublisher interface {
	Publish(event *proto.Event) error
}

// TicketOrchestrator owns ticket lifecycle coordination. Every public call
// is one logical transaction: on failure, partial effects are rolled back or
// explicitly tolerated as documented per call.
type TicketOrchestrator struct {
	tickets    *ticket.Repository
	threads    *thread.API
	bus        EventPublisher
	classifier *escalation.Classifier
	clock      proto.Clock
	logger     *logx.Logger
}

// NewTicketOrchestrator wires the orchestrator over its three stores and the
// classifier.
func NewTicketOrchestrator(tickets *ticket.Repository, threads *thread.API,
	bus EventPublisher, classifier *escalation.Classifier) *TicketOrchestrator {
	return &TicketOrchestrator{
		tickets:    tickets,
		threads:    threads,
		bus:        bus,
		classifier: classifier,
		clock:      proto.SystemClock,
		logger:     logx.NewLogger("orchestrator"),
	}
}

// SetClock overrides the time source (tests).
func (o *TicketOrchestrator) SetClock(clock proto.Clock) {
	o.clock = clock
	o.tickets.SetClock(clock)
	o.threads.SetClock(clock)
}

// CreateTicket persists a new Backlog ticket, opens its discussion thread,
// and publishes TICKET_CREATED. If the thread cannot be created the ticket
// is rolled back; a failed event publish is tolerated with a warning since
// both rows are already durable.
func (o *TicketOrchestrator) CreateTicket(title, description string, typ ticket.Type,
	priority ticket.Priority, createdBy string) (*ticket.Ticket, *thread.Thread, error) {
	if strings.TrimSpace(title) == "" {
		return nil, nil, ticket.ValidationErrorf("ticket title must not be blank")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, nil, ticket.ValidationErrorf("ticket creator must be identified")
	}

	now := o.clock()
	t := &ticket.Ticket{
		ID:               ticket.NewTicketID(),
		Title:            title,
		Description:      description,
		Type:             typ,
		Priority:         priority,
		Status:           ticket.StatusBacklog,
		CreatedByAgentID: createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.tickets.CreateTicket(t); err != nil {
		return nil, nil, err
	}

	initial := fmt.Sprintf("Ticket %s created: %s [%s, %s]\n%s",
		t.ID, title, typ, priority, description)
	th, err := o.threads.CreateThread([]string{createdBy}, thread.ChannelEngineeringPublic, initial)
	if err != nil {
		if deleteErr := o.tickets.DeleteTicket(t.ID); deleteErr != nil {
			o.logger.Error("Failed to roll back ticket %s after thread failure: %v", t.ID, deleteErr)
		}
		return nil, nil, fmt.Errorf("failed to create thread for ticket %s: %w", t.ID, err)
	}
	if err := o.threads.SetTicketID(th.ID, t.ID); err != nil {
		o.logger.Warn("Failed to link thread %s to ticket %s: %v", th.ID, t.ID, err)
	}
	if err := o.tickets.SetThreadID(t.ID, th.ID); err != nil {
		o.logger.Warn("Failed to link ticket %s to thread %s: %v", t.ID, th.ID, err)
	}
	t.ThreadID = &th.ID

	event := proto.NewEvent(proto.EventTicketCreated, proto.AgentSource(createdBy), priority.ToUrgency())
	event.SetPayload(proto.KeyTicketID, t.ID)
	event.SetPayload(proto.KeyTitle, title)
	event.SetPayload(proto.KeyDescription, description)
	event.SetPayload(proto.KeyPriority, string(priority))
	event.SetPayload(proto.KeyThreadID, th.ID)
	if err := o.bus.Publish(event); err != nil {
		o.logger.Warn("Ticket %s created but event publish failed: %v", t.ID, err)
	}

	ticketsCreated.WithLabelValues(string(priority)).Inc()
	o.logger.Info("Created ticket %s (%s) with thread %s", t.ID, title, th.ID)
	return t, th, nil
}

// TransitionTicketStatus moves a ticket along the status graph on behalf of
// an actor. Leaving Blocked reopens the associated thread. The status write
// is the transaction boundary; the thread post and event publish that follow
// are tolerated on failure with a warning.
func (o *TicketOrchestrator) TransitionTicketStatus(id string, newStatus ticket.Status, actor string) error {
	t, err := o.tickets.GetTicket(id)
	if err != nil {
		return err
	}
	if !t.CanBeMutatedBy(actor) {
		return ticket.ValidationErrorf(
			"agent %s does not have permission to modify ticket %s", actor, id)
	}

	previous, err := o.tickets.UpdateStatus(id, newStatus)
	if err != nil {
		return err
	}

	if previous == ticket.StatusBlocked && t.ThreadID != nil {
		if err := o.threads.ReopenThread(*t.ThreadID); err != nil {
			o.logger.Warn("Failed to reopen thread %s for ticket %s: %v", *t.ThreadID, id, err)
		}
	}

	if t.ThreadID != nil {
		content := fmt.Sprintf("Status changed: %s -> %s (by %s)", previous, newStatus, actor)
		if _, err := o.threads.PostMessage(*t.ThreadID, proto.AgentSource(actor), content); err != nil {
			o.logger.Warn("Failed to post status change on thread %s: %v", *t.ThreadID, err)
		}
	}

	event := proto.NewEvent(proto.EventTicketStatusChanged, proto.AgentSource(actor), proto.UrgencyMedium)
	event.SetPayload(proto.KeyTicketID, id)
	event.SetPayload(proto.KeyPreviousStatus, string(previous))
	event.SetPayload(proto.KeyNewStatus, string(newStatus))
	event.SetPayload(proto.KeyChangedBy, actor)
	if err := o.bus.Publish(event); err != nil {
		o.logger.Warn("Status change persisted but event publish failed: %v", err)
	}

	if newStatus == ticket.StatusDone {
		ticketsCompleted.Inc()
		completed := proto.NewEvent(proto.EventTicketCompleted, proto.AgentSource(actor), proto.UrgencyMedium)
		completed.SetPayload(proto.KeyTicketID, id)
		completed.SetPayload(proto.KeyTitle, t.Title)
		if err := o.bus.Publish(completed); err != nil {
			o.logger.Warn("Ticket completion event publish failed: %v", err)
		}
	}
	return nil
}

// AssignTicket sets or clears the assignee on behalf of an assigner. nil
// target unassigns.
func (o *TicketOrchestrator) AssignTicket(id string, target *string, assigner string) error {
	t, err := o.tickets.GetTicket(id)
	if err != nil {
		return err
	}
	if !t.CanBeMutatedBy(assigner) {
		return ticket.ValidationErrorf(
			"agent %s does not have permission to modify ticket %s", assigner, id)
	}

	if err := o.tickets.AssignTicket(id, target); err != nil {
		return err
	}

	event := proto.NewEvent(proto.EventTicketAssigned, proto.AgentSource(assigner), t.Priority.ToUrgency())
	event.SetPayload(proto.KeyTicketID, id)
	event.SetPayload(proto.KeyAssignedBy, assigner)
	notice := fmt.Sprintf("Ticket unassigned (by %s)", assigner)
	if target != nil {
		event.SetPayload(proto.KeyAssignedTo, *target)
		notice = fmt.Sprintf("Assigned to %s (by %s)", *target, assigner)
	}
	if err := o.bus.Publish(event); err != nil {
		o.logger.Warn("Assignment persisted but event publish failed: %v", err)
	}

	if t.ThreadID != nil {
		if _, err := o.threads.PostMessage(*t.ThreadID, proto.AgentSource(assigner), notice); err != nil {
			o.logger.Warn("Failed to post assignment notice on thread %s: %v", *t.ThreadID, err)
		}
	}
	return nil
}

// BlockTicket transitions the ticket to Blocked, classifies the reason, and
// escalates to a human on the ticket's thread. Returns the classifier's
// decision so callers can act on the resolution process.
func (o *TicketOrchestrator) BlockTicket(ctx context.Context, id, reason, reportedBy string) (escalation.Decision, error) {
	t, err := o.tickets.GetTicket(id)
	if err != nil {
		return escalation.Decision{}, err
	}
	if !t.CanBeMutatedBy(reportedBy) {
		return escalation.Decision{}, ticket.ValidationErrorf(
			"agent %s does not have permission to modify ticket %s", reportedBy, id)
	}
	if !ticket.CanTransition(t.Status, ticket.StatusBlocked) {
		return escalation.Decision{}, ticket.NewTransitionError(t.Status, ticket.StatusBlocked)
	}

	if _, err := o.tickets.UpdateStatus(id, ticket.StatusBlocked); err != nil {
		return escalation.Decision{}, err
	}

	decision := o.classifier.Classify(ctx, reason, escalation.TicketSignals{
		Priority: t.Priority,
		DueDate:  t.DueDate,
	})

	event := proto.NewEvent(proto.EventTicketBlocked, proto.AgentSource(reportedBy), proto.UrgencyHigh)
	event.SetPayload(proto.KeyTicketID, id)
	event.SetPayload(proto.KeyReason, reason)
	event.SetPayload(proto.KeyReportedBy, reportedBy)
	event.SetPayload(proto.KeyEscalationKind, string(decision.Kind))
	event.SetPayload(proto.KeyEscalationProcess, string(decision.Process()))
	if err := o.bus.Publish(event); err != nil {
		o.logger.Warn("Ticket %s blocked but event publish failed: %v", id, err)
	}

	if t.ThreadID != nil {
		context := map[string]string{
			"ticketId":   id,
			"title":      t.Title,
			"reportedBy": reportedBy,
			"priority":   string(t.Priority),
		}
		if err := o.threads.EscalateToHuman(*t.ThreadID, reason, context); err != nil {
			o.logger.Warn("Failed to escalate thread for ticket %s: %v", id, err)
		}
	} else {
		o.logger.Warn("Ticket %s has no thread; escalation not surfaced to humans", id)
	}

	ticketsBlocked.WithLabelValues(string(decision.Kind)).Inc()
	o.logger.Info("Ticket %s blocked: %s -> %s (%s)", id, reason, decision.Kind, decision.Urgency)
	return decision, nil
}
