// Package proto defines the event envelope and the enums shared by every
// component: event types and classes, urgencies, and event sources.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the concrete discriminator of an event.
type EventType string

const (
	// Ticket lifecycle events.
	EventTicketCreated       EventType = "TICKET_CREATED"
	EventTicketAssigned      EventType = "TICKET_ASSIGNED"
	EventTicketStatusChanged EventType = "TICKET_STATUS_CHANGED"
	EventTicketBlocked       EventType = "TICKET_BLOCKED"
	EventTicketCompleted     EventType = "TICKET_COMPLETED"

	// Plan and task events.
	EventPlanStepStarted   EventType = "PLAN_STEP_STARTED"
	EventPlanStepCompleted EventType = "PLAN_STEP_COMPLETED"
	EventTaskAssigned      EventType = "TASK_ASSIGNED"
	EventMonitoringStarted EventType = "MONITORING_STARTED"

	// Message thread events.
	EventEscalationRequested EventType = "ESCALATION_REQUESTED"

	// Git events.
	EventCodeSubmitted EventType = "CODE_SUBMITTED"

	// Tool events.
	EventToolInvoked     EventType = "TOOL_INVOKED"
	EventOperationFailed EventType = "OPERATION_FAILED"

	// Knowledge events.
	EventKnowledgeStored EventType = "KNOWLEDGE_STORED"
)

// EventClass groups event types into coarse families for subscription.
type EventClass string

const (
	ClassTicket    EventClass = "TICKET"
	ClassPlan      EventClass = "PLAN"
	ClassMessage   EventClass = "MESSAGE"
	ClassGit       EventClass = "GIT"
	ClassTool      EventClass = "TOOL"
	ClassKnowledge EventClass = "KNOWLEDGE"
)

//nolint:gochecknoglobals // Static type-to-class table
var eventClasses = map[EventType]EventClass{
	EventTicketCreated:       ClassTicket,
	EventTicketAssigned:      ClassTicket,
	EventTicketStatusChanged: ClassTicket,
	EventTicketBlocked:       ClassTicket,
	EventTicketCompleted:     ClassTicket,
	EventPlanStepStarted:     ClassPlan,
	EventPlanStepCompleted:   ClassPlan,
	EventTaskAssigned:        ClassPlan,
	EventMonitoringStarted:   ClassPlan,
	EventEscalationRequested: ClassMessage,
	EventCodeSubmitted:       ClassGit,
	EventToolInvoked:         ClassTool,
	EventOperationFailed:     ClassTool,
	EventKnowledgeStored:     ClassKnowledge,
}

// ClassOf returns the event class for a concrete event type.
func ClassOf(t EventType) (EventClass, bool) {
	class, ok := eventClasses[t]
	return class, ok
}

// ValidateEventType reports whether a string names a known event type.
func ValidateEventType(s string) (EventType, bool) {
	t := EventType(strings.ToUpper(s))
	if _, ok := eventClasses[t]; ok {
		return t, true
	}
	return "", false
}

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// String returns the string representation of EventClass.
func (c EventClass) String() string {
	return string(c)
}

// Urgency expresses how quickly an event needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// ValidateUrgency reports whether a string names a known urgency.
func ValidateUrgency(s string) (Urgency, bool) {
	switch Urgency(strings.ToUpper(s)) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return Urgency(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

// ParseUrgency parses a string into an Urgency with validation.
func ParseUrgency(s string) (Urgency, error) {
	if u, ok := ValidateUrgency(s); ok {
		return u, nil
	}
	return "", fmt.Errorf("unknown urgency: %s", s)
}

// String returns the string representation of Urgency.
func (u Urgency) String() string {
	return string(u)
}

// SourceKind discriminates who produced an event.
type SourceKind string

const (
	SourceAgent  SourceKind = "agent"
	SourceHuman  SourceKind = "human"
	SourceSystem SourceKind = "system"
)

// EventSource identifies the producer of an event. ID is empty for system.
type EventSource struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

// AgentSource returns a source referencing the given agent.
func AgentSource(agentID string) EventSource {
	return EventSource{Kind: SourceAgent, ID: agentID}
}

// HumanSource returns a source referencing the given human.
func HumanSource(humanID string) EventSource {
	return EventSource{Kind: SourceHuman, ID: humanID}
}

// SystemSource returns the ambient system source.
func SystemSource() EventSource {
	return EventSource{Kind: SourceSystem}
}

// IsHuman reports whether the source is a human.
func (s EventSource) IsHuman() bool {
	return s.Kind == SourceHuman
}

// References reports whether the source names the given agent or human ID.
func (s EventSource) References(id string) bool {
	return s.Kind != SourceSystem && s.ID == id
}

// String returns kind:id, or just the kind for system sources.
func (s EventSource) String() string {
	if s.Kind == SourceSystem {
		return string(SourceSystem)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Event is the immutable record carried by the bus. Payload holds the
// variant-specific fields keyed by the Key* constants.
type Event struct {
	ID        string         `json:"event_id"`
	Type      EventType      `json:"event_type"`
	Class     EventClass     `json:"event_class_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"event_source"`
	Urgency   Urgency        `json:"urgency"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent constructs an event with a fresh ID and the current UTC time.
// The class is derived from the type.
func NewEvent(eventType EventType, source EventSource, urgency Urgency) *Event {
	class := eventClasses[eventType]
	return &Event{
		ID:        NewEventID(),
		Type:      eventType,
		Class:     class,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Urgency:   urgency,
		Payload:   make(map[string]any),
	}
}

// SetPayload stores a payload value under the given key.
func (e *Event) SetPayload(key string, value any) {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
}

// GetPayload returns a payload value and whether the key was present.
func (e *Event) GetPayload(key string) (any, bool) {
	if e.Payload == nil {
		return nil, false
	}
	val, exists := e.Payload[key]
	return val, exists
}

// PayloadString returns the payload value for key if it is a string.
func (e *Event) PayloadString(key string) (string, bool) {
	if val, exists := e.GetPayload(key); exists {
		if s, ok := val.(string); ok {
			return s, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	clone := *e
	if e.Payload != nil {
		clone.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			clone.Payload[k] = v
		}
	}
	return &clone
}

// ToJSON serializes the event. Unknown fields are ignored on read, so
// payload shapes may grow without breaking old readers.
func (e *Event) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
	}
	return data, nil
}

// EventFromJSON deserializes an event.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// Validate checks the envelope invariants.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if _, ok := ValidateEventType(string(e.Type)); !ok {
		return fmt.Errorf("invalid event type: %s", e.Type)
	}
	if _, ok := ValidateUrgency(string(e.Urgency)); !ok {
		return fmt.Errorf("invalid urgency: %s", e.Urgency)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	switch e.Source.Kind {
	case SourceAgent, SourceHuman:
		if e.Source.ID == "" {
			return fmt.Errorf("%s source requires an ID", e.Source.Kind)
		}
	case SourceSystem:
	default:
		return fmt.Errorf("invalid source kind: %s", e.Source.Kind)
	}
	return nil
}
