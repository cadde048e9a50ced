package ticket

import (
	"fmt"
	"strings"
	"time"

	"ampere/pkg/proto"
)

// Type categorizes a ticket.
type Type string

const (
	TypeTask    Type = "TASK"
	TypeFeature Type = "FEATURE"
	TypeBug     Type = "BUG"
	TypeChore   Type = "CHORE"
	TypeEpic    Type = "EPIC"
)

// ValidateType reports whether a string names a known ticket type.
func ValidateType(s string) (Type, bool) {
	switch Type(strings.ToUpper(s)) {
	case TypeTask, TypeFeature, TypeBug, TypeChore, TypeEpic:
		return Type(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

// ParseType parses a string into a Type with validation.
func ParseType(s string) (Type, error) {
	if t, ok := ValidateType(s); ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown ticket type: %s", s)
}

// String returns the string representation of Type.
func (t Type) String() string {
	return string(t)
}

// Priority orders tickets by importance.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ValidatePriority reports whether a string names a known priority.
func ValidatePriority(s string) (Priority, bool) {
	switch Priority(strings.ToUpper(s)) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

// ParsePriority parses a string into a Priority with validation.
func ParsePriority(s string) (Priority, error) {
	if p, ok := ValidatePriority(s); ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown ticket priority: %s", s)
}

// String returns the string representation of Priority.
func (p Priority) String() string {
	return string(p)
}

// ToUrgency maps ticket priority to event urgency. CRITICAL maps to HIGH:
// event urgency CRITICAL is reserved for escalation paths.
func (p Priority) ToUrgency() proto.Urgency {
	switch p {
	case PriorityLow:
		return proto.UrgencyLow
	case PriorityMedium:
		return proto.UrgencyMedium
	case PriorityHigh, PriorityCritical:
		return proto.UrgencyHigh
	default:
		return proto.UrgencyMedium
	}
}

// Ticket is a unit of work managed by the orchestrator.
//
//nolint:govet // struct alignment optimization not critical for this type
type Ticket struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Type             Type       `json:"ticket_type"`
	Priority         Priority   `json:"priority"`
	Status           Status     `json:"status"`
	AssignedAgentID  *string    `json:"assigned_agent_id,omitempty"`
	CreatedByAgentID string     `json:"created_by_agent_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ThreadID         *string    `json:"thread_id,omitempty"`
}

// IsOverdue reports whether the ticket's due date has passed without it
// being done.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusDone
}

// CanBeMutatedBy reports whether the actor may change this ticket: only the
// current assignee or the original creator.
func (t *Ticket) CanBeMutatedBy(actorID string) bool {
	if actorID == t.CreatedByAgentID {
		return true
	}
	return t.AssignedAgentID != nil && *t.AssignedAgentID == actorID
}

// Meeting associates a ticket with a meeting.
type Meeting struct {
	TicketID  string    `json:"ticket_id"`
	MeetingID string    `json:"meeting_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTicketID generates an identifier for a ticket.
func NewTicketID() string {
	return proto.NewID()
}
