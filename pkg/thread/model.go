// Package thread implements persistent message threads: the surface where
// agents and humans converse about a ticket, including the escalation path
// that parks a thread until a human responds.
package thread

import (
	"fmt"
	"strings"
	"time"

	"ampere/pkg/proto"
)

// Status tracks the thread lifecycle.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusWaitingForHuman Status = "WAITING_FOR_HUMAN"
	StatusClosed          Status = "CLOSED"
)

// ValidateStatus reports whether a string names a known thread status.
func ValidateStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(s)) {
	case StatusOpen, StatusWaitingForHuman, StatusClosed:
		return Status(strings.ToUpper(s)), true
	default:
		return "", false
	}
}

// ParseStatus parses a string into a Status with validation.
func ParseStatus(s string) (Status, error) {
	if status, ok := ValidateStatus(s); ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown thread status: %s", s)
}

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// Well-known channels.
const (
	ChannelEngineeringPublic = "Engineering.Public"
)

// Thread is a message log shared by a set of participants. Tickets reference
// threads by ID and threads carry the owning ticket ID; neither side holds
// the other in memory.
type Thread struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	Status       Status    `json:"status"`
	TicketID     *string   `json:"ticket_id,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether the agent is on the thread.
func (t *Thread) HasParticipant(agentID string) bool {
	for _, p := range t.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// Message is one entry in a thread's log.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewThreadID generates an identifier for a thread.
func NewThreadID() string {
	return proto.NewID()
}

// NewMessageID generates an identifier for a message.
func NewMessageID() string {
	return proto.NewID()
}
