// Package knowledge implements append-only episodic memory: typed records of
// how an agent approached a task and what it learned, searchable by tag,
// time range, and structured context.
package knowledge

import (
	"fmt"
	"strings"
	"time"

	"ampere/pkg/proto"
)

// Type discriminates what produced a piece of knowledge.
type Type string

const (
	TypeFromIdea       Type = "FROM_IDEA"
	TypeFromOutcome    Type = "FROM_OUTCOME"
	TypeFromPerception Type = "FROM_PERCEPTION"
	TypeFromPlan       Type = "FROM_PLAN"
	TypeFromTask       Type = "FROM_TASK"
)

// ValidateType reports whether a string names a known knowledge type.
func ValidateType(s string) (Type, bool) {
	switch Type(strings.ToUpper(s)) {
	case TypeFromIdea, TypeFromOutcome, TypeFromPerception, TypeFromPlan, TypeFromTask:
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
	return "", fmt.Errorf("unknown knowledge type: %s", s)
}

// String returns the string representation of Type.
func (t Type) String() string {
	return string(t)
}

// Knowledge is the value an agent records: the approach taken and what was
// learned, tied to the artifact that produced it.
type Knowledge struct {
	Type      Type      `json:"knowledge_type"`
	SourceID  string    `json:"source_id"`
	Approach  string    `json:"approach"`
	Learnings string    `json:"learnings"`
	Timestamp time.Time `json:"timestamp"`
}

// FromIdea records knowledge produced while evaluating an idea.
func FromIdea(ideaID, approach, learnings string, timestamp time.Time) Knowledge {
	return Knowledge{Type: TypeFromIdea, SourceID: ideaID, Approach: approach, Learnings: learnings, Timestamp: timestamp}
}

// FromOutcome records knowledge extracted from an execution outcome.
func FromOutcome(outcomeID, approach, learnings string, timestamp time.Time) Knowledge {
	return Knowledge{Type: TypeFromOutcome, SourceID: outcomeID, Approach: approach, Learnings: learnings, Timestamp: timestamp}
}

// FromPerception records knowledge captured during perception.
func FromPerception(perceptionID, approach, learnings string, timestamp time.Time) Knowledge {
	return Knowledge{Type: TypeFromPerception, SourceID: perceptionID, Approach: approach, Learnings: learnings, Timestamp: timestamp}
}

// FromPlan records knowledge captured while planning.
func FromPlan(planID, approach, learnings string, timestamp time.Time) Knowledge {
	return Knowledge{Type: TypeFromPlan, SourceID: planID, Approach: approach, Learnings: learnings, Timestamp: timestamp}
}

// FromTask records knowledge tied to a specific task.
func FromTask(taskID, approach, learnings string, timestamp time.Time) Knowledge {
	return Knowledge{Type: TypeFromTask, SourceID: taskID, Approach: approach, Learnings: learnings, Timestamp: timestamp}
}

// Entry is the persisted form of a Knowledge value plus its metadata.
//
//nolint:govet // struct alignment optimization not critical for this type
type Entry struct {
	ID              string    `json:"id"`
	AgentID         *string   `json:"agent_id,omitempty"`
	Type            Type      `json:"knowledge_type"`
	Approach        string    `json:"approach"`
	Learnings       string    `json:"learnings"`
	Timestamp       time.Time `json:"timestamp"`
	TaskType        *string   `json:"task_type,omitempty"`
	ComplexityLevel *int      `json:"complexity_level,omitempty"`
	SourceID        string    `json:"source_id"`
	Tags            []string  `json:"tags,omitempty"`
}

// Knowledge reconstructs the stored value from the entry.
func (e *Entry) Knowledge() Knowledge {
	return Knowledge{
		Type:      e.Type,
		SourceID:  e.SourceID,
		Approach:  e.Approach,
		Learnings: e.Learnings,
		Timestamp: e.Timestamp,
	}
}

// WithScore pairs an entry with a caller-assigned relevance score in [0,1].
// The repository itself never assigns scores.
type WithScore struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"relevance_score"`
}

// NewEntryID generates an identifier for an entry.
func NewEntryID() string {
	return proto.NewID()
}
