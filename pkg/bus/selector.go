package bus

import (
	"fmt"

	"ampere/pkg/proto"
)

// selectorKind discriminates the subscription shapes.
type selectorKind string

const (
	selectByType  selectorKind = "type"
	selectByClass selectorKind = "class"
	selectByAgent selectorKind = "agent"
	selectAll     selectorKind = "all"
)

// Selector decides which events a subscription observes.
type Selector struct {
	kind      selectorKind
	eventType proto.EventType
	class     proto.EventClass
	agentID   string
}

// ByType matches events of one concrete type.
func ByType(eventType proto.EventType) Selector {
	return Selector{kind: selectByType, eventType: eventType}
}

// ByClass matches every event in a class.
func ByClass(class proto.EventClass) Selector {
	return Selector{kind: selectByClass, class: class}
}

// ByAgent matches events whose source references the agent.
func ByAgent(agentID string) Selector {
	return Selector{kind: selectByAgent, agentID: agentID}
}

// All matches every event.
func All() Selector {
	return Selector{kind: selectAll}
}

// Matches reports whether the selector accepts the event.
func (s Selector) Matches(event *proto.Event) bool {
	switch s.kind {
	case selectByType:
		return event.Type == s.eventType
	case selectByClass:
		return event.Class == s.class
	case selectByAgent:
		return event.Source.References(s.agentID)
	case selectAll:
		return true
	default:
		return false
	}
}

// String renders the selector for logs.
func (s Selector) String() string {
	switch s.kind {
	case selectByType:
		return fmt.Sprintf("type=%s", s.eventType)
	case selectByClass:
		return fmt.Sprintf("class=%s", s.class)
	case selectByAgent:
		return fmt.Sprintf("agent=%s", s.agentID)
	default:
		return "all"
	}
}
