package thread

import (
	"fmt"

	"ampere/pkg/logx"
	"ampere/pkg/proto"
)

// HumanNotifier is the side-channel that puts an escalation in front of a
// human: chat message, email, pager. Implementations live outside the core.
type HumanNotifier interface {
	NotifyEscalation(threadID, agentID, reason string, context map[string]string) error
}

// EscalationEventHandler forwards ESCALATION_REQUESTED events from the bus to
// a HumanNotifier. Register it as a subscriber on the MESSAGE event class.
type EscalationEventHandler struct {
	notifier HumanNotifier
	logger   *logx.Logger
}

// NewEscalationEventHandler creates a handler bound to the notifier.
func NewEscalationEventHandler(notifier HumanNotifier) *EscalationEventHandler {
	return &EscalationEventHandler{
		notifier: notifier,
		logger:   logx.NewLogger("escalation-handler"),
	}
}

// HandleEvent processes one event. Non-escalation events are ignored.
func (h *EscalationEventHandler) HandleEvent(event *proto.Event) error {
	if event.Type != proto.EventEscalationRequested {
		return nil
	}

	threadID, ok := event.PayloadString(proto.KeyThreadID)
	if !ok {
		return fmt.Errorf("escalation event %s missing thread ID", event.ID)
	}
	reason, _ := event.PayloadString(proto.KeyReason)

	agentID := ""
	if event.Source.Kind == proto.SourceAgent {
		agentID = event.Source.ID
	}

	context := extractContext(event)
	if err := h.notifier.NotifyEscalation(threadID, agentID, reason, context); err != nil {
		return fmt.Errorf("failed to notify human for thread %s: %w", threadID, err)
	}

	h.logger.Info("Forwarded escalation on thread %s to human notifier", threadID)
	return nil
}

// extractContext reads the context payload. The map arrives either as the
// original map[string]string or as map[string]any after a JSON round trip.
func extractContext(event *proto.Event) map[string]string {
	raw, ok := event.GetPayload(proto.KeyContext)
	if !ok {
		return nil
	}

	switch m := raw.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	default:
		return nil
	}
}
