package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/proto"
)

type recordingNotifier struct {
	threadID string
	agentID  string
	reason   string
	context  map[string]string
	calls    int
}

func (n *recordingNotifier) NotifyEscalation(threadID, agentID, reason string, context map[string]string) error {
	n.threadID = threadID
	n.agentID = agentID
	n.reason = reason
	n.context = context
	n.calls++
	return nil
}

func TestEscalationHandlerForwardsToNotifier(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewEscalationEventHandler(notifier)

	event := proto.NewEvent(proto.EventEscalationRequested, proto.AgentSource("eng"), proto.UrgencyHigh)
	event.SetPayload(proto.KeyThreadID, "th-1")
	event.SetPayload(proto.KeyReason, "need approval")
	event.SetPayload(proto.KeyContext, map[string]string{"ticketId": "t-1"})

	require.NoError(t, handler.HandleEvent(event))
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, "th-1", notifier.threadID)
	assert.Equal(t, "eng", notifier.agentID)
	assert.Equal(t, "need approval", notifier.reason)
	assert.Equal(t, "t-1", notifier.context["ticketId"])
}

func TestEscalationHandlerReadsJSONDecodedContext(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewEscalationEventHandler(notifier)

	event := proto.NewEvent(proto.EventEscalationRequested, proto.SystemSource(), proto.UrgencyHigh)
	event.SetPayload(proto.KeyThreadID, "th-1")
	event.SetPayload(proto.KeyContext, map[string]string{"priority": "HIGH"})

	// Replay path: events come back from JSON with map[string]any payloads.
	data, err := event.ToJSON()
	require.NoError(t, err)
	decoded, err := proto.EventFromJSON(data)
	require.NoError(t, err)

	require.NoError(t, handler.HandleEvent(decoded))
	assert.Equal(t, "HIGH", notifier.context["priority"])
}

func TestEscalationHandlerIgnoresOtherEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	handler := NewEscalationEventHandler(notifier)

	event := proto.NewEvent(proto.EventTicketCreated, proto.AgentSource("pm"), proto.UrgencyMedium)
	require.NoError(t, handler.HandleEvent(event))
	assert.Equal(t, 0, notifier.calls)
}
