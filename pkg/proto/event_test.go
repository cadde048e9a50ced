package proto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventTicketCreated, AgentSource("pm"), UrgencyMedium)

	require.NotNil(t, e)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTicketCreated, e.Type)
	assert.Equal(t, ClassTicket, e.Class)
	assert.Equal(t, SourceAgent, e.Source.Kind)
	assert.Equal(t, "pm", e.Source.ID)
	assert.Equal(t, UrgencyMedium, e.Urgency)
	assert.False(t, e.Timestamp.IsZero())
	require.NoError(t, e.Validate())
}

func TestClassOf(t *testing.T) {
	cases := map[EventType]EventClass{
		EventTicketBlocked:       ClassTicket,
		EventPlanStepStarted:     ClassPlan,
		EventTaskAssigned:        ClassPlan,
		EventEscalationRequested: ClassMessage,
		EventCodeSubmitted:       ClassGit,
		EventOperationFailed:     ClassTool,
		EventKnowledgeStored:     ClassKnowledge,
	}
	for eventType, want := range cases {
		class, ok := ClassOf(eventType)
		require.True(t, ok, "no class for %s", eventType)
		assert.Equal(t, want, class)
	}

	_, ok := ClassOf(EventType("BOGUS"))
	assert.False(t, ok)
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := NewEvent(EventTicketStatusChanged, HumanSource("alice"), UrgencyHigh)
	e.SetPayload(KeyTicketID, "t-1")
	e.SetPayload(KeyPreviousStatus, "READY")
	e.SetPayload(KeyNewStatus, "IN_PROGRESS")

	data, err := e.ToJSON()
	require.NoError(t, err)

	decoded, err := EventFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Type, decoded.Type)
	assert.Equal(t, e.Class, decoded.Class)
	assert.Equal(t, e.Source, decoded.Source)
	assert.Equal(t, e.Urgency, decoded.Urgency)

	ticketID, ok := decoded.PayloadString(KeyTicketID)
	require.True(t, ok)
	assert.Equal(t, "t-1", ticketID)
}

func TestEventJSONIgnoresUnknownFields(t *testing.T) {
	raw := []byte(`{
		"event_id": "e-1",
		"event_type": "TICKET_CREATED",
		"event_class_type": "TICKET",
		"timestamp": "2026-01-02T03:04:05Z",
		"event_source": {"kind": "system"},
		"urgency": "LOW",
		"some_future_field": {"nested": true}
	}`)

	e, err := EventFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "e-1", e.ID)
	require.NoError(t, e.Validate())
}

func TestEventValidate(t *testing.T) {
	e := NewEvent(EventTicketCreated, SystemSource(), UrgencyLow)
	require.NoError(t, e.Validate())

	bad := e.Clone()
	bad.ID = ""
	assert.Error(t, bad.Validate())

	bad = e.Clone()
	bad.Type = "NOT_A_TYPE"
	assert.Error(t, bad.Validate())

	bad = e.Clone()
	bad.Urgency = "SHRUG"
	assert.Error(t, bad.Validate())

	bad = e.Clone()
	bad.Source = EventSource{Kind: SourceAgent} // missing ID
	assert.Error(t, bad.Validate())

	bad = e.Clone()
	bad.Timestamp = time.Time{}
	assert.Error(t, bad.Validate())
}

func TestEventClone(t *testing.T) {
	e := NewEvent(EventKnowledgeStored, AgentSource("eng"), UrgencyLow)
	e.SetPayload(KeyKnowledgeID, "k-1")

	clone := e.Clone()
	clone.SetPayload(KeyKnowledgeID, "k-2")

	original, _ := e.PayloadString(KeyKnowledgeID)
	assert.Equal(t, "k-1", original)
}

func TestSourceReferences(t *testing.T) {
	assert.True(t, AgentSource("eng").References("eng"))
	assert.False(t, AgentSource("eng").References("pm"))
	assert.True(t, HumanSource("alice").References("alice"))
	assert.False(t, SystemSource().References(""))
	assert.True(t, HumanSource("alice").IsHuman())
	assert.False(t, AgentSource("eng").IsHuman())
}

func TestNewIDDeterministicWithSeed(t *testing.T) {
	a := NewID("ticket", "t-1")
	b := NewID("ticket", "t-1")
	c := NewID("ticket", "t-2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	r1 := NewID()
	r2 := NewID()
	assert.NotEqual(t, r1, r2)
}

func TestParseUrgency(t *testing.T) {
	u, err := ParseUrgency("high")
	require.NoError(t, err)
	assert.Equal(t, UrgencyHigh, u)

	_, err = ParseUrgency("whenever")
	assert.Error(t, err)
}
