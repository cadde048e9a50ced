package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/proto"
)

func TestAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	first := proto.NewEvent(proto.EventTicketCreated, proto.AgentSource("pm"), proto.UrgencyMedium)
	first.SetPayload(proto.KeyTicketID, "t-1")
	second := proto.NewEvent(proto.EventTicketAssigned, proto.AgentSource("pm"), proto.UrgencyMedium)

	require.NoError(t, writer.Append(first))
	require.NoError(t, writer.Append(second))

	events, err := ReadEvents(writer.CurrentLogFile())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, proto.EventTicketAssigned, events[1].Type)

	ticketID, ok := events[0].PayloadString(proto.KeyTicketID)
	require.True(t, ok)
	assert.Equal(t, "t-1", ticketID)
}

func TestDailyRotation(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	writer.SetClock(func() time.Time { return day1 })
	require.NoError(t, writer.Append(proto.NewEvent(proto.EventTicketCreated, proto.SystemSource(), proto.UrgencyLow)))
	firstFile := writer.CurrentLogFile()

	day2 := day1.Add(2 * time.Minute)
	writer.SetClock(func() time.Time { return day2 })
	require.NoError(t, writer.Append(proto.NewEvent(proto.EventTicketCompleted, proto.SystemSource(), proto.UrgencyLow)))
	secondFile := writer.CurrentLogFile()

	assert.NotEqual(t, firstFile, secondFile)

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestReadEventsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	path := writer.CurrentLogFile()
	require.NoError(t, writer.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Empty(t, events)
}
