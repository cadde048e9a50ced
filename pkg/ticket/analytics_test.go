package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogSummary(t *testing.T) {
	repo := newTestRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	overdueDate := now.Add(-48 * time.Hour)
	futureDate := now.Add(48 * time.Hour)

	a := newTestTicket("t-1")
	a.Priority = PriorityHigh
	a.DueDate = &overdueDate
	require.NoError(t, repo.CreateTicket(a))

	b := newTestTicket("t-2")
	b.DueDate = &futureDate
	require.NoError(t, repo.CreateTicket(b))

	c := newTestTicket("t-3")
	require.NoError(t, repo.CreateTicket(c))
	_, err := repo.UpdateStatus("t-3", StatusReady)
	require.NoError(t, err)

	summary, err := repo.GetBacklogSummary()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByStatus[StatusBacklog])
	assert.Equal(t, 1, summary.ByStatus[StatusReady])
	assert.Equal(t, 1, summary.ByPriority[PriorityHigh])
	assert.Equal(t, 2, summary.ByPriority[PriorityMedium])
	assert.Equal(t, 1, summary.Overdue)
}

func TestAgentWorkload(t *testing.T) {
	repo := newTestRepo(t)
	eng := "eng"

	for _, id := range []string{"t-1", "t-2", "t-3"} {
		require.NoError(t, repo.CreateTicket(newTestTicket(id)))
		require.NoError(t, repo.AssignTicket(id, &eng))
	}
	_, err := repo.UpdateStatus("t-1", StatusReady)
	require.NoError(t, err)
	_, err = repo.UpdateStatus("t-1", StatusInProgress)
	require.NoError(t, err)
	_, err = repo.UpdateStatus("t-2", StatusReady)
	require.NoError(t, err)
	_, err = repo.UpdateStatus("t-2", StatusInProgress)
	require.NoError(t, err)
	_, err = repo.UpdateStatus("t-2", StatusBlocked)
	require.NoError(t, err)

	other := newTestTicket("t-other")
	require.NoError(t, repo.CreateTicket(other))

	workload, err := repo.GetAgentWorkload("eng")
	require.NoError(t, err)
	assert.Equal(t, 3, workload.Total)
	assert.Equal(t, 1, workload.InProgress)
	assert.Equal(t, 1, workload.Blocked)
	assert.Equal(t, 1, workload.ByStatus[StatusBacklog])
}

func TestUpcomingDeadlines(t *testing.T) {
	repo := newTestRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	soon := now.Add(24 * time.Hour)
	later := now.Add(10 * 24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	a := newTestTicket("t-soon")
	a.DueDate = &soon
	require.NoError(t, repo.CreateTicket(a))

	b := newTestTicket("t-later")
	b.DueDate = &later
	require.NoError(t, repo.CreateTicket(b))

	c := newTestTicket("t-past")
	c.DueDate = &past
	require.NoError(t, repo.CreateTicket(c))

	d := newTestTicket("t-cancelled")
	d.DueDate = &soon
	require.NoError(t, repo.CreateTicket(d))
	_, err := repo.UpdateStatus("t-cancelled", StatusCancelled)
	require.NoError(t, err)

	tickets, err := repo.GetUpcomingDeadlines(7)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t-past", tickets[0].ID)
	assert.Equal(t, "t-soon", tickets[1].ID)
}
