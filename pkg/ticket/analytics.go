package ticket

import (
	"time"

	"ampere/pkg/persistence"
)

// BacklogSummary aggregates the current ticket population.
type BacklogSummary struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
	Overdue    int              `json:"overdue"`
}

// AgentWorkload aggregates the tickets assigned to one agent.
type AgentWorkload struct {
	AgentID    string         `json:"agent_id"`
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"by_status"`
	InProgress int            `json:"in_progress"`
	Blocked    int            `json:"blocked"`
}

// GetBacklogSummary returns counts by status and priority plus the overdue
// total. Overdue means due_date < now and status != Done.
func (r *Repository) GetBacklogSummary() (*BacklogSummary, error) {
	summary := &BacklogSummary{
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
	}

	rows, err := r.db.Query(`SELECT status, priority, COUNT(*) FROM ticket GROUP BY status, priority`)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status, priority string
		var count int
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return nil, DatabaseError(err)
		}
		summary.Total += count
		summary.ByStatus[Status(status)] += count
		summary.ByPriority[Priority(priority)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}

	now := persistence.ToMillis(r.clock())
	err = r.db.QueryRow(`
		SELECT COUNT(*) FROM ticket
		WHERE due_date IS NOT NULL AND due_date < ? AND status != ?`,
		now, string(StatusDone)).Scan(&summary.Overdue)
	if err != nil {
		return nil, DatabaseError(err)
	}

	return summary, nil
}

// GetAgentWorkload returns the ticket counts for one agent.
func (r *Repository) GetAgentWorkload(agentID string) (*AgentWorkload, error) {
	workload := &AgentWorkload{
		AgentID:  agentID,
		ByStatus: make(map[Status]int),
	}

	rows, err := r.db.Query(`
		SELECT status, COUNT(*) FROM ticket
		WHERE assigned_agent_id = ? GROUP BY status`, agentID)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, DatabaseError(err)
		}
		workload.Total += count
		workload.ByStatus[Status(status)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}

	workload.InProgress = workload.ByStatus[StatusInProgress]
	workload.Blocked = workload.ByStatus[StatusBlocked]
	return workload, nil
}

// GetUpcomingDeadlines returns non-terminal tickets due within the next N
// days (overdue tickets included), soonest first.
func (r *Repository) GetUpcomingDeadlines(days int) ([]*Ticket, error) {
	now := r.clock()
	horizon := now.Add(time.Duration(days) * 24 * time.Hour)

	rows, err := r.db.Query(`
		SELECT `+ticketColumns+` FROM ticket
		WHERE due_date IS NOT NULL AND due_date <= ?
		  AND status NOT IN (?, ?)
		ORDER BY due_date, id`,
		persistence.ToMillis(horizon), string(StatusDone), string(StatusCancelled))
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()
	return collectTickets(rows)
}
