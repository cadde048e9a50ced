package ticket

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ampere/pkg/logx"
	"ampere/pkg/persistence"
	"ampere/pkg/proto"
)

// Repository is a thin layer over the store for ticket rows, meeting
// associations, and analytics. Mutations return typed error values; they
// never panic across the public boundary.
type Repository struct {
	db     *sql.DB
	clock  proto.Clock
	logger *logx.Logger
}

// NewRepository creates a ticket repository over an initialized database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:     db,
		clock:  proto.SystemClock,
		logger: logx.NewLogger("ticket-repo"),
	}
}

// SetClock overrides the time source (tests).
func (r *Repository) SetClock(clock proto.Clock) {
	r.clock = clock
}

const ticketColumns = `id, title, description, ticket_type, priority, status,
	assigned_agent_id, created_by_agent_id, created_at, updated_at, due_date, thread_id`

// CreateTicket persists a new ticket. The caller supplies a fully formed
// ticket; blank titles are rejected here as the last line of defense.
func (r *Repository) CreateTicket(t *Ticket) error {
	if strings.TrimSpace(t.Title) == "" {
		return ValidationErrorf("ticket title must not be blank")
	}
	if _, ok := ValidateType(string(t.Type)); !ok {
		return ValidationErrorf("unknown ticket type: %s", t.Type)
	}
	if _, ok := ValidatePriority(string(t.Priority)); !ok {
		return ValidationErrorf("unknown ticket priority: %s", t.Priority)
	}
	if _, ok := ValidateStatus(string(t.Status)); !ok {
		return ValidationErrorf("unknown ticket status: %s", t.Status)
	}

	_, err := r.db.Exec(`
		INSERT INTO ticket (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Type), string(t.Priority), string(t.Status),
		t.AssignedAgentID, t.CreatedByAgentID,
		persistence.ToMillis(t.CreatedAt), persistence.ToMillis(t.UpdatedAt),
		persistence.ToMillisPtr(t.DueDate), t.ThreadID,
	)
	if err != nil {
		return DatabaseError(fmt.Errorf("failed to insert ticket %s: %w", t.ID, err))
	}

	r.logger.Info("Created ticket %s (%s, %s)", t.ID, t.Type, t.Priority)
	return nil
}

// GetTicket loads a ticket by ID.
func (r *Repository) GetTicket(id string) (*Ticket, error) {
	row := r.db.QueryRow(`SELECT `+ticketColumns+` FROM ticket WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, DatabaseError(err)
	}
	return t, nil
}

// GetAllTickets returns every ticket, newest first.
func (r *Repository) GetAllTickets() ([]*Ticket, error) {
	rows, err := r.db.Query(`SELECT ` + ticketColumns + ` FROM ticket ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()
	return collectTickets(rows)
}

// DeleteTicket removes a ticket and its meeting associations.
func (r *Repository) DeleteTicket(id string) error {
	result, err := r.db.Exec(`DELETE FROM ticket WHERE id = ?`, id)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// UpdateStatus moves a ticket along the transition graph. It reads the
// current status, verifies the edge, and writes the new status with a fresh
// updated_at — all inside one transaction so concurrent mutations on the
// same ticket serialize. Returns the previous status.
func (r *Repository) UpdateStatus(id string, newStatus Status) (Status, error) {
	if _, ok := ValidateStatus(string(newStatus)); !ok {
		return "", ValidationErrorf("unknown ticket status: %s", newStatus)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentRaw string
	err = tx.QueryRow(`SELECT status FROM ticket WHERE id = ?`, id).Scan(&currentRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &NotFoundError{ID: id}
	}
	if err != nil {
		return "", DatabaseError(err)
	}

	current := Status(currentRaw)
	if !CanTransition(current, newStatus) {
		return "", NewTransitionError(current, newStatus)
	}

	_, err = tx.Exec(`UPDATE ticket SET status = ?, updated_at = ? WHERE id = ?`,
		string(newStatus), persistence.ToMillis(r.clock()), id)
	if err != nil {
		return "", DatabaseError(err)
	}

	if err := tx.Commit(); err != nil {
		return "", DatabaseError(err)
	}

	r.logger.Info("Ticket %s status: %s -> %s", id, current, newStatus)
	return current, nil
}

// AssignTicket writes assigned_agent_id. nil unassigns.
func (r *Repository) AssignTicket(id string, agentID *string) error {
	result, err := r.db.Exec(`UPDATE ticket SET assigned_agent_id = ?, updated_at = ? WHERE id = ?`,
		agentID, persistence.ToMillis(r.clock()), id)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// SetThreadID records the message thread associated with the ticket.
func (r *Repository) SetThreadID(id, threadID string) error {
	result, err := r.db.Exec(`UPDATE ticket SET thread_id = ?, updated_at = ? WHERE id = ?`,
		threadID, persistence.ToMillis(r.clock()), id)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// UpdateFields is a partial update: nil fields are preserved.
type UpdateFields struct {
	Title       *string
	Description *string
	Priority    *Priority
	DueDate     *time.Time
	ClearDue    bool
}

// UpdateTicketDetails applies a partial update with a fresh updated_at.
func (r *Repository) UpdateTicketDetails(id string, fields UpdateFields) error {
	setParts := []string{"updated_at = ?"}
	args := []any{persistence.ToMillis(r.clock())}

	if fields.Title != nil {
		if strings.TrimSpace(*fields.Title) == "" {
			return ValidationErrorf("ticket title must not be blank")
		}
		setParts = append(setParts, "title = ?")
		args = append(args, *fields.Title)
	}
	if fields.Description != nil {
		setParts = append(setParts, "description = ?")
		args = append(args, *fields.Description)
	}
	if fields.Priority != nil {
		if _, ok := ValidatePriority(string(*fields.Priority)); !ok {
			return ValidationErrorf("unknown ticket priority: %s", *fields.Priority)
		}
		setParts = append(setParts, "priority = ?")
		args = append(args, string(*fields.Priority))
	}
	if fields.DueDate != nil {
		setParts = append(setParts, "due_date = ?")
		args = append(args, persistence.ToMillis(*fields.DueDate))
	} else if fields.ClearDue {
		setParts = append(setParts, "due_date = NULL")
	}

	args = append(args, id)
	//nolint:gosec // Safe string concatenation: setParts holds fixed column fragments
	query := `UPDATE ticket SET ` + strings.Join(setParts, ", ") + ` WHERE id = ?`

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// AddMeeting associates a meeting with a ticket. Duplicate associations are
// ignored.
func (r *Repository) AddMeeting(ticketID, meetingID string) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO ticket_meeting (ticket_id, meeting_id, created_at)
		VALUES (?, ?, ?)`,
		ticketID, meetingID, persistence.ToMillis(r.clock()))
	if err != nil {
		return DatabaseError(err)
	}
	return nil
}

// ListMeetings returns the meeting associations for a ticket, oldest first.
func (r *Repository) ListMeetings(ticketID string) ([]*Meeting, error) {
	rows, err := r.db.Query(`
		SELECT ticket_id, meeting_id, created_at FROM ticket_meeting
		WHERE ticket_id = ? ORDER BY created_at, meeting_id`, ticketID)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	var meetings []*Meeting
	for rows.Next() {
		var m Meeting
		var createdAt int64
		if err := rows.Scan(&m.TicketID, &m.MeetingID, &createdAt); err != nil {
			return nil, DatabaseError(err)
		}
		m.CreatedAt = persistence.FromMillis(createdAt)
		meetings = append(meetings, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}
	return meetings, nil
}

func scanTicket(row *sql.Row) (*Ticket, error) {
	var t Ticket
	var ticketType, priority, status string
	var createdAt, updatedAt int64
	var dueDate *int64

	err := row.Scan(&t.ID, &t.Title, &t.Description, &ticketType, &priority, &status,
		&t.AssignedAgentID, &t.CreatedByAgentID, &createdAt, &updatedAt, &dueDate, &t.ThreadID)
	if err != nil {
		return nil, err
	}

	t.Type = Type(ticketType)
	t.Priority = Priority(priority)
	t.Status = Status(status)
	t.CreatedAt = persistence.FromMillis(createdAt)
	t.UpdatedAt = persistence.FromMillis(updatedAt)
	t.DueDate = persistence.FromMillisPtr(dueDate)
	return &t, nil
}

func collectTickets(rows *sql.Rows) ([]*Ticket, error) {
	var tickets []*Ticket
	for rows.Next() {
		var t Ticket
		var ticketType, priority, status string
		var createdAt, updatedAt int64
		var dueDate *int64

		err := rows.Scan(&t.ID, &t.Title, &t.Description, &ticketType, &priority, &status,
			&t.AssignedAgentID, &t.CreatedByAgentID, &createdAt, &updatedAt, &dueDate, &t.ThreadID)
		if err != nil {
			return nil, DatabaseError(err)
		}
		t.Type = Type(ticketType)
		t.Priority = Priority(priority)
		t.Status = Status(status)
		t.CreatedAt = persistence.FromMillis(createdAt)
		t.UpdatedAt = persistence.FromMillis(updatedAt)
		t.DueDate = persistence.FromMillisPtr(dueDate)
		tickets = append(tickets, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}
	return tickets, nil
}
