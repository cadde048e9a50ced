package thread

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ampere/pkg/logx"
	"ampere/pkg/persistence"
	"ampere/pkg/proto"
)

// EventPublisher is the slice of the bus the thread API needs.
type EventPublisher interface {
	Publish(event *proto.Event) error
}

// API manages threads, messages, and the human-escalation state machine.
type API struct {
	db        *sql.DB
	clock     proto.Clock
	logger    *logx.Logger
	publisher EventPublisher
}

// NewAPI creates a thread API over an initialized database. The publisher may
// be nil, in which case escalation events are not emitted.
func NewAPI(db *sql.DB, publisher EventPublisher) *API {
	return &API{
		db:        db,
		clock:     proto.SystemClock,
		logger:    logx.NewLogger("thread-api"),
		publisher: publisher,
	}
}

// SetClock overrides the time source (tests).
func (a *API) SetClock(clock proto.Clock) {
	a.clock = clock
}

// CreateThread creates an open thread with the given participants and an
// initial message authored by the first participant.
func (a *API) CreateThread(participants []string, channel, initialContent string) (*Thread, error) {
	if len(participants) == 0 {
		return nil, ValidationErrorf("thread requires at least one participant")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, ValidationErrorf("thread channel must not be blank")
	}

	now := a.clock()
	t := &Thread{
		ID:           NewThreadID(),
		Channel:      channel,
		Status:       StatusOpen,
		Participants: append([]string(nil), participants...),
		CreatedAt:    now,
	}

	tx, err := a.db.Begin()
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO message_thread (id, channel, status, ticket_id, created_at)
		VALUES (?, ?, ?, NULL, ?)`,
		t.ID, t.Channel, string(t.Status), persistence.ToMillis(now))
	if err != nil {
		return nil, DatabaseError(fmt.Errorf("failed to insert thread: %w", err))
	}

	for _, agentID := range t.Participants {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO thread_participant (thread_id, agent_id) VALUES (?, ?)`,
			t.ID, agentID)
		if err != nil {
			return nil, DatabaseError(err)
		}
	}

	if strings.TrimSpace(initialContent) != "" {
		_, err = tx.Exec(`
			INSERT INTO message (id, thread_id, author_id, content, timestamp)
			VALUES (?, ?, ?, ?, ?)`,
			NewMessageID(), t.ID, participants[0], initialContent, persistence.ToMillis(now))
		if err != nil {
			return nil, DatabaseError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, DatabaseError(err)
	}

	a.logger.Info("Created thread %s on %s (%d participants)", t.ID, t.Channel, len(t.Participants))
	return t, nil
}

// SetTicketID links a thread to the ticket it belongs to.
func (a *API) SetTicketID(threadID, ticketID string) error {
	result, err := a.db.Exec(`UPDATE message_thread SET ticket_id = ? WHERE id = ?`, ticketID, threadID)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: threadID}
	}
	return nil
}

// PostMessage appends a message to the thread. Posting on a thread that is
// waiting for a human is rejected unless the author is a human; closed
// threads reject everything.
func (a *API) PostMessage(threadID string, author proto.EventSource, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ValidationErrorf("message content must not be blank")
	}
	if author.Kind != proto.SourceSystem && author.ID == "" {
		return nil, ValidationErrorf("message author must be identified")
	}

	tx, err := a.db.Begin()
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var statusRaw string
	err = tx.QueryRow(`SELECT status FROM message_thread WHERE id = ?`, threadID).Scan(&statusRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: threadID}
	}
	if err != nil {
		return nil, DatabaseError(err)
	}

	switch Status(statusRaw) {
	case StatusClosed:
		return nil, fmt.Errorf("%w: %s", ErrClosed, threadID)
	case StatusWaitingForHuman:
		if !author.IsHuman() {
			return nil, fmt.Errorf("%w: %s", ErrWaitingForHuman, threadID)
		}
	case StatusOpen:
	}

	msg := &Message{
		ID:        NewMessageID(),
		ThreadID:  threadID,
		AuthorID:  authorID(author),
		Content:   content,
		Timestamp: a.clock(),
	}

	_, err = tx.Exec(`
		INSERT INTO message (id, thread_id, author_id, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.AuthorID, msg.Content, persistence.ToMillis(msg.Timestamp))
	if err != nil {
		return nil, DatabaseError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, DatabaseError(err)
	}
	return msg, nil
}

// EscalateToHuman parks the thread until a human responds: status moves to
// WAITING_FOR_HUMAN, a structured escalation message is posted, and an
// ESCALATION_REQUESTED event is published for the notifier side-channel.
func (a *API) EscalateToHuman(threadID, reason string, context map[string]string) error {
	if strings.TrimSpace(reason) == "" {
		return ValidationErrorf("escalation reason must not be blank")
	}

	tx, err := a.db.Begin()
	if err != nil {
		return DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var statusRaw string
	err = tx.QueryRow(`SELECT status FROM message_thread WHERE id = ?`, threadID).Scan(&statusRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{ID: threadID}
	}
	if err != nil {
		return DatabaseError(err)
	}
	if Status(statusRaw) == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, threadID)
	}

	now := a.clock()
	_, err = tx.Exec(`UPDATE message_thread SET status = ? WHERE id = ?`,
		string(StatusWaitingForHuman), threadID)
	if err != nil {
		return DatabaseError(err)
	}

	_, err = tx.Exec(`
		INSERT INTO message (id, thread_id, author_id, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		NewMessageID(), threadID, "system", formatEscalation(reason, context), persistence.ToMillis(now))
	if err != nil {
		return DatabaseError(err)
	}

	if err := tx.Commit(); err != nil {
		return DatabaseError(err)
	}

	a.logger.Warn("Thread %s escalated to human: %s", threadID, reason)

	if a.publisher != nil {
		event := proto.NewEvent(proto.EventEscalationRequested, proto.SystemSource(), proto.UrgencyHigh)
		event.SetPayload(proto.KeyThreadID, threadID)
		event.SetPayload(proto.KeyReason, reason)
		event.SetPayload(proto.KeyContext, context)
		if err := a.publisher.Publish(event); err != nil {
			return fmt.Errorf("failed to publish escalation event: %w", err)
		}
	}
	return nil
}

// ReopenThread resets the thread to OPEN. Reopening an already-open thread
// is a no-op with no event emission.
func (a *API) ReopenThread(threadID string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return DatabaseError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var statusRaw string
	err = tx.QueryRow(`SELECT status FROM message_thread WHERE id = ?`, threadID).Scan(&statusRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{ID: threadID}
	}
	if err != nil {
		return DatabaseError(err)
	}
	if Status(statusRaw) == StatusOpen {
		return nil
	}

	_, err = tx.Exec(`UPDATE message_thread SET status = ? WHERE id = ?`, string(StatusOpen), threadID)
	if err != nil {
		return DatabaseError(err)
	}
	if err := tx.Commit(); err != nil {
		return DatabaseError(err)
	}

	a.logger.Info("Thread %s reopened", threadID)
	return nil
}

// CloseThread marks the thread CLOSED. Closed threads reject all messages.
func (a *API) CloseThread(threadID string) error {
	result, err := a.db.Exec(`UPDATE message_thread SET status = ? WHERE id = ?`,
		string(StatusClosed), threadID)
	if err != nil {
		return DatabaseError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DatabaseError(err)
	}
	if affected == 0 {
		return &NotFoundError{ID: threadID}
	}
	return nil
}

// GetThread loads a thread with its participants.
func (a *API) GetThread(threadID string) (*Thread, error) {
	t := &Thread{ID: threadID}
	var statusRaw string
	var createdAt int64

	err := a.db.QueryRow(`
		SELECT channel, status, ticket_id, created_at FROM message_thread WHERE id = ?`,
		threadID).Scan(&t.Channel, &statusRaw, &t.TicketID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: threadID}
	}
	if err != nil {
		return nil, DatabaseError(err)
	}
	t.Status = Status(statusRaw)
	t.CreatedAt = persistence.FromMillis(createdAt)

	participants, err := a.getParticipants(threadID)
	if err != nil {
		return nil, err
	}
	t.Participants = participants
	return t, nil
}

// GetThreadByTicket loads the thread linked to a ticket.
func (a *API) GetThreadByTicket(ticketID string) (*Thread, error) {
	var threadID string
	err := a.db.QueryRow(`SELECT id FROM message_thread WHERE ticket_id = ?`, ticketID).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: ticketID}
	}
	if err != nil {
		return nil, DatabaseError(err)
	}
	return a.GetThread(threadID)
}

// GetAllThreads returns every thread, newest first, without participants.
func (a *API) GetAllThreads() ([]*Thread, error) {
	rows, err := a.db.Query(`
		SELECT id, channel, status, ticket_id, created_at FROM message_thread
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	var threads []*Thread
	for rows.Next() {
		var t Thread
		var statusRaw string
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Channel, &statusRaw, &t.TicketID, &createdAt); err != nil {
			return nil, DatabaseError(err)
		}
		t.Status = Status(statusRaw)
		t.CreatedAt = persistence.FromMillis(createdAt)
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}
	return threads, nil
}

// GetMessages returns the thread's messages in timestamp order.
func (a *API) GetMessages(threadID string) ([]*Message, error) {
	rows, err := a.db.Query(`
		SELECT id, thread_id, author_id, content, timestamp FROM message
		WHERE thread_id = ? ORDER BY timestamp, id`, threadID)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		var m Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.AuthorID, &m.Content, &ts); err != nil {
			return nil, DatabaseError(err)
		}
		m.Timestamp = persistence.FromMillis(ts)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}
	return messages, nil
}

// AddParticipant adds an agent to the thread. Duplicates are ignored.
func (a *API) AddParticipant(threadID, agentID string) error {
	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO thread_participant (thread_id, agent_id) VALUES (?, ?)`,
		threadID, agentID)
	if err != nil {
		return DatabaseError(err)
	}
	return nil
}

func (a *API) getParticipants(threadID string) ([]string, error) {
	rows, err := a.db.Query(`
		SELECT agent_id FROM thread_participant WHERE thread_id = ? ORDER BY agent_id`, threadID)
	if err != nil {
		return nil, DatabaseError(err)
	}
	defer func() { _ = rows.Close() }()

	var participants []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, DatabaseError(err)
		}
		participants = append(participants, agentID)
	}
	if err := rows.Err(); err != nil {
		return nil, DatabaseError(err)
	}
	return participants, nil
}

func authorID(source proto.EventSource) string {
	if source.Kind == proto.SourceSystem {
		return "system"
	}
	return source.ID
}

// formatEscalation renders the structured escalation message posted on the
// thread. Context keys are sorted so the output is deterministic.
func formatEscalation(reason string, context map[string]string) string {
	var b strings.Builder
	b.WriteString("ESCALATION: ")
	b.WriteString(reason)
	if len(context) > 0 {
		b.WriteString("\nContext:")
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  %s: %s", k, context[k])
		}
	}
	return b.String()
}
