package agent

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ampere/pkg/persistence"
	"ampere/pkg/proto"
)

// Checkpoint is the persisted view of where an agent's loop is: which phase
// it entered last, on which ticket, with a snapshot of its working memory.
type Checkpoint struct {
	AgentID   string         `json:"agent_id"`
	Phase     string         `json:"phase"`
	TicketID  *string        `json:"ticket_id,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StateStore persists loop checkpoints so a restarted process can see where
// each agent stopped. One row per agent; the latest write wins.
type StateStore struct {
	db    *sql.DB
	clock proto.Clock
}

// NewStateStore creates a checkpoint store over the shared database.
func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db, clock: proto.SystemClock}
}

// SetClock overrides the time source (tests).
func (s *StateStore) SetClock(clock proto.Clock) {
	s.clock = clock
}

// SaveCheckpoint upserts the agent's current phase and state snapshot.
func (s *StateStore) SaveCheckpoint(agentID, phase string, ticketID *string, state map[string]any) error {
	var stateData *string
	if len(state) > 0 {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal state for agent %s: %w", agentID, err)
		}
		text := string(data)
		stateData = &text
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO agent_state (agent_id, phase, ticket_id, state_data, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		agentID, phase, ticketID, stateData, persistence.ToMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for agent %s: %w", agentID, err)
	}
	return nil
}

// GetCheckpoint returns the last checkpoint for the agent, or nil if the
// agent never checkpointed.
func (s *StateStore) GetCheckpoint(agentID string) (*Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT agent_id, phase, ticket_id, state_data, updated_at FROM agent_state WHERE agent_id = ?`,
		agentID)

	var cp Checkpoint
	var stateData *string
	var updatedAt int64
	err := row.Scan(&cp.AgentID, &cp.Phase, &cp.TicketID, &stateData, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for agent %s: %w", agentID, err)
	}

	cp.UpdatedAt = persistence.FromMillis(updatedAt)
	if stateData != nil {
		if err := json.Unmarshal([]byte(*stateData), &cp.State); err != nil {
			return nil, fmt.Errorf("failed to decode state for agent %s: %w", agentID, err)
		}
	}
	return &cp, nil
}
