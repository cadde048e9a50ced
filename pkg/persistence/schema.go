package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(_ *sql.DB, version int) error {
	// Version 1 is the baseline schema; future versions add cases here.
	return fmt.Errorf("unknown migration version: %d", version)
}

// createSchema creates all required tables and indices.
// All timestamps are milliseconds since epoch (INTEGER).
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// Tickets
		`CREATE TABLE IF NOT EXISTS ticket (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			ticket_type TEXT NOT NULL CHECK (ticket_type IN ('TASK','FEATURE','BUG','CHORE','EPIC')),
			priority TEXT NOT NULL CHECK (priority IN ('LOW','MEDIUM','HIGH','CRITICAL')),
			status TEXT NOT NULL CHECK (status IN ('BACKLOG','READY','IN_PROGRESS','BLOCKED','IN_REVIEW','DONE','CANCELLED')),
			assigned_agent_id TEXT,
			created_by_agent_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			due_date INTEGER,
			thread_id TEXT
		)`,

		// Ticket/meeting associations
		`CREATE TABLE IF NOT EXISTS ticket_meeting (
			ticket_id TEXT NOT NULL REFERENCES ticket(id) ON DELETE CASCADE,
			meeting_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (ticket_id, meeting_id)
		)`,

		// Episodic memory entries
		`CREATE TABLE IF NOT EXISTS knowledge_entry (
			id TEXT PRIMARY KEY,
			agent_id TEXT,
			knowledge_type TEXT NOT NULL CHECK (knowledge_type IN ('FROM_IDEA','FROM_OUTCOME','FROM_PERCEPTION','FROM_PLAN','FROM_TASK')),
			approach TEXT NOT NULL,
			learnings TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			task_type TEXT,
			complexity_level INTEGER,
			source_id TEXT NOT NULL,
			idea_id TEXT,
			outcome_id TEXT,
			perception_id TEXT,
			plan_id TEXT,
			task_id TEXT
		)`,

		// Knowledge tags (n:n)
		`CREATE TABLE IF NOT EXISTS knowledge_tag (
			knowledge_id TEXT NOT NULL REFERENCES knowledge_entry(id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			PRIMARY KEY (knowledge_id, tag)
		)`,

		// Durable event log for replay
		`CREATE TABLE IF NOT EXISTS event_log (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			event_class_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			urgency TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			source_id TEXT,
			payload BLOB
		)`,

		// Message threads
		`CREATE TABLE IF NOT EXISTS message_thread (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('OPEN','WAITING_FOR_HUMAN','CLOSED')),
			ticket_id TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS message (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES message_thread(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS thread_participant (
			thread_id TEXT NOT NULL REFERENCES message_thread(id) ON DELETE CASCADE,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (thread_id, agent_id)
		)`,

		// Agent loop checkpoints for restart visibility
		`CREATE TABLE IF NOT EXISTS agent_state (
			agent_id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			ticket_id TEXT,
			state_data TEXT,
			updated_at INTEGER NOT NULL
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_ticket_status ON ticket(status)",
		"CREATE INDEX IF NOT EXISTS idx_ticket_assigned ON ticket(assigned_agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_ticket_due ON ticket(due_date)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge_entry(knowledge_type)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_task_type ON knowledge_entry(task_type)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_timestamp ON knowledge_entry(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_tag ON knowledge_tag(tag)",
		"CREATE INDEX IF NOT EXISTS idx_event_log_timestamp ON event_log(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_event_log_type ON event_log(event_type)",
		"CREATE INDEX IF NOT EXISTS idx_event_log_class ON event_log(event_class_type)",
		"CREATE INDEX IF NOT EXISTS idx_message_thread ON message(thread_id)",
		"CREATE INDEX IF NOT EXISTS idx_thread_ticket ON message_thread(ticket_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
