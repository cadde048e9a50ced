package knowledge

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ampere/pkg/logx"
	"ampere/pkg/persistence"
	"ampere/pkg/proto"
)

// Sentinel errors for errors.Is checks across the public boundary.
var (
	// ErrNotFound indicates the entry ID does not exist.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrValidation indicates bad inputs at the boundary.
	ErrValidation = errors.New("validation error")

	// ErrDatabase indicates a store failure.
	ErrDatabase = errors.New("database error")
)

// StoreOptions carries the optional metadata recorded with an entry.
type StoreOptions struct {
	AgentID         *string
	Tags            []string
	TaskType        *string
	ComplexityLevel *int
}

// Filter is the AND-combined search shape for SearchByContext. Nil fields do
// not filter; Tags use OR within the set.
type Filter struct {
	Type            *Type
	TaskType        *string
	Tags            []string
	ComplexityLevel *int
	From            *time.Time
	To              *time.Time
}

// Repository is append-only episodic memory backed by the store. Re-storing
// the same knowledge produces a new entry; there is no update or delete in
// normal operation. Reads run in parallel; writes serialize on the store.
type Repository struct {
	db     *sql.DB
	clock  proto.Clock
	logger *logx.Logger
}

// NewRepository creates a knowledge repository over an initialized database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:     db,
		clock:  proto.SystemClock,
		logger: logx.NewLogger("knowledge-repo"),
	}
}

// SetClock overrides the time source (tests).
func (r *Repository) SetClock(clock proto.Clock) {
	r.clock = clock
}

const entryColumns = `id, agent_id, knowledge_type, approach, learnings, timestamp,
	task_type, complexity_level, source_id`

const entryColumnsQualified = `e.id, e.agent_id, e.knowledge_type, e.approach, e.learnings, e.timestamp,
	e.task_type, e.complexity_level, e.source_id`

// sourceColumn maps a knowledge type to the dedicated owner column. Exactly
// one of these columns is non-null per row and it equals source_id.
func sourceColumn(t Type) string {
	switch t {
	case TypeFromIdea:
		return "idea_id"
	case TypeFromOutcome:
		return "outcome_id"
	case TypeFromPerception:
		return "perception_id"
	case TypeFromPlan:
		return "plan_id"
	case TypeFromTask:
		return "task_id"
	default:
		return ""
	}
}

// StoreKnowledge writes an entry plus its tag rows and returns the persisted
// entry. A zero timestamp is filled from the clock.
func (r *Repository) StoreKnowledge(k Knowledge, opts StoreOptions) (*Entry, error) {
	if _, ok := ValidateType(string(k.Type)); !ok {
		return nil, fmt.Errorf("%w: unknown knowledge type: %s", ErrValidation, k.Type)
	}
	if strings.TrimSpace(k.SourceID) == "" {
		return nil, fmt.Errorf("%w: knowledge source ID must not be blank", ErrValidation)
	}

	timestamp := k.Timestamp
	if timestamp.IsZero() {
		timestamp = r.clock()
	}

	entry := &Entry{
		ID:              NewEntryID(),
		AgentID:         opts.AgentID,
		Type:            k.Type,
		Approach:        k.Approach,
		Learnings:       k.Learnings,
		Timestamp:       timestamp,
		TaskType:        opts.TaskType,
		ComplexityLevel: opts.ComplexityLevel,
		SourceID:        k.SourceID,
		Tags:            normalizeTags(opts.Tags),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, dbError(err)
	}
	defer func() { _ = tx.Rollback() }()

	//nolint:gosec // Column name comes from the closed sourceColumn table
	insert := fmt.Sprintf(`
		INSERT INTO knowledge_entry (%s, %s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, entryColumns, sourceColumn(k.Type))
	_, err = tx.Exec(insert,
		entry.ID, entry.AgentID, string(entry.Type), entry.Approach, entry.Learnings,
		persistence.ToMillis(entry.Timestamp), entry.TaskType, entry.ComplexityLevel,
		entry.SourceID, entry.SourceID)
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to insert knowledge entry: %w", err))
	}

	for _, tag := range entry.Tags {
		_, err = tx.Exec(`INSERT OR IGNORE INTO knowledge_tag (knowledge_id, tag) VALUES (?, ?)`,
			entry.ID, tag)
		if err != nil {
			return nil, dbError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, dbError(err)
	}

	r.logger.Debug("Stored knowledge %s (%s, %d tags)", entry.ID, entry.Type, len(entry.Tags))
	return entry, nil
}

// GetKnowledgeByID loads one entry with its tags.
func (r *Repository) GetKnowledgeByID(id string) (*Entry, error) {
	row := r.db.QueryRow(`SELECT `+entryColumns+` FROM knowledge_entry WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, dbError(err)
	}

	tags, err := r.GetTagsForKnowledge(id)
	if err != nil {
		return nil, err
	}
	entry.Tags = tags
	return entry, nil
}

// FindKnowledgeByType returns entries of the given type, newest first.
func (r *Repository) FindKnowledgeByType(t Type, limit int) ([]*Entry, error) {
	return r.query(`SELECT `+entryColumns+` FROM knowledge_entry
		WHERE knowledge_type = ? ORDER BY timestamp DESC, id`+limitClause(limit),
		string(t))
}

// FindKnowledgeByTaskType returns entries recorded for the task type.
func (r *Repository) FindKnowledgeByTaskType(taskType string, limit int) ([]*Entry, error) {
	return r.query(`SELECT `+entryColumns+` FROM knowledge_entry
		WHERE task_type = ? ORDER BY timestamp DESC, id`+limitClause(limit),
		taskType)
}

// FindKnowledgeByTag returns entries carrying the tag.
func (r *Repository) FindKnowledgeByTag(tag string, limit int) ([]*Entry, error) {
	return r.FindKnowledgeByTags([]string{tag}, limit)
}

// FindKnowledgeByTags returns entries carrying any of the tags (OR match).
func (r *Repository) FindKnowledgeByTags(tags []string, limit int) ([]*Entry, error) {
	tags = normalizeTags(tags)
	if len(tags) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tags))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(tags))
	for i, tag := range tags {
		args[i] = tag
	}

	//nolint:gosec // Placeholders only; values bound as args
	query := `SELECT DISTINCT ` + entryColumnsQualified + `
		FROM knowledge_entry e
		JOIN knowledge_tag kt ON kt.knowledge_id = e.id
		WHERE kt.tag IN (` + placeholders + `)
		ORDER BY e.timestamp DESC, e.id` + limitClause(limit)
	return r.query(query, args...)
}

// FindKnowledgeByTimeRange returns entries with from <= timestamp <= to,
// newest first.
func (r *Repository) FindKnowledgeByTimeRange(from, to time.Time, limit int) ([]*Entry, error) {
	return r.query(`SELECT `+entryColumns+` FROM knowledge_entry
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id`+limitClause(limit),
		persistence.ToMillis(from), persistence.ToMillis(to))
}

// FindSimilarKnowledge tokenizes the query and returns entries whose
// approach or learnings contain at least one token, ranked by token coverage
// then recency.
func (r *Repository) FindSimilarKnowledge(query string, limit int) ([]*Entry, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	// Candidate rows are filtered in memory: token matching is
	// case-insensitive substring containment, which SQL LIKE per token would
	// express less directly for the coverage ranking.
	entries, err := r.query(`SELECT ` + entryColumns + ` FROM knowledge_entry
		ORDER BY timestamp DESC, id`)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		entry    *Entry
		coverage int
	}
	var matches []ranked
	for _, entry := range entries {
		haystack := strings.ToLower(entry.Approach + " " + entry.Learnings)
		coverage := 0
		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				coverage++
			}
		}
		if coverage > 0 {
			matches = append(matches, ranked{entry: entry, coverage: coverage})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].coverage != matches[j].coverage {
			return matches[i].coverage > matches[j].coverage
		}
		if !matches[i].entry.Timestamp.Equal(matches[j].entry.Timestamp) {
			return matches[i].entry.Timestamp.After(matches[j].entry.Timestamp)
		}
		return matches[i].entry.ID < matches[j].entry.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	result := make([]*Entry, len(matches))
	for i, m := range matches {
		result[i] = m.entry
	}
	return result, nil
}

// SearchKnowledgeByContext ANDs the non-nil filters; tags OR within the set.
func (r *Repository) SearchKnowledgeByContext(filter Filter, limit int) ([]*Entry, error) {
	conditions := []string{"1=1"}
	var args []any

	if filter.Type != nil {
		conditions = append(conditions, "e.knowledge_type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.TaskType != nil {
		conditions = append(conditions, "e.task_type = ?")
		args = append(args, *filter.TaskType)
	}
	if filter.ComplexityLevel != nil {
		conditions = append(conditions, "e.complexity_level = ?")
		args = append(args, *filter.ComplexityLevel)
	}
	if filter.From != nil {
		conditions = append(conditions, "e.timestamp >= ?")
		args = append(args, persistence.ToMillis(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "e.timestamp <= ?")
		args = append(args, persistence.ToMillis(*filter.To))
	}

	tags := normalizeTags(filter.Tags)
	if len(tags) > 0 {
		placeholders := strings.Repeat("?,", len(tags))
		placeholders = placeholders[:len(placeholders)-1]
		conditions = append(conditions,
			"e.id IN (SELECT knowledge_id FROM knowledge_tag WHERE tag IN ("+placeholders+"))")
		for _, tag := range tags {
			args = append(args, tag)
		}
	}

	//nolint:gosec // Placeholders only; values bound as args
	query := `SELECT ` + entryColumnsQualified + `
		FROM knowledge_entry e
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY e.timestamp DESC, e.id` + limitClause(limit)
	return r.query(query, args...)
}

// GetTagsForKnowledge returns the tags of an entry, sorted.
func (r *Repository) GetTagsForKnowledge(id string) ([]string, error) {
	rows, err := r.db.Query(`SELECT tag FROM knowledge_tag WHERE knowledge_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, dbError(err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, dbError(err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return tags, nil
}

func (r *Repository) query(query string, args ...any) ([]*Entry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var knowledgeType string
		var timestamp int64
		err := rows.Scan(&e.ID, &e.AgentID, &knowledgeType, &e.Approach, &e.Learnings,
			&timestamp, &e.TaskType, &e.ComplexityLevel, &e.SourceID)
		if err != nil {
			return nil, dbError(err)
		}
		e.Type = Type(knowledgeType)
		e.Timestamp = persistence.FromMillis(timestamp)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return entries, nil
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var knowledgeType string
	var timestamp int64
	err := row.Scan(&e.ID, &e.AgentID, &knowledgeType, &e.Approach, &e.Learnings,
		&timestamp, &e.TaskType, &e.ComplexityLevel, &e.SourceID)
	if err != nil {
		return nil, err
	}
	e.Type = Type(knowledgeType)
	e.Timestamp = persistence.FromMillis(timestamp)
	return &e, nil
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// tokenize splits a query into lowercase tokens, dropping single characters.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var tokens []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

func dbError(cause error) error {
	return fmt.Errorf("%w: %w", ErrDatabase, cause)
}
