package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/persistence"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db)
}

func ts(offset int) time.Time {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offset) * time.Minute)
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	agent := "eng"
	taskType := "migration"
	complexity := 3

	stored, err := repo.StoreKnowledge(
		FromOutcome("o-1", "DB migration", "batch in chunks of 1000", ts(0)),
		StoreOptions{
			AgentID:         &agent,
			Tags:            []string{"database", "migration"},
			TaskType:        &taskType,
			ComplexityLevel: &complexity,
		})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	loaded, err := repo.GetKnowledgeByID(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeFromOutcome, loaded.Type)
	assert.Equal(t, "DB migration", loaded.Approach)
	assert.Equal(t, "batch in chunks of 1000", loaded.Learnings)
	assert.Equal(t, ts(0), loaded.Timestamp)
	assert.Equal(t, "o-1", loaded.SourceID)
	require.NotNil(t, loaded.AgentID)
	assert.Equal(t, "eng", *loaded.AgentID)
	require.NotNil(t, loaded.TaskType)
	assert.Equal(t, "migration", *loaded.TaskType)
	require.NotNil(t, loaded.ComplexityLevel)
	assert.Equal(t, 3, *loaded.ComplexityLevel)
	assert.Equal(t, []string{"database", "migration"}, loaded.Tags)
}

func TestStoreRejectsBlankSource(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.StoreKnowledge(FromTask("", "a", "b", ts(0)), StoreOptions{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetKnowledgeNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetKnowledgeByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByTypeAndTaskType(t *testing.T) {
	repo := newTestRepo(t)
	taskType := "refactor"

	_, err := repo.StoreKnowledge(FromOutcome("o-1", "a", "b", ts(0)),
		StoreOptions{TaskType: &taskType})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(FromPlan("p-1", "c", "d", ts(1)), StoreOptions{})
	require.NoError(t, err)

	outcomes, err := repo.FindKnowledgeByType(TypeFromOutcome, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "o-1", outcomes[0].SourceID)

	refactors, err := repo.FindKnowledgeByTaskType("refactor", 0)
	require.NoError(t, err)
	require.Len(t, refactors, 1)
	assert.Equal(t, "o-1", refactors[0].SourceID)
}

func TestFindByTagsORMatching(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.StoreKnowledge(FromOutcome("o-1", "DB migration", "x", ts(0)),
		StoreOptions{Tags: []string{"database", "migration"}})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(FromOutcome("o-2", "API design", "y", ts(1)),
		StoreOptions{Tags: []string{"api"}})
	require.NoError(t, err)

	both, err := repo.FindKnowledgeByTags([]string{"migration", "api"}, 0)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	none, err := repo.FindKnowledgeByTag("security", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindByTimeRangeInclusiveDescending(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 4; i++ {
		_, err := repo.StoreKnowledge(FromTask("t-"+string(rune('a'+i)), "a", "b", ts(i)), StoreOptions{})
		require.NoError(t, err)
	}

	// Both ends inclusive.
	entries, err := repo.FindKnowledgeByTimeRange(ts(1), ts(2), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ts(2), entries[0].Timestamp)
	assert.Equal(t, ts(1), entries[1].Timestamp)
}

func TestFindSimilarRanksByCoverage(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.StoreKnowledge(
		FromOutcome("o-1", "database schema migration", "migrate with downtime window", ts(0)),
		StoreOptions{})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(
		FromOutcome("o-2", "database indexing", "covering index sped up reads", ts(1)),
		StoreOptions{})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(
		FromOutcome("o-3", "frontend styling", "css grid", ts(2)),
		StoreOptions{})
	require.NoError(t, err)

	entries, err := repo.FindSimilarKnowledge("database migration", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// o-1 matches both tokens, o-2 only one.
	assert.Equal(t, "o-1", entries[0].SourceID)
	assert.Equal(t, "o-2", entries[1].SourceID)

	limited, err := repo.FindSimilarKnowledge("database migration", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchByContextANDsFilters(t *testing.T) {
	repo := newTestRepo(t)
	migration := "migration"
	api := "api"

	_, err := repo.StoreKnowledge(FromOutcome("o-1", "a", "b", ts(0)),
		StoreOptions{TaskType: &migration, Tags: []string{"database"}})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(FromOutcome("o-2", "c", "d", ts(1)),
		StoreOptions{TaskType: &api, Tags: []string{"database"}})
	require.NoError(t, err)
	_, err = repo.StoreKnowledge(FromPlan("p-1", "e", "f", ts(2)),
		StoreOptions{TaskType: &migration})
	require.NoError(t, err)

	outcomeType := TypeFromOutcome
	entries, err := repo.SearchKnowledgeByContext(Filter{
		Type:     &outcomeType,
		TaskType: &migration,
		Tags:     []string{"database"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "o-1", entries[0].SourceID)

	// Time bounds participate in the AND.
	from, to := ts(1), ts(2)
	entries, err = repo.SearchKnowledgeByContext(Filter{From: &from, To: &to}, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOrderingAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	for i := 0; i < 5; i++ {
		_, err := repo.StoreKnowledge(FromTask("t-"+string(rune('a'+i)), "same", "same", ts(i)), StoreOptions{})
		require.NoError(t, err)
	}

	entries, err := repo.FindKnowledgeByType(TypeFromTask, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
	assert.True(t, entries[1].Timestamp.After(entries[2].Timestamp))
}
