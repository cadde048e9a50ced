package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/pkg/knowledge"
	"ampere/pkg/persistence"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(knowledge.NewRepository(db), "eng")
}

func ts(offset int) time.Time {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offset) * time.Minute)
}

func TestStoreKnowledgeRecordsAgent(t *testing.T) {
	svc := newTestService(t)

	entry, err := svc.StoreKnowledge(
		knowledge.FromOutcome("o-1", "DB migration", "chunk the batches", ts(0)),
		[]string{"database", "migration"}, "migration")
	require.NoError(t, err)
	require.NotNil(t, entry.AgentID)
	assert.Equal(t, "eng", *entry.AgentID)
	require.NotNil(t, entry.TaskType)
	assert.Equal(t, "migration", *entry.TaskType)
}

func TestRecallScoresAndRanks(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StoreKnowledge(
		knowledge.FromOutcome("o-1", "database migration approach", "chunk the batches", ts(0)),
		[]string{"database", "migration"}, "migration")
	require.NoError(t, err)
	_, err = svc.StoreKnowledge(
		knowledge.FromOutcome("o-2", "API pagination", "use cursors", ts(1)),
		[]string{"api"}, "feature")
	require.NoError(t, err)

	results, err := svc.RecallRelevantKnowledge(Context{
		TaskType:    "migration",
		Tags:        []string{"database", "migration"},
		Description: "migrate the database schema",
	}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The migration entry matches task type, both tags, and the description.
	assert.Equal(t, "o-1", results[0].Entry.SourceID)
	assert.Greater(t, results[0].Score, 0.7)
	assert.LessOrEqual(t, results[0].Score, 1.0)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestRecallEmptyResultIsPermissible(t *testing.T) {
	svc := newTestService(t)
	results, err := svc.RecallRelevantKnowledge(Context{TaskType: "deploy"}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecallHonoursLimit(t *testing.T) {
	svc := newTestService(t)
	for i := 0; i < 5; i++ {
		_, err := svc.StoreKnowledge(
			knowledge.FromTask("t-"+string(rune('a'+i)), "same approach", "same learnings", ts(i)),
			[]string{"shared"}, "chore")
		require.NoError(t, err)
	}

	results, err := svc.RecallRelevantKnowledge(Context{Tags: []string{"shared"}}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestWorkingMemoryNotifiesObservers(t *testing.T) {
	wm := NewWorkingMemory()

	var gotKey string
	var gotValue any
	wm.Observe(func(key string, value any) {
		gotKey, gotValue = key, value
	})

	wm.Set("current_ticket", "t-1")
	assert.Equal(t, "current_ticket", gotKey)
	assert.Equal(t, "t-1", gotValue)

	value, ok := wm.GetString("current_ticket")
	require.True(t, ok)
	assert.Equal(t, "t-1", value)

	wm.Delete("current_ticket")
	assert.Nil(t, gotValue)
	assert.Equal(t, 0, wm.Len())
}

func TestWorkingMemorySnapshotIsCopy(t *testing.T) {
	wm := NewWorkingMemory()
	wm.Set("k", "v")

	snapshot := wm.Snapshot()
	snapshot["k"] = "mutated"

	value, _ := wm.GetString("k")
	assert.Equal(t, "v", value)
}
