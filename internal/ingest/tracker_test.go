package ingest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/errors"
)

func newTestTracker(t *testing.T) (*RunTracker, datastore.Interface) {
	t.Helper()
	settings := testSettings(t)
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return NewRunTracker(store, settings), store
}

func TestTrackerBeginCreatesRun(t *testing.T) {
	t.Parallel()
	tracker, store := newTestTracker(t)

	run, err := tracker.Begin(conf.SyncTypeIncremental)
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, datastore.RunStatusRunning, run.Status)

	active, err := store.GetActiveSyncRun()
	require.NoError(t, err)
	assert.Equal(t, run.RunID, active.RunID)
}

func TestTrackerBeginConflictsWithActiveRun(t *testing.T) {
	t.Parallel()
	tracker, _ := newTestTracker(t)

	_, err := tracker.Begin(conf.SyncTypeIncremental)
	require.NoError(t, err)

	_, err = tracker.Begin(conf.SyncTypeFull)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunConflict))
}

func TestTrackerBeginSweepsStaleRun(t *testing.T) {
	t.Parallel()
	tracker, store := newTestTracker(t)

	// A run abandoned by a crashed process two days ago
	stale := &datastore.SyncRun{
		RunID:     uuid.NewString(),
		SyncType:  conf.SyncTypeIncremental,
		Status:    datastore.RunStatusRunning,
		StartedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, store.CreateSyncRun(stale))

	run, err := tracker.Begin(conf.SyncTypeIncremental)
	require.NoError(t, err, "stale leftover must not block a new run")

	active, err := store.GetActiveSyncRun()
	require.NoError(t, err)
	assert.Equal(t, run.RunID, active.RunID)
}

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()
	tracker, store := newTestTracker(t)

	run, err := tracker.Begin(conf.SyncTypeFull)
	require.NoError(t, err)

	stats := RunStats{}.WithPage().
		WithOutcome(datastore.OutcomeInserted).
		WithOutcome(datastore.OutcomeUpdated).
		WithOutcome(datastore.OutcomeTouched)
	require.NoError(t, tracker.Progress(run, stats))

	saved, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, 1, saved.ProcessedPages)
	assert.Equal(t, 3, saved.ProcessedRecords)
	assert.Equal(t, 1, saved.NewRecords)
	assert.Equal(t, 1, saved.UpdatedRecords)

	require.NoError(t, tracker.Complete(run, stats))
	final, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusCompleted, final.Status)
	require.NotNil(t, final.FinishedAt)

	_, running, err := tracker.Latest()
	require.NoError(t, err)
	assert.False(t, running)
}
