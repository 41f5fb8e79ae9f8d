package ingest

import (
	"time"

	"github.com/google/uuid"
	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/errors"
)

// RunTracker persists sync run lifecycle and progress. It is the sole
// authority on whether a run is active: overlap prevention goes through the
// datastore's check-and-set, never through process inspection.
type RunTracker struct {
	store      datastore.Interface
	staleAfter time.Duration
}

// NewRunTracker creates a tracker from settings.
func NewRunTracker(store datastore.Interface, settings *conf.Settings) *RunTracker {
	return &RunTracker{
		store:      store,
		staleAfter: time.Duration(settings.Sync.StaleRunMaxHours) * time.Hour,
	}
}

// Begin creates the run row for a new sync execution. Stale leftover runs are
// swept first so a crashed process never blocks the pipeline; a genuinely
// active run aborts the start with ErrRunConflict and creates no row.
func (t *RunTracker) Begin(syncType string) (*datastore.SyncRun, error) {
	cutoff := time.Now().Add(-t.staleAfter)
	if _, err := t.store.ExpireStaleRuns(cutoff); err != nil {
		return nil, err
	}

	run := &datastore.SyncRun{
		RunID:     uuid.NewString(),
		SyncType:  syncType,
		Status:    datastore.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := t.store.CreateSyncRun(run); err != nil {
		if errors.Is(err, errors.ErrRunConflict) {
			activeID := ""
			if active, aerr := t.store.GetActiveSyncRun(); aerr == nil {
				activeID = active.RunID
			}
			return nil, errors.ConflictError(activeID)
		}
		return nil, err
	}
	return run, nil
}

// Progress copies the accumulated stats into the run row. Called once per
// processed page.
func (t *RunTracker) Progress(run *datastore.SyncRun, stats RunStats) error {
	applyStats(run, stats)
	return t.store.SaveSyncRunProgress(run)
}

// Complete finalizes the run as completed with its final counters.
func (t *RunTracker) Complete(run *datastore.SyncRun, stats RunStats) error {
	applyStats(run, stats)
	return t.store.FinalizeSyncRun(run, datastore.RunStatusCompleted, "")
}

// Fail finalizes the run as failed, preserving the last known counters for
// diagnosis.
func (t *RunTracker) Fail(run *datastore.SyncRun, stats RunStats, cause string) error {
	applyStats(run, stats)
	return t.store.FinalizeSyncRun(run, datastore.RunStatusFailed, cause)
}

// Latest returns the most recent run and whether it is still running.
func (t *RunTracker) Latest() (*datastore.SyncRun, bool, error) {
	run, err := t.store.GetLatestSyncRun()
	if err != nil {
		return nil, false, err
	}
	return run, run.Status == datastore.RunStatusRunning, nil
}

// Active returns the currently running run, or a CategoryNotFound error.
func (t *RunTracker) Active() (*datastore.SyncRun, error) {
	return t.store.GetActiveSyncRun()
}

func applyStats(run *datastore.SyncRun, stats RunStats) {
	run.ProcessedPages = stats.ProcessedPages
	run.ProcessedRecords = stats.ProcessedRecords
	run.NewRecords = stats.NewRecords
	run.UpdatedRecords = stats.UpdatedRecords
}
