package datastore

import (
	"time"

	"github.com/javigz/bdnsync-go/internal/errors"
	"gorm.io/gorm"
)

// CreateSyncRun persists a new run row. The insert is a durable check-and-set:
// inside one transaction it verifies no other run is in the running state and
// aborts with ErrRunConflict when one exists. The unique index on the active
// column enforces the same invariant at the schema level, covering backends
// where two concurrent transactions can both read a zero count. This holds
// across processes and hosts sharing the same database.
func (ds *DataStore) CreateSyncRun(run *SyncRun) error {
	flag := true
	run.Active = &flag
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var running int64
		if err := tx.Model(&SyncRun{}).
			Where("status = ?", RunStatusRunning).
			Count(&running).Error; err != nil {
			return err
		}
		if running > 0 {
			return errors.ErrRunConflict
		}
		if err := tx.Create(run).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.ErrRunConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrRunConflict) {
			return err
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "create_sync_run").
			Context("sync_type", run.SyncType).
			Build()
	}
	return nil
}

// SaveSyncRunProgress persists the run's current counters. Called once per
// processed page, not once per record, to bound write amplification.
func (ds *DataStore) SaveSyncRunProgress(run *SyncRun) error {
	err := ds.DB.Model(&SyncRun{}).Where("id = ?", run.ID).Updates(map[string]any{
		"processed_pages":   run.ProcessedPages,
		"processed_records": run.ProcessedRecords,
		"new_records":       run.NewRecords,
		"updated_records":   run.UpdatedRecords,
	}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_sync_run_progress").
			Context("run_id", run.RunID).
			Build()
	}
	return nil
}

// FinalizeSyncRun marks the run terminal with its final counters preserved.
func (ds *DataStore) FinalizeSyncRun(run *SyncRun, status, errorMessage string) error {
	now := time.Now()
	err := ds.DB.Model(&SyncRun{}).Where("id = ?", run.ID).Updates(map[string]any{
		"status":            status,
		"active":            nil,
		"error_message":     errorMessage,
		"finished_at":       now,
		"processed_pages":   run.ProcessedPages,
		"processed_records": run.ProcessedRecords,
		"new_records":       run.NewRecords,
		"updated_records":   run.UpdatedRecords,
	}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "finalize_sync_run").
			Context("run_id", run.RunID).
			Build()
	}
	run.Status = status
	run.Active = nil
	run.ErrorMessage = errorMessage
	run.FinishedAt = &now
	return nil
}

// GetLatestSyncRun returns the most recently started run, or a
// CategoryNotFound error when no run has ever been recorded.
func (ds *DataStore) GetLatestSyncRun() (*SyncRun, error) {
	var run SyncRun
	err := ds.DB.Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no sync runs recorded").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_latest_sync_run").
			Build()
	}
	return &run, nil
}

// GetLatestCompletedSyncRun returns the most recently started run that
// finished in the completed state, or a CategoryNotFound error when no run
// has completed yet.
func (ds *DataStore) GetLatestCompletedSyncRun() (*SyncRun, error) {
	var run SyncRun
	err := ds.DB.Where("status = ?", RunStatusCompleted).
		Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no completed sync runs recorded").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_latest_completed_sync_run").
			Build()
	}
	return &run, nil
}

// GetActiveSyncRun returns the run currently in the running state, or a
// CategoryNotFound error when none is active. At most one row can match.
func (ds *DataStore) GetActiveSyncRun() (*SyncRun, error) {
	var run SyncRun
	err := ds.DB.Where("status = ?", RunStatusRunning).
		Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no active sync run").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_active_sync_run").
			Build()
	}
	return &run, nil
}

// ExpireStaleRuns finalizes running runs that started before olderThan as
// failed. A run left behind by a crashed process must not wedge the pipeline;
// the next start attempt sweeps it aside without manual intervention.
func (ds *DataStore) ExpireStaleRuns(olderThan time.Time) (int64, error) {
	result := ds.DB.Model(&SyncRun{}).
		Where("status = ? AND started_at < ?", RunStatusRunning, olderThan).
		Updates(map[string]any{
			"status":        RunStatusFailed,
			"active":        nil,
			"error_message": "stale run superseded",
			"finished_at":   time.Now(),
		})
	if result.Error != nil {
		return 0, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "expire_stale_runs").
			Build()
	}
	if result.RowsAffected > 0 {
		getLogger().Warn("Expired stale sync runs",
			"count", result.RowsAffected,
			"older_than", olderThan)
	}
	return result.RowsAffected, nil
}
