package datastore

import (
	"time"

	"github.com/javigz/bdnsync-go/internal/errors"
	"gorm.io/gorm"
)

// migrationStep is a hand-written schema change applied after AutoMigrate.
// Steps are keyed by name in the schema_migrations table and each one runs
// exactly once, inside its own transaction.
type migrationStep struct {
	name  string
	apply func(tx *gorm.DB, dbType string) error
}

// migrationSteps run in order. Append only; never reorder or rename applied
// steps.
var migrationSteps = []migrationStep{
	{
		name: "0001_grants_last_synced_at_idx",
		apply: func(tx *gorm.DB, dbType string) error {
			if tx.Migrator().HasIndex(&GrantRecord{}, "idx_grants_last_synced_at") {
				return nil
			}
			return tx.Exec("CREATE INDEX idx_grants_last_synced_at ON grants (last_synced_at)").Error
		},
	},
	{
		name: "0002_sync_runs_status_started_idx",
		apply: func(tx *gorm.DB, dbType string) error {
			if tx.Migrator().HasIndex(&SyncRun{}, "idx_sync_runs_status_started") {
				return nil
			}
			return tx.Exec("CREATE INDEX idx_sync_runs_status_started ON sync_runs (status, started_at)").Error
		},
	},
}

// applySchemaMigrations applies every unapplied migration step. The ledger row
// and the schema change commit together, so a step can never run twice.
func applySchemaMigrations(db *gorm.DB, dbType string) error {
	for _, step := range migrationSteps {
		var applied int64
		if err := db.Model(&SchemaMigration{}).
			Where("name = ?", step.name).
			Count(&applied).Error; err != nil {
			return migrationError(err, step.name)
		}
		if applied > 0 {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.apply(tx, dbType); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Name:      step.name,
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return migrationError(err, step.name)
		}

		getLogger().Info("Applied schema migration", "name", step.name)
	}
	return nil
}

func migrationError(err error, name string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryMigration).
		Context("migration", name).
		Build()
}
