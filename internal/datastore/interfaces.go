// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"github.com/javigz/bdnsync-go/internal/conf"
	"gorm.io/gorm"
)

// ReconcileOutcome describes what ReconcileGrant did with a record.
type ReconcileOutcome string

const (
	OutcomeInserted ReconcileOutcome = "inserted"
	OutcomeUpdated  ReconcileOutcome = "updated"
	OutcomeTouched  ReconcileOutcome = "touched"
)

// Interface abstracts the underlying database implementation and defines the
// operations used by the sync pipeline and the control surface.
type Interface interface {
	Open() error
	Close() error

	// Grant records
	GetGrantByBDNSCode(bdnsCode string) (*GrantRecord, error)
	ReconcileGrant(record *GrantRecord) (ReconcileOutcome, error)
	CountGrants() (int64, error)

	// Classification entities and junction links
	FindOrCreateSector(code, name string) (*Sector, error)
	FindOrCreateInstrument(code, name string) (*Instrument, error)
	FindOrCreateRegion(code, name string) (*Region, error)
	LinkGrantSector(grantID, sectorID uint) error
	LinkGrantInstrument(grantID, instrumentID uint) error
	LinkGrantRegion(grantID, regionID uint) error

	// Sync runs
	CreateSyncRun(run *SyncRun) error
	SaveSyncRunProgress(run *SyncRun) error
	FinalizeSyncRun(run *SyncRun, status, errorMessage string) error
	GetLatestSyncRun() (*SyncRun, error)
	GetLatestCompletedSyncRun() (*SyncRun, error)
	GetActiveSyncRun() (*SyncRun, error)
	ExpireStaleRuns(olderThan time.Time) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Settings validation rejects this configuration before we get here
		return nil
	}
}
