package datastore

import (
	"log"
	"os"
	"time"

	"github.com/javigz/bdnsync-go/internal/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates migration batch queries.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             DefaultSlowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// performAutoMigration runs gorm AutoMigrate for all models and then applies
// the tracked schema migrations.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&GrantRecord{},
		&Sector{},
		&Instrument{},
		&Region{},
		&GrantSector{},
		&GrantInstrument{},
		&GrantRegion{},
		&SyncRun{},
		&SchemaMigration{},
	); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryMigration).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		getLogger().Debug("Database initialized",
			"db_type", dbType,
			"connection", connectionInfo)
	}

	return applySchemaMigrations(db, dbType)
}
