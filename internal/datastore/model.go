// model.go this code defines the data model for the application
package datastore

import "time"

// GrantRecord represents one grant announcement (convocatoria) from the BDNS registry
type GrantRecord struct {
	ID       uint   `gorm:"primaryKey"`
	BDNSCode string `gorm:"column:bdns_code;uniqueIndex:idx_grants_bdns_code;not null"`

	Title            string `gorm:"type:text"`
	OrganName        string `gorm:"type:text"` // issuing body description
	RegistrationDate time.Time
	ModificationDate *time.Time
	ApplicationStart *time.Time
	ApplicationEnd   *time.Time
	Open             bool
	TotalAmount      float64
	Permalink        string `gorm:"type:text"`

	// Legacy classification payloads, forwarded verbatim from the registry.
	// The junction normalizer extracts relational links from these.
	RawFunding     string `gorm:"type:text"`
	RawPurpose     string `gorm:"type:text"`
	RawInstrument  string `gorm:"type:text"`
	RawSector      string `gorm:"type:text"`
	RawRegion      string `gorm:"type:text"`
	RawBeneficiary string `gorm:"type:text"`

	// ContentHash is recomputed on every observed version of the record and
	// covers the change-detection field subset only.
	ContentHash string `gorm:"size:64;index:idx_grants_content_hash"`

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt time.Time
}

// TableName overrides the gorm default pluralization
func (GrantRecord) TableName() string { return "grants" }

// Sector represents an economic sector classification entity
type Sector struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:64;index:idx_sectors_code"`
	Name string `gorm:"type:text;not null;index:idx_sectors_name,length:128"`
}

// Instrument represents a funding instrument classification entity
type Instrument struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:64;index:idx_instruments_code"`
	Name string `gorm:"type:text;not null;index:idx_instruments_name,length:128"`
}

// Region represents a geographic region classification entity
type Region struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:64;index:idx_regions_code"`
	Name string `gorm:"type:text;not null;index:idx_regions_name,length:128"`
}

// GrantSector links a grant to a sector. The pair is composite-unique and
// duplicate inserts are treated as no-ops.
type GrantSector struct {
	ID       uint `gorm:"primaryKey"`
	GrantID  uint `gorm:"not null;uniqueIndex:idx_grant_sector_pair"`
	SectorID uint `gorm:"not null;uniqueIndex:idx_grant_sector_pair"`
}

// GrantInstrument links a grant to a funding instrument
type GrantInstrument struct {
	ID           uint `gorm:"primaryKey"`
	GrantID      uint `gorm:"not null;uniqueIndex:idx_grant_instrument_pair"`
	InstrumentID uint `gorm:"not null;uniqueIndex:idx_grant_instrument_pair"`
}

// GrantRegion links a grant to a geographic region
type GrantRegion struct {
	ID       uint `gorm:"primaryKey"`
	GrantID  uint `gorm:"not null;uniqueIndex:idx_grant_region_pair"`
	RegionID uint `gorm:"not null;uniqueIndex:idx_grant_region_pair"`
}

// Sync run lifecycle states. Exactly one run may be in StatusRunning at a time.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SyncRun identifies one execution of the ingestion pipeline
type SyncRun struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    string `gorm:"size:36;uniqueIndex:idx_sync_runs_run_id;not null"` // public UUID handle
	SyncType string `gorm:"size:16;not null"`
	Status   string `gorm:"size:16;not null;index:idx_sync_runs_status"`
	Active   *bool  `gorm:"uniqueIndex:idx_sync_runs_active"` // non-nil only while running, at most one row

	ProcessedPages   int
	ProcessedRecords int
	NewRecords       int
	UpdatedRecords   int

	ErrorMessage string `gorm:"type:text"`

	StartedAt  time.Time `gorm:"index:idx_sync_runs_started_at"`
	FinishedAt *time.Time
}

// SchemaMigration records an applied schema migration, keyed by name
type SchemaMigration struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;uniqueIndex:idx_schema_migrations_name;not null"`
	AppliedAt time.Time
}
