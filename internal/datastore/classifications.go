package datastore

import (
	"github.com/javigz/bdnsync-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// findOrCreate implements the shared lookup-or-create semantics for the three
// classification tables: an entity is considered existing if its code matches
// (when non-empty) OR its name matches exactly. A duplicate-key race on create
// resolves by rereading, not erroring; two records introducing the same new
// classification concurrently must both succeed.
func findOrCreate[T any](db *gorm.DB, code, name string, setFields func(code, name string) *T) (*T, error) {
	lookup := func() (*T, error) {
		var entity T
		q := db.Where("name = ?", name)
		if code != "" {
			q = db.Where("code = ?", code).Or("name = ?", name)
		}
		err := q.First(&entity).Error
		if err != nil {
			return nil, err
		}
		return &entity, nil
	}

	entity, err := lookup()
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := setFields(code, name)
	if err := db.Create(created).Error; err != nil {
		// Assume a concurrent insert won the race and reread
		if entity, rerr := lookup(); rerr == nil {
			return entity, nil
		}
		return nil, err
	}
	return created, nil
}

// FindOrCreateSector returns the sector matching (code, name), creating it on
// first encounter.
func (ds *DataStore) FindOrCreateSector(code, name string) (*Sector, error) {
	s, err := findOrCreate(ds.DB, code, name, func(code, name string) *Sector {
		return &Sector{Code: code, Name: name}
	})
	if err != nil {
		return nil, classificationError(err, "sector", code, name)
	}
	return s, nil
}

// FindOrCreateInstrument returns the funding instrument matching (code, name),
// creating it on first encounter.
func (ds *DataStore) FindOrCreateInstrument(code, name string) (*Instrument, error) {
	i, err := findOrCreate(ds.DB, code, name, func(code, name string) *Instrument {
		return &Instrument{Code: code, Name: name}
	})
	if err != nil {
		return nil, classificationError(err, "instrument", code, name)
	}
	return i, nil
}

// FindOrCreateRegion returns the region matching (code, name), creating it on
// first encounter.
func (ds *DataStore) FindOrCreateRegion(code, name string) (*Region, error) {
	r, err := findOrCreate(ds.DB, code, name, func(code, name string) *Region {
		return &Region{Code: code, Name: name}
	})
	if err != nil {
		return nil, classificationError(err, "region", code, name)
	}
	return r, nil
}

func classificationError(err error, kind, code, name string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", "find_or_create_classification").
		Context("kind", kind).
		Context("code", code).
		Context("name", name).
		Build()
}

// LinkGrantSector inserts the (grant, sector) junction row. Inserting a
// duplicate pair is a no-op, never an error.
func (ds *DataStore) LinkGrantSector(grantID, sectorID uint) error {
	link := GrantSector{GrantID: grantID, SectorID: sectorID}
	if err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return linkError(err, "sector", grantID, sectorID)
	}
	return nil
}

// LinkGrantInstrument inserts the (grant, instrument) junction row, tolerating
// duplicates silently.
func (ds *DataStore) LinkGrantInstrument(grantID, instrumentID uint) error {
	link := GrantInstrument{GrantID: grantID, InstrumentID: instrumentID}
	if err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return linkError(err, "instrument", grantID, instrumentID)
	}
	return nil
}

// LinkGrantRegion inserts the (grant, region) junction row, tolerating
// duplicates silently.
func (ds *DataStore) LinkGrantRegion(grantID, regionID uint) error {
	link := GrantRegion{GrantID: grantID, RegionID: regionID}
	if err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return linkError(err, "region", grantID, regionID)
	}
	return nil
}

func linkError(err error, kind string, grantID, classificationID uint) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", "link_grant_classification").
		Context("kind", kind).
		Context("grant_id", grantID).
		Context("classification_id", classificationID).
		Build()
}
