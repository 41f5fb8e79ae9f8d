package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/javigz/bdnsync-go/internal/datastore"
)

func fingerprintRecord() *datastore.GrantRecord {
	mod := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC)
	return &datastore.GrantRecord{
		BDNSCode:         "818433",
		Title:            "Ayudas a la digitalización",
		OrganName:        "Ministerio de Industria",
		ModificationDate: &mod,
		ApplicationStart: &start,
		ApplicationEnd:   &end,
		Open:             true,
		RawFunding:       `[{"importe": 100000}]`,
		TotalAmount:      100000,
	}
}

func TestContentHashDeterministic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash(fingerprintRecord()), ContentHash(fingerprintRecord()))
	assert.Len(t, ContentHash(fingerprintRecord()), 64)
}

func TestContentHashIgnoresUnfingerprintedFields(t *testing.T) {
	t.Parallel()
	base := ContentHash(fingerprintRecord())

	r := fingerprintRecord()
	r.RawSector = `[{"code": "A", "description": "Agricultura"}]`
	r.RawRegion = `{"Barcelona": {}}`
	r.Permalink = "https://example.test/other"
	r.BDNSCode = "999999"
	assert.Equal(t, base, ContentHash(r))
}

func TestContentHashSensitivity(t *testing.T) {
	t.Parallel()
	base := ContentHash(fingerprintRecord())

	mutations := map[string]func(*datastore.GrantRecord){
		"title":             func(r *datastore.GrantRecord) { r.Title = "Otra cosa" },
		"organ":             func(r *datastore.GrantRecord) { r.OrganName = "Otro órgano" },
		"modification date": func(r *datastore.GrantRecord) { r.ModificationDate = nil },
		"open flag":         func(r *datastore.GrantRecord) { r.Open = false },
		"funding blob":      func(r *datastore.GrantRecord) { r.RawFunding = `[]` },
		"total amount":      func(r *datastore.GrantRecord) { r.TotalAmount = 1 },
	}
	for name, mutate := range mutations {
		r := fingerprintRecord()
		mutate(r)
		assert.NotEqual(t, base, ContentHash(r), "mutating %s must change the digest", name)
	}
}

func TestContentHashNilVersusEmptyWindow(t *testing.T) {
	t.Parallel()
	withWindow := fingerprintRecord()
	withoutWindow := fingerprintRecord()
	withoutWindow.ApplicationStart = nil
	withoutWindow.ApplicationEnd = nil
	assert.NotEqual(t, ContentHash(withWindow), ContentHash(withoutWindow))
}

func TestModifiedSince(t *testing.T) {
	t.Parallel()
	a := fingerprintRecord()
	b := fingerprintRecord()
	assert.False(t, ModifiedSince(a, b))

	later := a.ModificationDate.Add(24 * time.Hour)
	b.ModificationDate = &later
	assert.True(t, ModifiedSince(a, b))

	b.ModificationDate = nil
	assert.True(t, ModifiedSince(a, b), "absent timestamp is conservatively treated as changed")
}
