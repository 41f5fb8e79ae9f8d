// Package ingest implements the BDNS ingestion pipeline: record mapping,
// change detection, junction normalization and run orchestration.
package ingest

import (
	"strings"
	"time"

	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/registry"
)

// Placeholder values used when the registry omits required descriptive fields.
const (
	PlaceholderTitle = "Convocatoria sin título"
	PlaceholderOrgan = "Órgano no especificado"
)

// recordDateLayouts are the date layouts observed in registry record fields.
var recordDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	time.RFC3339,
}

// parseRecordDate parses a registry date field, returning nil when the field
// is absent or unparseable.
func parseRecordDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range recordDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// MapConvocatoria transforms one raw registry record into a GrantRecord
// candidate. It is a pure function: missing optional fields resolve to
// documented fallbacks rather than errors, and classification-bearing legacy
// payloads are forwarded verbatim for the junction normalizer.
func MapConvocatoria(raw *registry.Convocatoria, now time.Time) *datastore.GrantRecord {
	title := strings.TrimSpace(raw.Titulo)
	if title == "" {
		title = PlaceholderTitle
	}

	organ := strings.TrimSpace(raw.DescOrgano)
	if organ == "" {
		organ = PlaceholderOrgan
	}

	registration := parseRecordDate(raw.FechaRegistro)
	if registration == nil {
		// Synthesized date, never earlier than now
		registration = &now
	}

	applicationStart := parseRecordDate(raw.InicioSolicitud)
	if applicationStart == nil {
		applicationStart = registration
	}
	applicationEnd := parseRecordDate(raw.FinSolicitud)
	if applicationEnd == nil {
		applicationEnd = registration
	}

	var total float64
	for _, source := range raw.ParseFunding() {
		total += float64(source.Importe)
	}

	return &datastore.GrantRecord{
		BDNSCode:         string(raw.CodigoBDNS),
		Title:            title,
		OrganName:        organ,
		RegistrationDate: *registration,
		ModificationDate: parseRecordDate(raw.FechaMod),
		ApplicationStart: applicationStart,
		ApplicationEnd:   applicationEnd,
		Open:             raw.Abierto,
		TotalAmount:      total,
		Permalink:        raw.Permalink,
		RawFunding:       string(raw.Financiacion),
		RawPurpose:       string(raw.Finalidad),
		RawInstrument:    string(raw.Instrumento),
		RawSector:        string(raw.Sector),
		RawRegion:        string(raw.Region),
		RawBeneficiary:   string(raw.TipoBeneficiario),
	}
}
