package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javigz/bdnsync-go/internal/registry"
)

func TestMapConvocatoriaFullRecord(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	raw := &registry.Convocatoria{
		CodigoBDNS:      "818433",
		Titulo:          "  Ayudas a la digitalización  ",
		DescOrgano:      "Ministerio de Industria",
		FechaRegistro:   "2025-03-10",
		FechaMod:        "2025-04-01",
		InicioSolicitud: "2025-03-15",
		FinSolicitud:    "2025-05-15",
		Abierto:         true,
		Financiacion:    json.RawMessage(`[{"importe": 100000}, {"importe": "50000.50"}]`),
		Sector:          json.RawMessage(`[{"code": "A", "description": "Agricultura"}]`),
		Permalink:       "https://example.test/convocatoria/818433",
	}

	record := MapConvocatoria(raw, now)
	assert.Equal(t, "818433", record.BDNSCode)
	assert.Equal(t, "Ayudas a la digitalización", record.Title)
	assert.Equal(t, "Ministerio de Industria", record.OrganName)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), record.RegistrationDate)
	require.NotNil(t, record.ModificationDate)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), *record.ModificationDate)
	require.NotNil(t, record.ApplicationStart)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), *record.ApplicationStart)
	assert.True(t, record.Open)
	assert.InDelta(t, 150000.50, record.TotalAmount, 0.001)
	assert.JSONEq(t, `[{"code": "A", "description": "Agricultura"}]`, record.RawSector)
}

func TestMapConvocatoriaPlaceholders(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	record := MapConvocatoria(&registry.Convocatoria{CodigoBDNS: "1"}, now)
	assert.Equal(t, PlaceholderTitle, record.Title)
	assert.Equal(t, PlaceholderOrgan, record.OrganName)
	assert.Equal(t, now, record.RegistrationDate, "missing registration date falls back to now")
}

func TestMapConvocatoriaApplicationWindowFallsBackToRegistration(t *testing.T) {
	t.Parallel()
	now := time.Now()

	record := MapConvocatoria(&registry.Convocatoria{
		CodigoBDNS:    "1",
		FechaRegistro: "2025-03-10",
	}, now)

	registration := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, record.ApplicationStart)
	require.NotNil(t, record.ApplicationEnd)
	assert.Equal(t, registration, *record.ApplicationStart)
	assert.Equal(t, registration, *record.ApplicationEnd)
	assert.Nil(t, record.ModificationDate, "absent modification date stays nil")
}

func TestMapConvocatoriaMalformedFundingSumsToZero(t *testing.T) {
	t.Parallel()

	record := MapConvocatoria(&registry.Convocatoria{
		CodigoBDNS:   "1",
		Financiacion: json.RawMessage(`"not an array"`),
	}, time.Now())
	assert.Zero(t, record.TotalAmount)
}

func TestParseRecordDateLayouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  *time.Time
	}{
		{"ISO date", "2025-03-10", timePtr(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC))},
		{"Spanish date", "10/03/2025", timePtr(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC))},
		{"empty", "", nil},
		{"garbage", "mañana", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRecordDate(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
