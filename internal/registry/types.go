package registry

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Convocatoria is the wire shape of one grant announcement as returned by the
// BDNS registry. Classification-bearing fields are kept as raw JSON because
// the registry ships them in several shapes (array of objects, plain object,
// bare string); the junction normalizer classifies them downstream.
type Convocatoria struct {
	CodigoBDNS       FlexString      `json:"codigo-BDNS"`
	Titulo           string          `json:"titulo"`
	DescOrgano       string          `json:"desc-organo"`
	FechaRegistro    string          `json:"fecha-registro"`
	FechaMod         string          `json:"fecha-mod"`
	InicioSolicitud  string          `json:"inicio-solicitud"`
	FinSolicitud     string          `json:"fin-solicitud"`
	Abierto          bool            `json:"abierto"`
	Financiacion     json.RawMessage `json:"financiacion"`
	Finalidad        json.RawMessage `json:"finalidad"`
	Instrumento      json.RawMessage `json:"instrumento"`
	Sector           json.RawMessage `json:"sector"`
	Region           json.RawMessage `json:"region"`
	TipoBeneficiario json.RawMessage `json:"tipo-beneficiario"`
	Permalink        string          `json:"permalink-convocatoria"`
}

// FundingSource is one entry of the financiacion array.
type FundingSource struct {
	Importe FlexFloat `json:"importe"`
}

// ParseFunding decodes the financiacion payload. A missing or malformed
// payload yields an empty breakdown, never an error, and the mapper sums it
// to zero.
func (c *Convocatoria) ParseFunding() []FundingSource {
	if len(c.Financiacion) == 0 {
		return nil
	}
	var sources []FundingSource
	if err := json.Unmarshal(c.Financiacion, &sources); err != nil {
		return nil
	}
	return sources
}

// FlexString decodes a JSON value that may arrive as a string or a number.
// The registry is not consistent about codigo-BDNS.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexFloat decodes a JSON number that may arrive as a number or a numeric
// string. Unparseable values decode to zero.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// pageEnvelope is the registry's response envelope. The convocatorias member
// is an object keyed by arbitrary internal IDs, not an array.
type pageEnvelope struct {
	Page          int                      `json:"page"`
	PageSize      int                      `json:"page-size"`
	TotalPages    int                      `json:"total-pages"`
	Convocatorias map[string]*Convocatoria `json:"convocatorias"`
}

// Page is one fetched batch of raw records plus paging metadata.
type Page struct {
	Index      int
	PageSize   int
	TotalPages int
	Records    []*Convocatoria
}
