package registry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/errors"
)

const testEndpoint = "https://registry.test/api/v2.1/listadoconvocatoria"

func newTestClient(t *testing.T) *HTTPClient {
	t.Helper()
	client := NewHTTPClient(&conf.Settings{
		Registry: conf.RegistrySettings{
			Endpoint:       testEndpoint,
			PageSize:       200,
			TimeoutSeconds: 5,
		},
	})
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

const plainEnvelope = `{
	"page": 0,
	"page-size": 2,
	"total-pages": 1,
	"convocatorias": {
		"818433": {"codigo-BDNS": "123456", "titulo": "Ayudas A"},
		"818434": {"codigo-BDNS": "123457", "titulo": "Ayudas B"}
	}
}`

func TestFetchPageDecodesEnvelope(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testEndpoint,
		httpmock.NewStringResponder(200, plainEnvelope))

	page, err := client.FetchPage(context.Background(), PageRequest{Page: 0, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Index)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "123456", string(page.Records[0].CodigoBDNS))
}

func TestFetchPageUnwrapsArrayEnvelope(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testEndpoint,
		httpmock.NewStringResponder(200, "["+plainEnvelope+"]"))

	page, err := client.FetchPage(context.Background(), PageRequest{Page: 0, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Ayudas A", page.Records[0].Titulo)
}

func TestFetchPageOrdersKeyedRecords(t *testing.T) {
	client := newTestClient(t)
	// Numeric keys sort numerically, non-numeric keys lexically after them
	httpmock.RegisterResponder("GET", testEndpoint,
		httpmock.NewStringResponder(200, `{
			"page": 0, "page-size": 4, "total-pages": 1,
			"convocatorias": {
				"100": {"codigo-BDNS": "C"},
				"20":  {"codigo-BDNS": "B"},
				"3":   {"codigo-BDNS": "A"},
				"x9":  {"codigo-BDNS": "D"}
			}
		}`))

	page, err := client.FetchPage(context.Background(), PageRequest{Page: 0, PageSize: 4})
	require.NoError(t, err)
	got := make([]string, 0, len(page.Records))
	for _, rec := range page.Records {
		got = append(got, string(rec.CodigoBDNS))
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)
}

func TestFetchPageNon2xxIsFetchFailed(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testEndpoint,
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := client.FetchPage(context.Background(), PageRequest{Page: 3, PageSize: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, 3, enhanced.GetContext()["page"])
}

func TestFetchPageUndecodableBody(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testEndpoint,
		httpmock.NewStringResponder(200, "<html>maintenance</html>"))

	_, err := client.FetchPage(context.Background(), PageRequest{Page: 0, PageSize: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))
}

func TestFetchPageSendsQueryParameters(t *testing.T) {
	client := newTestClient(t)
	var gotQuery map[string][]string
	httpmock.RegisterResponder("GET", testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.Query()
			return httpmock.NewStringResponse(200, plainEnvelope), nil
		})

	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchPage(context.Background(), PageRequest{
		From: from, To: to, Page: 2, PageSize: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "2", gotQuery["page"][0])
	assert.Equal(t, "100", gotQuery["page-size"][0])
	assert.Equal(t, "01/03/2024", gotQuery["fecha-desde"][0])
	assert.Equal(t, "31/03/2024", gotQuery["fecha-hasta"][0])
}

func TestNormalizeClampsPageSize(t *testing.T) {
	t.Parallel()
	client := &HTTPClient{endpoint: testEndpoint}

	req := client.normalize(PageRequest{Page: 0, PageSize: 5000})
	assert.Equal(t, MaxPageSize, req.PageSize)

	req = client.normalize(PageRequest{Page: 0, PageSize: 0})
	assert.Equal(t, 1, req.PageSize)
}

func TestNormalizeDefaultsToCurrentYear(t *testing.T) {
	t.Parallel()
	client := &HTTPClient{endpoint: testEndpoint}

	req := client.normalize(PageRequest{Page: 0, PageSize: 10})
	year := time.Now().Year()
	assert.Equal(t, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), req.From)
	assert.Equal(t, time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), req.To)
}
