// Package registry implements the HTTP client for the BDNS convocatorias API.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/errors"
	"github.com/javigz/bdnsync-go/internal/logging"
)

// MaxPageSize is the effective page-size ceiling of the registry API.
// Requests above it are silently truncated upstream, so the client clamps and
// logs instead of passing larger values through. The exact upstream limit is
// not documented by the origin; 2000 is the highest value observed to return
// complete pages.
const MaxPageSize = 2000

// DateFormat is the date layout the registry expects in query parameters.
const DateFormat = "02/01/2006"

// UserAgent identifies this client to the registry.
const UserAgent = "bdnsync-go"

// Package-level logger for the registry client
var registryLogger *slog.Logger

func init() {
	registryLogger = slog.Default().With("service", "registry")
	if l := logging.ForService("registry"); l != nil {
		registryLogger = l
	}
}

// PageRequest describes one page fetch. From/To bound the registration date
// range; Page is zero-based.
type PageRequest struct {
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Client fetches pages of grant announcements from the registry.
type Client interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// HTTPClient implements Client against the live BDNS endpoint. It is
// stateless and safe for concurrent use.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient creates a registry client from settings.
func NewHTTPClient(settings *conf.Settings) *HTTPClient {
	return &HTTPClient{
		endpoint: settings.Registry.Endpoint,
		httpClient: &http.Client{
			Timeout: time.Duration(settings.Registry.TimeoutSeconds) * time.Second,
		},
	}
}

// FetchPage issues one GET against the registry and returns the decoded batch.
// It does not retry; a failed page fails the whole fetch and retry policy
// belongs to the caller across runs. A zero date range defaults to the full
// current year.
func (c *HTTPClient) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	req = c.normalize(req)

	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, errors.New(err).
			Component("registry").
			Category(errors.CategoryConfiguration).
			Context("endpoint", c.endpoint).
			Build()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, errors.FetchError(err, req.Page, req.PageSize)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		registryLogger.Error("Registry page fetch failed",
			"page", req.Page,
			"error", err)
		return nil, errors.FetchError(err, req.Page, req.PageSize)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		registryLogger.Error("Registry returned non-2xx response",
			"page", req.Page,
			"status", resp.StatusCode)
		return nil, errors.FetchError(
			fmt.Errorf("received non-2xx response: %d", resp.StatusCode),
			req.Page, req.PageSize)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.FetchError(err, req.Page, req.PageSize)
	}

	page, err := decodePage(body)
	if err != nil {
		return nil, errors.FetchError(err, req.Page, req.PageSize)
	}
	page.Index = req.Page

	registryLogger.Debug("Fetched registry page",
		"page", req.Page,
		"records", len(page.Records),
		"total_pages", page.TotalPages,
		"duration_ms", time.Since(start).Milliseconds())

	return page, nil
}

// normalize applies the default full-year date range and clamps the page size.
func (c *HTTPClient) normalize(req PageRequest) PageRequest {
	if req.From.IsZero() || req.To.IsZero() {
		now := time.Now()
		req.From = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		req.To = time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	if req.PageSize <= 0 {
		req.PageSize = 1
	}
	if req.PageSize > MaxPageSize {
		registryLogger.Warn("Requested page size exceeds registry cap, clamping",
			"requested", req.PageSize,
			"cap", MaxPageSize)
		req.PageSize = MaxPageSize
	}
	return req
}

func (c *HTTPClient) buildURL(req PageRequest) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid registry endpoint: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("page-size", strconv.Itoa(req.PageSize))
	q.Set("fecha-desde", req.From.Format(DateFormat))
	q.Set("fecha-hasta", req.To.Format(DateFormat))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodePage unwraps the response envelope and converts the convocatorias
// object into an ordered slice. The registry sometimes wraps the envelope in
// a single-element array.
func decodePage(body []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	if trimmed[0] == '[' {
		var envelopes []pageEnvelope
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, fmt.Errorf("decoding wrapped envelope: %w", err)
		}
		if len(envelopes) == 0 {
			return nil, fmt.Errorf("empty envelope array")
		}
		return envelopeToPage(&envelopes[0]), nil
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return envelopeToPage(&envelope), nil
}

// envelopeToPage orders the keyed convocatorias deterministically: numeric
// keys sort numerically, anything else lexically after them.
func envelopeToPage(env *pageEnvelope) *Page {
	keys := make([]string, 0, len(env.Convocatorias))
	for k := range env.Convocatorias {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, ei := strconv.ParseInt(keys[i], 10, 64)
		nj, ej := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case ei == nil && ej == nil:
			return ni < nj
		case ei == nil:
			return true
		case ej == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	records := make([]*Convocatoria, 0, len(keys))
	for _, k := range keys {
		if rec := env.Convocatorias[k]; rec != nil {
			records = append(records, rec)
		}
	}

	return &Page{
		PageSize:   env.PageSize,
		TotalPages: env.TotalPages,
		Records:    records,
	}
}
