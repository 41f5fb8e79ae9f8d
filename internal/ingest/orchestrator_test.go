package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/errors"
	"github.com/javigz/bdnsync-go/internal/observability/metrics"
	"github.com/javigz/bdnsync-go/internal/registry"
)

// stubClient serves canned pages. An entry in failPages makes that page index
// return an error instead. Every request is recorded; reading the slice is
// safe once the run's Done channel has closed.
type stubClient struct {
	pages     [][]*registry.Convocatoria
	failPages map[int]error
	block     chan struct{} // when set, FetchPage waits for cancellation
	requests  []registry.PageRequest
}

func (c *stubClient) FetchPage(ctx context.Context, req registry.PageRequest) (*registry.Page, error) {
	c.requests = append(c.requests, req)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := c.failPages[req.Page]; ok {
		return nil, err
	}
	if req.Page >= len(c.pages) {
		return &registry.Page{Index: req.Page, TotalPages: len(c.pages)}, nil
	}
	return &registry.Page{
		Index:      req.Page,
		PageSize:   req.PageSize,
		TotalPages: len(c.pages),
		Records:    c.pages[req.Page],
	}, nil
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Registry: conf.RegistrySettings{
			Endpoint:       "https://registry.test/api",
			PageSize:       200,
			TimeoutSeconds: 5,
		},
		Sync: conf.SyncSettings{
			DefaultType:      conf.SyncTypeIncremental,
			StartYear:        2008,
			StaleRunMaxHours: 24,
		},
		Output: conf.OutputSettings{
			SQLite: conf.SQLiteSettings{
				Enabled: true,
				Path:    filepath.Join(t.TempDir(), "sync-test.db"),
			},
		},
	}
}

func newTestService(t *testing.T, client registry.Client) (*Service, datastore.Interface) {
	t.Helper()

	settings := testSettings(t)
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	syncMetrics, err := metrics.NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	service := NewService(settings, store, client, syncMetrics)
	t.Cleanup(service.Close)
	return service, store
}

func announcement(code, title string) *registry.Convocatoria {
	return &registry.Convocatoria{
		CodigoBDNS:    registry.FlexString(code),
		Titulo:        title,
		DescOrgano:    "Ministerio de Industria",
		FechaRegistro: "2025-03-10",
		Abierto:       true,
		Financiacion:  json.RawMessage(`[{"importe": 100000}]`),
		Sector:        json.RawMessage(`[{"code": "A", "description": "Agricultura"}]`),
		Region:        json.RawMessage(`{"ES511 - Barcelona": {}}`),
	}
}

func waitDone(t *testing.T, handle *RunHandle) {
	t.Helper()
	select {
	case <-handle.Done:
	case <-time.After(10 * time.Second):
		t.Fatal("sync run did not finish in time")
	}
}

func TestSyncRunEndToEnd(t *testing.T) {
	t.Parallel()

	client := &stubClient{pages: [][]*registry.Convocatoria{
		{announcement("100001", "Ayudas A"), announcement("100002", "Ayudas B")},
		{announcement("100003", "Ayudas C"), announcement("100004", "Ayudas D")},
	}}
	service, store := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	run, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusCompleted, run.Status)
	assert.Equal(t, handle.RunID, run.RunID)
	assert.Equal(t, 2, run.ProcessedPages)
	assert.Equal(t, 4, run.ProcessedRecords)
	assert.Equal(t, 4, run.NewRecords)
	assert.Zero(t, run.UpdatedRecords)
	require.NotNil(t, run.FinishedAt)

	total, err := store.CountGrants()
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	// Classification entities are shared, junction rows are per grant
	ds := store.(*datastore.SQLiteStore)
	var sectors, links int64
	require.NoError(t, ds.DB.Model(&datastore.Sector{}).Count(&sectors).Error)
	require.NoError(t, ds.DB.Model(&datastore.GrantSector{}).Count(&links).Error)
	assert.Equal(t, int64(1), sectors)
	assert.Equal(t, int64(4), links)

	var region datastore.Region
	require.NoError(t, ds.DB.Where("code = ?", "ES511").First(&region).Error)
	assert.Equal(t, "Barcelona", region.Name)
}

func TestSyncRunReconcilesSecondPass(t *testing.T) {
	t.Parallel()

	first := &stubClient{pages: [][]*registry.Convocatoria{
		{announcement("100001", "Ayudas A"), announcement("100002", "Ayudas B")},
	}}
	service, store := newTestService(t, first)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	// Second pass: one changed, one untouched, two new
	changed := announcement("100001", "Ayudas A (ampliada)")
	second := &stubClient{pages: [][]*registry.Convocatoria{
		{changed, announcement("100002", "Ayudas B"),
			announcement("100005", "Ayudas E"), announcement("100006", "Ayudas F")},
	}}
	service2 := NewService(testSettings(t), store, second, newRunMetrics(t))
	t.Cleanup(service2.Close)

	handle, err = service2.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	run, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.ProcessedRecords)
	assert.Equal(t, 2, run.NewRecords)
	assert.Equal(t, 1, run.UpdatedRecords)

	updated, err := store.GetGrantByBDNSCode("100001")
	require.NoError(t, err)
	assert.Equal(t, "Ayudas A (ampliada)", updated.Title)

	total, err := store.CountGrants()
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestSyncRunFailsOnPageFetchError(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		pages: [][]*registry.Convocatoria{
			{announcement("100001", "Ayudas A")},
			{announcement("100002", "Ayudas B")},
		},
		failPages: map[int]error{1: fmt.Errorf("connection reset")},
	}
	service, store := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	run, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "page 1 fetch failed")
	assert.Equal(t, 1, run.ProcessedPages, "progress from completed pages survives the failure")
	assert.Equal(t, 1, run.ProcessedRecords)
}

func TestStartWhileRunningConflicts(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	client := &stubClient{
		pages: [][]*registry.Convocatoria{{announcement("100001", "Ayudas A")}},
		block: block,
	}
	service, _ := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)

	_, err = service.Start(context.Background(), conf.SyncTypeFull)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunConflict))

	close(block)
	waitDone(t, handle)

	// After completion a new run may start
	handle, err = service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)
}

func TestStopCancelsActiveRun(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		pages: [][]*registry.Convocatoria{{announcement("100001", "Ayudas A")}},
		block: make(chan struct{}),
	}
	service, store := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)

	require.NoError(t, service.Stop())
	waitDone(t, handle)

	run, err := store.GetLatestSyncRun()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusFailed, run.Status)
	assert.Equal(t, "sync canceled", run.ErrorMessage)
}

func TestStopWithoutActiveRun(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, &stubClient{})
	err := service.Stop()
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStartRejectsUnknownSyncType(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, &stubClient{})
	_, err := service.Start(context.Background(), "everything")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestStatusIdleThenCompleted(t *testing.T) {
	t.Parallel()

	client := &stubClient{pages: [][]*registry.Convocatoria{
		{announcement("100001", "Ayudas A")},
	}}
	service, _ := newTestService(t, client)

	status, err := service.Status()
	require.NoError(t, err)
	assert.Equal(t, "idle", status.State)
	assert.Zero(t, status.TotalGrants)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	status, err = service.Status()
	require.NoError(t, err)
	assert.Equal(t, datastore.RunStatusCompleted, status.State)
	assert.Equal(t, handle.RunID, status.RunID)
	assert.Equal(t, int64(1), status.TotalGrants)

	_, err = service.Active()
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestProcessRecordsSkipsMissingCode(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, &stubClient{})
	stats := service.processRecords([]*registry.Convocatoria{
		{Titulo: "Sin código"},
		announcement("100001", "Ayudas A"),
	}, RunStats{}, getLogger())

	assert.Equal(t, 2, stats.ProcessedRecords)
	assert.Equal(t, 1, stats.FailedRecords)
	assert.Equal(t, 1, stats.NewRecords)
}

func TestPlanRangesComplete(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t, &stubClient{})
	now := time.Date(2010, time.June, 15, 0, 0, 0, 0, time.UTC)

	ranges := service.planRanges(conf.SyncTypeComplete, now)
	require.Len(t, ranges, 3)
	assert.Equal(t, 2008, ranges[0].From.Year())
	assert.Equal(t, time.Date(2008, time.December, 31, 0, 0, 0, 0, time.UTC), ranges[0].To)
	assert.Equal(t, now, ranges[2].To, "current year window ends now, not in the future")
}

func TestIncrementalWindowStartsAtLastCompletedRun(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	service, store := newTestService(t, client)

	lastStart := time.Date(2026, time.March, 5, 8, 30, 0, 0, time.UTC)
	prev := &datastore.SyncRun{
		RunID:     "11111111-1111-1111-1111-111111111111",
		SyncType:  conf.SyncTypeIncremental,
		Status:    datastore.RunStatusRunning,
		StartedAt: lastStart,
	}
	require.NoError(t, store.CreateSyncRun(prev))
	require.NoError(t, store.FinalizeSyncRun(prev, datastore.RunStatusCompleted, ""))

	handle, err := service.Start(context.Background(), conf.SyncTypeIncremental)
	require.NoError(t, err)
	waitDone(t, handle)

	// The new run's own row is running when the window is planned; only the
	// completed run may anchor it
	require.NotEmpty(t, client.requests)
	assert.True(t, client.requests[0].From.Equal(lastStart),
		"incremental window must start at the last completed run's start, got %v", client.requests[0].From)
}

func TestIncrementalWindowFallsBackToYearStart(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	service, _ := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeIncremental)
	require.NoError(t, err)
	waitDone(t, handle)

	require.NotEmpty(t, client.requests)
	from := client.requests[0].From
	assert.Equal(t, time.January, from.Month())
	assert.Equal(t, 1, from.Day())
	assert.Equal(t, time.Now().Year(), from.Year())
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	client := &stubClient{pages: [][]*registry.Convocatoria{
		{announcement("100001", "Ayudas A")},
	}}
	service, _ := newTestService(t, client)

	handle, err := service.Start(context.Background(), conf.SyncTypeFull)
	require.NoError(t, err)
	waitDone(t, handle)

	// Close waits for the control goroutine to exit; calling it again must
	// not panic
	service.Close()
	service.Close()
}

func newRunMetrics(t *testing.T) *metrics.SyncMetrics {
	t.Helper()
	m, err := metrics.NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}
