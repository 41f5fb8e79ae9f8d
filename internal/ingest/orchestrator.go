package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/errors"
	"github.com/javigz/bdnsync-go/internal/observability/metrics"
	"github.com/javigz/bdnsync-go/internal/registry"
)

// Service drives sync runs end to end: it fetches registry pages, reconciles
// records into the datastore, links classifications and tracks run state.
// A Service executes at most one run at a time; the durable overlap check
// lives in the datastore, the in-process guard here only protects the cancel
// handle.
type Service struct {
	settings   *conf.Settings
	store      datastore.Interface
	client     registry.Client
	tracker    *RunTracker
	normalizer *Normalizer
	metrics    *metrics.SyncMetrics

	ctrl      chan serviceCommand
	ctrlDone  chan struct{}
	closeOnce sync.Once
}

// RunHandle identifies a launched run and signals its completion.
type RunHandle struct {
	RunID    string
	SyncType string
	Done     <-chan struct{}
}

// StatusSnapshot is a point-in-time view of the sync state for the control
// surface.
type StatusSnapshot struct {
	State            string     `json:"state"`
	RunID            string     `json:"run_id,omitempty"`
	SyncType         string     `json:"sync_type,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ProcessedPages   int        `json:"processed_pages"`
	ProcessedRecords int        `json:"processed_records"`
	NewRecords       int        `json:"new_records"`
	UpdatedRecords   int        `json:"updated_records"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	TotalGrants      int64      `json:"total_grants"`
}

type serviceCommand struct {
	op    string
	reply chan serviceReply
	ctx   context.Context
	sync  string
}

type serviceReply struct {
	handle *RunHandle
	err    error
}

// NewService wires a sync service from its collaborators. A nil client falls
// back to the HTTP client built from settings.
func NewService(settings *conf.Settings, store datastore.Interface, client registry.Client, syncMetrics *metrics.SyncMetrics) *Service {
	if client == nil {
		client = registry.NewHTTPClient(settings)
	}
	s := &Service{
		settings:   settings,
		store:      store,
		client:     client,
		tracker:    NewRunTracker(store, settings),
		normalizer: NewNormalizer(store, syncMetrics),
		metrics:    syncMetrics,
		ctrl:       make(chan serviceCommand),
		ctrlDone:   make(chan struct{}),
	}
	go s.controlLoop()
	return s
}

// controlLoop serializes start and stop requests so the cancel handle is
// never raced.
func (s *Service) controlLoop() {
	defer close(s.ctrlDone)
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	for cmd := range s.ctrl {
		switch cmd.op {
		case "start":
			if done != nil {
				select {
				case <-done:
					cancel, done = nil, nil
				default:
					cmd.reply <- serviceReply{err: errors.ConflictError("")}
					continue
				}
			}
			handle, runCancel, runDone, err := s.launch(cmd.ctx, cmd.sync)
			if err != nil {
				cmd.reply <- serviceReply{err: err}
				continue
			}
			cancel, done = runCancel, runDone
			cmd.reply <- serviceReply{handle: handle}
		case "stop":
			if done == nil {
				cmd.reply <- serviceReply{err: errNoActiveRun()}
				continue
			}
			select {
			case <-done:
				cancel, done = nil, nil
				cmd.reply <- serviceReply{err: errNoActiveRun()}
			default:
				cancel()
				cmd.reply <- serviceReply{}
			}
		}
	}
}

// Start launches a sync run of the given type. It returns ErrRunConflict when
// a run is already active, either in this process or recorded in the
// datastore by another one.
func (s *Service) Start(ctx context.Context, syncType string) (*RunHandle, error) {
	if !conf.ValidSyncType(syncType) {
		return nil, errors.New(fmt.Errorf("unknown sync type %q", syncType)).
			Component("ingest").
			Category(errors.CategoryValidation).
			Context("sync_type", syncType).
			Build()
	}
	reply := make(chan serviceReply, 1)
	s.ctrl <- serviceCommand{op: "start", reply: reply, ctx: ctx, sync: syncType}
	r := <-reply
	return r.handle, r.err
}

// Stop cancels the active run, if any. The run finalizes itself as failed
// with a cancellation message before its handle closes.
func (s *Service) Stop() error {
	reply := make(chan serviceReply, 1)
	s.ctrl <- serviceCommand{op: "stop", reply: reply}
	return (<-reply).err
}

// Close shuts down the control goroutine and waits for it to exit. The
// service accepts no further Start or Stop calls after Close; a run already
// in flight keeps going until it finishes on its own.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.ctrl) })
	<-s.ctrlDone
}

// Status reports the latest run alongside the grant total. With no runs on
// record the state is idle with zeroed counters.
func (s *Service) Status() (*StatusSnapshot, error) {
	total, err := s.store.CountGrants()
	if err != nil {
		return nil, err
	}
	run, running, err := s.tracker.Latest()
	if err != nil {
		if errors.IsNotFound(err) {
			return &StatusSnapshot{State: "idle", TotalGrants: total}, nil
		}
		return nil, err
	}
	snapshot := snapshotFromRun(run, total)
	if running {
		snapshot.State = "running"
	}
	return snapshot, nil
}

// Active returns a snapshot of the currently running run, or a
// CategoryNotFound error when the pipeline is idle.
func (s *Service) Active() (*StatusSnapshot, error) {
	run, err := s.tracker.Active()
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountGrants()
	if err != nil {
		return nil, err
	}
	snapshot := snapshotFromRun(run, total)
	snapshot.State = "running"
	return snapshot, nil
}

func snapshotFromRun(run *datastore.SyncRun, total int64) *StatusSnapshot {
	started := run.StartedAt
	return &StatusSnapshot{
		State:            run.Status,
		RunID:            run.RunID,
		SyncType:         run.SyncType,
		StartedAt:        &started,
		FinishedAt:       run.FinishedAt,
		ProcessedPages:   run.ProcessedPages,
		ProcessedRecords: run.ProcessedRecords,
		NewRecords:       run.NewRecords,
		UpdatedRecords:   run.UpdatedRecords,
		ErrorMessage:     run.ErrorMessage,
		TotalGrants:      total,
	}
}

func errNoActiveRun() error {
	return errors.Newf("no sync run in progress").
		Component("ingest").
		Category(errors.CategoryNotFound).
		Build()
}

// launch creates the run row and spawns its worker goroutine.
func (s *Service) launch(parent context.Context, syncType string) (*RunHandle, context.CancelFunc, chan struct{}, error) {
	run, err := s.tracker.Begin(syncType)
	if err != nil {
		return nil, nil, nil, err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	handle := &RunHandle{RunID: run.RunID, SyncType: syncType, Done: done}

	s.metrics.SetRunActive(true)
	go func() {
		defer close(done)
		defer cancel()
		s.runLoop(ctx, run)
	}()
	return handle, cancel, done, nil
}

// dateRange is one fetch window. Complete syncs walk several of them.
type dateRange struct {
	From time.Time
	To   time.Time
}

// planRanges decides the fetch windows for a sync type. Incremental runs pick
// up where the last completed run started so records modified mid-run are
// never skipped.
func (s *Service) planRanges(syncType string, now time.Time) []dateRange {
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	switch syncType {
	case conf.SyncTypeComplete:
		first := s.settings.Sync.StartYear
		if first <= 0 || first > now.Year() {
			first = now.Year()
		}
		var ranges []dateRange
		for year := first; year <= now.Year(); year++ {
			from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
			if year == now.Year() {
				to = now
			}
			ranges = append(ranges, dateRange{From: from, To: to})
		}
		return ranges
	case conf.SyncTypeFull:
		return []dateRange{{From: yearStart, To: now}}
	default: // incremental
		from := yearStart
		if last, err := s.lastCompletedRunStart(); err == nil {
			from = last
		}
		return []dateRange{{From: from, To: now}}
	}
}

func (s *Service) lastCompletedRunStart() (time.Time, error) {
	run, err := s.store.GetLatestCompletedSyncRun()
	if err != nil {
		return time.Time{}, err
	}
	return run.StartedAt, nil
}

// runLoop processes all planned date ranges page by page and finalizes the
// run row. Record-level failures are tolerated and counted; a page fetch
// failure or cancellation fails the run.
func (s *Service) runLoop(ctx context.Context, run *datastore.SyncRun) {
	logger := getLogger().With("run_id", run.RunID, "sync_type", run.SyncType)
	logger.Info("sync run started")

	start := time.Now()
	stats := RunStats{}
	defer func() {
		s.metrics.SetRunActive(false)
	}()

	finishFailed := func(cause string) {
		if err := s.tracker.Fail(run, stats, cause); err != nil {
			logger.Error("failed to finalize run", "error", err)
		}
		s.metrics.RecordRunFinished(run.SyncType, datastore.RunStatusFailed, time.Since(start).Seconds())
		logger.Warn("sync run failed", "cause", cause, "processed_records", stats.ProcessedRecords)
	}

	for _, window := range s.planRanges(run.SyncType, start) {
		var err error
		stats, err = s.processRange(ctx, run, window, stats, logger)
		if err != nil {
			finishFailed(err.Error())
			return
		}
	}

	if err := s.tracker.Complete(run, stats); err != nil {
		logger.Error("failed to finalize run", "error", err)
	}
	s.metrics.RecordRunFinished(run.SyncType, datastore.RunStatusCompleted, time.Since(start).Seconds())
	logger.Info("sync run completed",
		"processed_pages", stats.ProcessedPages,
		"processed_records", stats.ProcessedRecords,
		"new_records", stats.NewRecords,
		"updated_records", stats.UpdatedRecords,
		"touched_records", stats.TouchedRecords,
		"failed_records", stats.FailedRecords,
		"classification_links", stats.ClassificationLinks,
		"duration", time.Since(start))
}

// processRange walks one date window sequentially from page 0 until the
// reported total is reached or a page comes back empty.
func (s *Service) processRange(ctx context.Context, run *datastore.SyncRun, window dateRange, stats RunStats, logger *slog.Logger) (RunStats, error) {
	pageSize := s.settings.Registry.PageSize
	for pageIndex := 0; ; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("sync canceled")
		}

		fetchStart := time.Now()
		page, err := s.client.FetchPage(ctx, registry.PageRequest{
			From:     window.From,
			To:       window.To,
			Page:     pageIndex,
			PageSize: pageSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("sync canceled")
			}
			s.metrics.RecordPageFetchError("fetch")
			logger.Error("page fetch failed", "page", pageIndex, "error", err)
			return stats, fmt.Errorf("page %d fetch failed: %w", pageIndex, err)
		}
		s.metrics.RecordPageFetch("ok")
		s.metrics.RecordPageFetchDuration(run.SyncType, time.Since(fetchStart).Seconds())

		if len(page.Records) == 0 {
			return stats, nil
		}

		stats = s.processRecords(page.Records, stats, logger)
		stats = stats.WithPage()
		if err := s.tracker.Progress(run, stats); err != nil {
			logger.Error("failed to save run progress", "page", pageIndex, "error", err)
		}
		logger.Debug("page processed",
			"page", pageIndex,
			"total_pages", page.TotalPages,
			"records", len(page.Records))

		if page.TotalPages > 0 && pageIndex >= page.TotalPages-1 {
			return stats, nil
		}
	}
}

// processRecords reconciles one page of records. Each record is isolated: a
// mapping or storage failure is logged and counted without aborting the page.
func (s *Service) processRecords(records []*registry.Convocatoria, stats RunStats, logger *slog.Logger) RunStats {
	now := time.Now()
	for _, raw := range records {
		record := MapConvocatoria(raw, now)
		if record.BDNSCode == "" {
			s.metrics.RecordReconcileError("missing_code")
			logger.Warn("skipping record without BDNS code", "title", record.Title)
			stats = stats.WithFailure()
			continue
		}
		record.ContentHash = ContentHash(record)

		reconcileStart := time.Now()
		outcome, err := s.store.ReconcileGrant(record)
		if err != nil {
			s.metrics.RecordReconcileError("database")
			logger.Warn("record reconcile failed", "bdns_code", record.BDNSCode, "error", err)
			stats = stats.WithFailure()
			continue
		}
		s.metrics.RecordReconcile(string(outcome))
		s.metrics.RecordReconcileDuration(string(outcome), time.Since(reconcileStart).Seconds())
		stats = stats.WithOutcome(outcome)

		// Unchanged records keep their existing links
		if outcome != datastore.OutcomeTouched {
			stats = stats.WithLinks(s.normalizer.LinkClassifications(record, raw))
		}
	}
	return stats
}
