// Package metrics provides sync pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket parameters shared by duration metrics.
const (
	// bucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	bucketStart100ms = 0.1
	// bucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	bucketFactor2 = 2
	// bucketCount10 defines 10 exponential buckets.
	bucketCount10 = 10
)

// SyncMetrics contains Prometheus metrics for sync pipeline operations
type SyncMetrics struct {
	registry *prometheus.Registry

	// Registry API fetch metrics
	pageFetchesTotal    *prometheus.CounterVec
	pageFetchErrorsTotal *prometheus.CounterVec
	pageFetchDuration   *prometheus.HistogramVec

	// Reconcile metrics
	recordsReconciledTotal *prometheus.CounterVec
	reconcileErrorsTotal   *prometheus.CounterVec
	reconcileDuration      *prometheus.HistogramVec

	// Classification metrics
	classificationLinksTotal  *prometheus.CounterVec
	classificationErrorsTotal *prometheus.CounterVec

	// Run metrics
	runsTotal      *prometheus.CounterVec
	runActiveGauge prometheus.Gauge
	runDuration    *prometheus.HistogramVec
}

// NewSyncMetrics creates and registers new sync metrics
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SyncMetrics) initMetrics() {
	m.pageFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_page_fetches_total",
			Help: "Total number of registry page fetch operations",
		},
		[]string{"status"}, // status: success, error
	)

	m.pageFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_page_fetch_errors_total",
			Help: "Total number of registry page fetch errors",
		},
		[]string{"error_type"},
	)

	m.pageFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bdns_page_fetch_duration_seconds",
			Help: "Time taken to fetch one registry page",
			// Buckets cover typical registry response times: 100ms to ~100s
			Buckets: prometheus.ExponentialBuckets(bucketStart100ms, bucketFactor2, bucketCount10),
		},
		[]string{"sync_type"},
	)

	m.recordsReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_records_reconciled_total",
			Help: "Total number of grant records reconciled",
		},
		[]string{"outcome"}, // outcome: inserted, updated, touched
	)

	m.reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_reconcile_errors_total",
			Help: "Total number of per-record reconcile failures",
		},
		[]string{"error_type"},
	)

	m.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bdns_reconcile_duration_seconds",
			Help: "Time taken to reconcile one grant record",
			Buckets: prometheus.ExponentialBuckets(bucketStart100ms, bucketFactor2, bucketCount10),
		},
		[]string{"outcome"},
	)

	m.classificationLinksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_classification_links_total",
			Help: "Total number of classification junction links written",
		},
		[]string{"kind"}, // kind: sector, instrument, region
	)

	m.classificationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_classification_errors_total",
			Help: "Total number of classification payload failures",
		},
		[]string{"kind"},
	)

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bdns_sync_runs_total",
			Help: "Total number of sync runs by terminal status",
		},
		[]string{"sync_type", "status"}, // status: completed, failed
	)

	m.runActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bdns_sync_run_active",
		Help: "Whether a sync run is currently active (0 or 1)",
	})

	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bdns_sync_run_duration_seconds",
			Help: "Total duration of sync runs",
			// Runs span minutes to hours: 10s to ~3h
			Buckets: prometheus.ExponentialBuckets(10, bucketFactor2, bucketCount10),
		},
		[]string{"sync_type"},
	)
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.pageFetchesTotal.Describe(ch)
	m.pageFetchErrorsTotal.Describe(ch)
	m.pageFetchDuration.Describe(ch)
	m.recordsReconciledTotal.Describe(ch)
	m.reconcileErrorsTotal.Describe(ch)
	m.reconcileDuration.Describe(ch)
	m.classificationLinksTotal.Describe(ch)
	m.classificationErrorsTotal.Describe(ch)
	m.runsTotal.Describe(ch)
	m.runActiveGauge.Describe(ch)
	m.runDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.pageFetchesTotal.Collect(ch)
	m.pageFetchErrorsTotal.Collect(ch)
	m.pageFetchDuration.Collect(ch)
	m.recordsReconciledTotal.Collect(ch)
	m.reconcileErrorsTotal.Collect(ch)
	m.reconcileDuration.Collect(ch)
	m.classificationLinksTotal.Collect(ch)
	m.classificationErrorsTotal.Collect(ch)
	m.runsTotal.Collect(ch)
	m.runActiveGauge.Collect(ch)
	m.runDuration.Collect(ch)
}

// RecordPageFetch records a page fetch operation
func (m *SyncMetrics) RecordPageFetch(status string) {
	m.pageFetchesTotal.WithLabelValues(status).Inc()
}

// RecordPageFetchError records a page fetch error
func (m *SyncMetrics) RecordPageFetchError(errorType string) {
	m.pageFetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordPageFetchDuration records the duration of a page fetch
func (m *SyncMetrics) RecordPageFetchDuration(syncType string, seconds float64) {
	m.pageFetchDuration.WithLabelValues(syncType).Observe(seconds)
}

// RecordReconcile records a reconcile outcome
func (m *SyncMetrics) RecordReconcile(outcome string) {
	m.recordsReconciledTotal.WithLabelValues(outcome).Inc()
}

// RecordReconcileError records a per-record reconcile failure
func (m *SyncMetrics) RecordReconcileError(errorType string) {
	m.reconcileErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordReconcileDuration records the duration of one reconcile
func (m *SyncMetrics) RecordReconcileDuration(outcome string, seconds float64) {
	m.reconcileDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordClassificationLink records a junction link write
func (m *SyncMetrics) RecordClassificationLink(kind string) {
	m.classificationLinksTotal.WithLabelValues(kind).Inc()
}

// RecordClassificationError records a classification payload failure
func (m *SyncMetrics) RecordClassificationError(kind string) {
	m.classificationErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordRunFinished records a terminal sync run
func (m *SyncMetrics) RecordRunFinished(syncType, status string, seconds float64) {
	m.runsTotal.WithLabelValues(syncType, status).Inc()
	m.runDuration.WithLabelValues(syncType).Observe(seconds)
}

// SetRunActive updates the active-run gauge
func (m *SyncMetrics) SetRunActive(active bool) {
	if active {
		m.runActiveGauge.Set(1)
	} else {
		m.runActiveGauge.Set(0)
	}
}
