package ingest

import "github.com/javigz/bdnsync-go/internal/datastore"

// RunStats is the per-run counter accumulation. It is a value type: every
// accumulation returns a new value instead of mutating shared state, so
// concurrent runs in tests never observe each other's counters.
type RunStats struct {
	ProcessedPages      int
	ProcessedRecords    int
	NewRecords          int
	UpdatedRecords      int
	TouchedRecords      int
	FailedRecords       int
	ClassificationLinks int
}

// WithOutcome returns the stats with one reconcile outcome counted.
func (s RunStats) WithOutcome(outcome datastore.ReconcileOutcome) RunStats {
	s.ProcessedRecords++
	switch outcome {
	case datastore.OutcomeInserted:
		s.NewRecords++
	case datastore.OutcomeUpdated:
		s.UpdatedRecords++
	case datastore.OutcomeTouched:
		s.TouchedRecords++
	}
	return s
}

// WithPage returns the stats with one processed page counted.
func (s RunStats) WithPage() RunStats {
	s.ProcessedPages++
	return s
}

// WithFailure returns the stats with one per-record failure counted. Failed
// records still count as processed.
func (s RunStats) WithFailure() RunStats {
	s.ProcessedRecords++
	s.FailedRecords++
	return s
}

// WithLinks returns the stats with n junction links counted.
func (s RunStats) WithLinks(n int) RunStats {
	s.ClassificationLinks += n
	return s
}
