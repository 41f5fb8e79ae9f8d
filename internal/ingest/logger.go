package ingest

import (
	"log/slog"
	"sync"

	"github.com/javigz/bdnsync-go/internal/logging"
)

var (
	ingestLogger     *slog.Logger
	ingestLoggerOnce sync.Once
)

// getLogger returns the ingest service logger, falling back to the default
// slog logger when the logging system has not been initialized (tests).
func getLogger() *slog.Logger {
	ingestLoggerOnce.Do(func() {
		if l := logging.ForService("ingest"); l != nil {
			ingestLogger = l
			return
		}
		ingestLogger = slog.Default().With("service", "ingest")
	})
	return ingestLogger
}
