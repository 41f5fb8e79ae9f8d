package datastore

import (
	"log/slog"
	"sync"

	"github.com/javigz/bdnsync-go/internal/logging"
)

var (
	dsLogger     *slog.Logger
	dsLoggerOnce sync.Once
)

// getLogger returns the datastore service logger, falling back to the default
// slog logger when the logging system has not been initialized (tests).
func getLogger() *slog.Logger {
	dsLoggerOnce.Do(func() {
		if l := logging.ForService("datastore"); l != nil {
			dsLogger = l
			return
		}
		dsLogger = slog.Default().With("service", "datastore")
	})
	return dsLogger
}
