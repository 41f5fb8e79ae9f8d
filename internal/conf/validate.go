package conf

import (
	"fmt"
	"net/url"
)

// Valid sync types accepted by the pipeline.
const (
	SyncTypeIncremental = "incremental"
	SyncTypeFull        = "full"
	SyncTypeComplete    = "complete"
)

// ValidSyncType reports whether t is one of the accepted sync types.
func ValidSyncType(t string) bool {
	switch t {
	case SyncTypeIncremental, SyncTypeFull, SyncTypeComplete:
		return true
	}
	return false
}

// ValidateSettings validates the settings loaded from the configuration file.
func ValidateSettings(settings *Settings) error {
	if settings.Registry.Endpoint == "" {
		return fmt.Errorf("registry.endpoint must not be empty")
	}
	if _, err := url.ParseRequestURI(settings.Registry.Endpoint); err != nil {
		return fmt.Errorf("registry.endpoint is not a valid URL: %w", err)
	}
	if settings.Registry.PageSize <= 0 {
		return fmt.Errorf("registry.pagesize must be a positive integer, got %d", settings.Registry.PageSize)
	}
	if settings.Registry.TimeoutSeconds <= 0 {
		return fmt.Errorf("registry.timeoutseconds must be a positive integer, got %d", settings.Registry.TimeoutSeconds)
	}

	if !ValidSyncType(settings.Sync.DefaultType) {
		return fmt.Errorf("sync.defaulttype must be incremental, full or complete, got %q", settings.Sync.DefaultType)
	}
	if settings.Sync.StartYear < 2008 {
		// BDNS has no data before 2008
		return fmt.Errorf("sync.startyear must be 2008 or later, got %d", settings.Sync.StartYear)
	}
	if settings.Sync.StaleRunMaxHours <= 0 {
		return fmt.Errorf("sync.stalerunmaxhours must be a positive integer, got %d", settings.Sync.StaleRunMaxHours)
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("at least one database output must be enabled")
	}

	return nil
}
