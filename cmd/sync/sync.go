// Package sync implements the one-shot sync command.
package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/ingest"
	"github.com/javigz/bdnsync-go/internal/observability"
)

// Command creates the sync command, which runs one sync to completion and
// exits.
func Command(settings *conf.Settings) *cobra.Command {
	var syncType string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync against the BDNS registry",
		Long:  "Fetch grant announcements from the BDNS registry and reconcile them into the local database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(settings, syncType)
		},
	}

	cmd.Flags().StringVarP(&syncType, "type", "t", viper.GetString("sync.defaulttype"), "Sync type: incremental, full or complete")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func runSync(settings *conf.Settings, syncType string) error {
	if syncType == "" {
		syncType = settings.Sync.DefaultType
	}

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer store.Close()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := ingest.NewService(settings, store, nil, metrics.Sync)
	defer service.Close()
	handle, err := service.Start(ctx, syncType)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}

	fmt.Printf("Sync run %s (%s) started\n", handle.RunID, handle.SyncType)
	<-handle.Done

	run, err := store.GetLatestSyncRun()
	if err != nil {
		return fmt.Errorf("failed to read run result: %w", err)
	}
	fmt.Printf("Sync run %s finished: %s (%d pages, %d records, %d new, %d updated)\n",
		run.RunID, run.Status, run.ProcessedPages, run.ProcessedRecords, run.NewRecords, run.UpdatedRecords)
	if run.Status == datastore.RunStatusFailed {
		return fmt.Errorf("sync run failed: %s", run.ErrorMessage)
	}
	return nil
}
