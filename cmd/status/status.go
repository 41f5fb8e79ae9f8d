// Package status implements the status reporting command.
package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/errors"
)

// Command creates the status command, which prints the latest sync run and
// the grant total.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest sync run and database totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(settings)
		},
	}
}

func runStatus(settings *conf.Settings) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer store.Close()

	total, err := store.CountGrants()
	if err != nil {
		return fmt.Errorf("failed to count grants: %w", err)
	}
	fmt.Printf("Grants in database: %d\n", total)

	run, err := store.GetLatestSyncRun()
	if err != nil {
		if errors.IsNotFound(err) {
			fmt.Println("No sync runs recorded yet")
			return nil
		}
		return fmt.Errorf("failed to read latest run: %w", err)
	}

	fmt.Printf("Latest run: %s\n", run.RunID)
	fmt.Printf("  type:      %s\n", run.SyncType)
	fmt.Printf("  status:    %s\n", run.Status)
	fmt.Printf("  started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("  finished:  %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  pages:     %d\n", run.ProcessedPages)
	fmt.Printf("  records:   %d (%d new, %d updated)\n", run.ProcessedRecords, run.NewRecords, run.UpdatedRecords)
	if run.ErrorMessage != "" {
		fmt.Printf("  error:     %s\n", run.ErrorMessage)
	}
	return nil
}
