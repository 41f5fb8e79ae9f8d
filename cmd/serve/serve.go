// Package serve implements the long-running control server command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javigz/bdnsync-go/internal/api"
	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/ingest"
	"github.com/javigz/bdnsync-go/internal/observability"
)

// Command creates the serve command, which runs the HTTP control surface and
// waits for sync requests.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync control server",
		Long:  "Start the HTTP control surface for launching and monitoring sync runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the control server")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func runServer(settings *conf.Settings) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer store.Close()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	syncService := ingest.NewService(settings, store, nil, metrics.Sync)
	defer syncService.Close()
	server := api.NewServer(settings, store, syncService, metrics)
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
