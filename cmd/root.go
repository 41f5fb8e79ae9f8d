package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javigz/bdnsync-go/cmd/serve"
	"github.com/javigz/bdnsync-go/cmd/status"
	syncCmd "github.com/javigz/bdnsync-go/cmd/sync"
	"github.com/javigz/bdnsync-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bdnsync",
		Short: "BDNS grant announcement sync CLI",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		syncCmd.Command(settings),
		status.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Registry.Endpoint, "endpoint", viper.GetString("registry.endpoint"), "BDNS registry API endpoint")
	rootCmd.PersistentFlags().IntVar(&settings.Registry.PageSize, "pagesize", viper.GetInt("registry.pagesize"), "Records requested per registry page")
}
