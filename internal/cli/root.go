package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketcollector/internal/app"
	"marketcollector/internal/logging"
)

var (
	dataDir   string
	shareDir  string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "marketcollector",
	Short: "Collect crypto market data from multiple providers into a shared store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		logger := logging.NewLogger(logging.Config{
			Level:  logLevel,
			Format: "console",
		})
		appHandle = app.NewApp(dataDir, shareDir, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "datadir", ".", "Directory holding the configuration file and the private scheduler db")
	rootCmd.PersistentFlags().StringVar(&shareDir, "sharedir", "", "Directory holding the shared market-data store (required)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
