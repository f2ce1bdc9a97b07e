package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/lahc/internal/logging"
)

var (
	logLevel  string
	logFormat string
	logger    *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lahc",
	Short: "Late Acceptance Hill Climbing solver",
	Long: `lahc runs Late Acceptance Hill Climbing on a built-in problem:
a continuous test objective or a travelling salesman tour.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewLogger(&logging.Config{
			Level:  logLevel,
			Format: logFormat,
			Output: "stderr",
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (json, console)")
}
