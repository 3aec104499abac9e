package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagEnv      string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tweet-listener",
	Short: "Sentiment and theme analysis for Twitter/X searches",
	Long: `tweet-listener scrapes posts for a set of search terms, labels each one
POSITIVE, NEGATIVE or NEUTRAL, extracts the main discussion themes and builds
engagement statistics. Results are stored locally and can be exported as CSV or PDF.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", ".env", "path to .env file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "logging level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tweet-listener %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo sets the build metadata printed by the version command
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}
