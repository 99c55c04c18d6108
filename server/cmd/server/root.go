package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "boardrelay",
	Short: "Real-time collaborative whiteboard relay",
	Long: `boardrelay relays drawing and chat events between WebSocket clients and
replays the board history to late joiners.

When invoked without a subcommand, runs the server (equivalent to "boardrelay serve").

Examples:
  boardrelay                              # serve with ./config.yaml
  boardrelay serve --config /etc/board.yaml
  boardrelay validate --config board.yaml # check a config file and exit`,
	SilenceUsage: true,
	RunE:         serveRun,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "load environment variables from this file if it exists")

	rootCmd.AddCommand(serveCmd, validateCmd)
}

// loadEnv reads envFile into the process environment. Variables already set
// win over the file. A missing file is not an error.
func loadEnv() {
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("could not load env file", "path", envFile, "err", err)
	}
}
