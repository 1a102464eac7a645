// Package cmd wires the assistant service's CLI commands.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "smartshop-assistant",
	Short: "SmartShop assistant - tool-grounded shopping chat service",
	Long: `SmartShop assistant serves the storefront's chat widget.

It answers product questions by calling read-only catalog tools from an
LLM orchestration loop, persisting each conversation in PostgreSQL.
Running without a subcommand starts the HTTP server.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := slog.LevelInfo
		if flagVerbose || strings.EqualFold(os.Getenv("SMARTSHOP_LOG_LEVEL"), "debug") {
			level = slog.LevelDebug
		}
		slog.SetDefault(log.New(log.Config{Level: level, JSON: flagJSONLog}))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log in JSON format")
}
