// Package main is the entry point for the blockwatch CLI.
//
// Blockwatch can be run either as a library (SDK) or as a standalone
// binary with YAML configuration. This CLI provides the standalone
// binary approach.
//
// Usage:
//
//	blockwatch watch -c config.yaml    # Poll the status endpoint
//	blockwatch mock -c config.yaml     # Run the mock hosting backend
//	blockwatch validate -c config.yaml # Validate configuration
//	blockwatch version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "blockwatch",
	Short: "A block status poller for hosted deployments",
	Long: `Blockwatch polls the block status of a hosted deployment and reports
every change in the tracked block identifier.

It can also run the mock hosting backend the demo front-end expects,
complete with rotating block identifiers and a deployments API.

Quick start:
  1. Create a config file (blockwatch.yaml)
  2. Run: blockwatch mock -c blockwatch.yaml
  3. In another terminal: blockwatch watch -c blockwatch.yaml

Example config:
  endpoint: http://localhost:8080/api/status
  poll_interval: 10s
  port: 8080`,
	// No Run/RunE means this just shows help when called without subcommands
}

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	// a missing .env file is fine; env substitution in the config
	// reports unset variables itself
	_ = godotenv.Load()

	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this blockwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("blockwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
