package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockhost/blockwatch"
	"github.com/blockhost/blockwatch/config"
)

// watchCmd runs the poller against the configured status endpoint.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the status endpoint and report block changes",
	Long: `Start the blockwatch poller.

The poller will:
  - Load configuration from the specified YAML file
  - Fetch the status endpoint immediately and then at the configured interval
  - Log every change in the tracked block identifier
  - Synthesize fallback snapshots on fetch failures (unless disabled)

The poller runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  blockwatch watch -c config.yaml
  blockwatch watch --config /etc/blockwatch/config.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"endpoint", cfg.Endpoint,
		"poll_interval", cfg.PollInterval.Duration().String(),
		"fallback", cfg.FallbackEnabled(),
	)

	opts := append(config.BuildOptions(cfg), blockwatch.WithLogger(logger))
	p, err := blockwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unsubscribe := p.Subscribe(func(snap blockwatch.Snapshot) {
		logger.Info("deployment moved to new block",
			"block_id", snap.BlockID,
			"height", snap.Height,
			"hash", snap.Hash,
			"category", snap.Category,
			"active", snap.Active,
			"synthetic", snap.Synthetic,
		)
	})
	defer unsubscribe()

	p.Start(ctx)

	<-ctx.Done()
	p.Stop()
	logger.Info("shutdown complete")
	return nil
}
